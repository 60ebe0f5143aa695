package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env-file loaded at startup).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Deepgram DeepgramConfig
	OpenAI   OpenAIConfig
	Pipeline PipelineConfig
	Usage    UsageConfig
	Intake   IntakeConfig
	Notify   NotifyConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for managed-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type DeepgramConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type PipelineConfig struct {
	// RunTimeout bounds a single pipeline run wall-clock.
	RunTimeout time.Duration
	// OrgConcurrency caps concurrent runs per organization.
	OrgConcurrency int
	// Workers is the size of the job dispatcher pool.
	Workers int
	// StaleRunAge is how old an in-flight run must be before the sweeper
	// marks it failed so it becomes re-triggerable.
	StaleRunAge time.Duration
}

type UsageConfig struct {
	// RatePerMinuteMinor is the fallback transcription rate when no
	// org-scoped pricing row matches, in minor currency units.
	RatePerMinuteMinor int64
	Currency           string
}

type IntakeConfig struct {
	// WebhookSecret authenticates recording-source webhooks.
	WebhookSecret string
}

type NotifyConfig struct {
	// WebhookURL receives completion notifications. Empty disables delivery.
	WebhookURL string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = optDuration("JWT_REFRESH_TTL")

	c.Deepgram.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	c.Deepgram.BaseURL = strings.TrimSpace(os.Getenv("DEEPGRAM_BASE_URL"))
	c.Deepgram.Model = strings.TrimSpace(os.Getenv("DEEPGRAM_MODEL"))

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))

	c.Pipeline.RunTimeout = optDuration("PIPELINE_RUN_TIMEOUT")
	c.Pipeline.OrgConcurrency = optInt("PIPELINE_ORG_CONCURRENCY")
	c.Pipeline.Workers = optInt("PIPELINE_WORKERS")
	c.Pipeline.StaleRunAge = optDuration("PIPELINE_STALE_RUN_AGE")

	c.Usage.RatePerMinuteMinor = int64(optInt("USAGE_RATE_PER_MINUTE_MINOR"))
	c.Usage.Currency = strings.TrimSpace(os.Getenv("USAGE_CURRENCY"))

	c.Intake.WebhookSecret = os.Getenv("RECORDING_WEBHOOK_SECRET")
	c.Notify.WebhookURL = strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_URL"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if c.DB.SSLMode == "" && c.IsProduction() {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Deepgram.APIKey == "" {
		errs = append(errs, errors.New("DEEPGRAM_API_KEY is required"))
	}
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}

	if c.IsProduction() && c.Intake.WebhookSecret == "" {
		errs = append(errs, errors.New("RECORDING_WEBHOOK_SECRET is required in production"))
	}

	return joinErrors(errs)
}

// applyDefaults fills optional knobs after validation.
func (c *Config) applyDefaults() {
	if c.DB.SSLMode == "" {
		// Local-friendly default; production must be explicit.
		c.DB.SSLMode = "disable"
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Deepgram.BaseURL == "" {
		c.Deepgram.BaseURL = "https://api.deepgram.com"
	}
	if c.Deepgram.Model == "" {
		c.Deepgram.Model = "nova-2"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Pipeline.RunTimeout <= 0 {
		c.Pipeline.RunTimeout = 5 * time.Minute
	}
	if c.Pipeline.OrgConcurrency <= 0 {
		c.Pipeline.OrgConcurrency = 4
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 8
	}
	if c.Pipeline.StaleRunAge <= 0 {
		c.Pipeline.StaleRunAge = 30 * time.Minute
	}
	if c.Usage.RatePerMinuteMinor <= 0 {
		// Two cents per transcribed minute.
		c.Usage.RatePerMinuteMinor = 2
	}
	if c.Usage.Currency == "" {
		c.Usage.Currency = "USD"
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
