package config

import (
	"testing"
	"time"
)

func validBase() Config {
	return Config{
		App:      AppConfig{Env: "local", Port: 8080},
		DB:       DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "freightcall", SSLMode: "disable"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		Auth:     AuthConfig{JWTSecret: "secret"},
		Deepgram: DeepgramConfig{APIKey: "dg-key"},
		OpenAI:   OpenAIConfig{APIKey: "oa-key"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLModeAndWebhookSecret(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.DB.SSLMode = ""
	c.Auth.JWTIssuer = "freightcall"
	c.Auth.JWTAudience = "api"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE and webhook secret")
	}
}

func TestValidate_RequiresProviderKeys(t *testing.T) {
	c := validBase()
	c.Deepgram.APIKey = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing DEEPGRAM_API_KEY")
	}

	c = validBase()
	c.OpenAI.APIKey = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing OPENAI_API_KEY")
	}
}

func TestApplyDefaults_PipelineAndUsage(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	c.applyDefaults()

	if c.Pipeline.RunTimeout != 5*time.Minute {
		t.Fatalf("expected 5m run timeout default, got %v", c.Pipeline.RunTimeout)
	}
	if c.Pipeline.OrgConcurrency <= 0 || c.Pipeline.Workers <= 0 {
		t.Fatalf("expected positive concurrency defaults")
	}
	if c.Usage.Currency != "USD" {
		t.Fatalf("expected USD default, got %q", c.Usage.Currency)
	}
	if c.Deepgram.Model != "nova-2" {
		t.Fatalf("expected nova-2 default, got %q", c.Deepgram.Model)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode preserved, got %q", c.DB.SSLMode)
	}
}
