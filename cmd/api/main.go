package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freightcall-platform/internal/auth"
	"freightcall-platform/internal/calls"
	"freightcall-platform/internal/config"
	"freightcall-platform/internal/events"
	"freightcall-platform/internal/extraction"
	"freightcall-platform/internal/httpapi"
	"freightcall-platform/internal/jobs"
	"freightcall-platform/internal/pipeline"
	"freightcall-platform/internal/pricing"
	"freightcall-platform/internal/recording"
	"freightcall-platform/internal/reporting"
	"freightcall-platform/internal/templates"
	"freightcall-platform/internal/transcription"
	"freightcall-platform/internal/transcripts"
	"freightcall-platform/internal/usage"
	"freightcall-platform/pkg/logger"
	"freightcall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load() // loads .env when present; env vars win

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores
	callStore := calls.NewPostgresStore(db)
	transcriptStore := transcripts.NewPostgresStore(db)
	templateStore := templates.NewPostgresStore(db)
	membershipStore := auth.NewPostgresMembershipStore(db)
	eventSvc := events.NewService(events.NewPostgresRepo(db))

	// Billing
	pricingSvc := pricing.NewService(pricing.NewPostgresRepo(db), cfg.Usage)
	usageSvc := usage.NewService(usage.NewPostgresRepo(db), pricingSvc)

	// Providers
	deepgram := transcription.NewDeepgramProvider(cfg.Deepgram)
	selector, err := transcription.NewSelector(deepgram.Name(), deepgram)
	if err != nil {
		log.Error("provider selector init failed", "err", err)
		os.Exit(1)
	}
	extractor := extraction.NewOpenAIExtractor(cfg.OpenAI)

	var notifier pipeline.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = pipeline.NewWebhookNotifier(cfg.Notify.WebhookURL, log)
	} else {
		notifier = pipeline.NewLogNotifier(log)
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		CallStore:       callStore,
		TranscriptStore: transcriptStore,
		Providers:       selector,
		Extractor:       extractor,
		Templates:       templates.NewAuthorizer(templateStore, membershipStore),
		Events:          eventSvc,
		Usage:           usageSvc,
		Notifier:        notifier,
		Cache:           pipeline.NewRedisProgressCache(rdb, 0),
		Logger:          log,
		RunTimeout:      cfg.Pipeline.RunTimeout,
	})

	dispatcher := jobs.NewDispatcher(jobs.DispatcherConfig{
		Store:          jobs.NewPostgresStore(db),
		Processor:      orchestrator,
		Logger:         log,
		Redis:          rdb,
		OrgConcurrency: cfg.Pipeline.OrgConcurrency,
		Workers:        cfg.Pipeline.Workers,
	})
	dispatcher.Start(rootCtx)

	sweeper := jobs.NewSweeper(callStore, cfg.Pipeline.StaleRunAge, log)
	if err := sweeper.Start(); err != nil {
		log.Error("sweeper init failed", "err", err)
		os.Exit(1)
	}

	handlers := httpapi.Handlers{
		Auth:         authManager,
		Calls:        callStore,
		Transcripts:  transcriptStore,
		Trigger:      orchestrator,
		Submitter:    dispatcher,
		Cache:        pipeline.NewRedisProgressCache(rdb, 0),
		Reporting:    reporting.NewService(reporting.NewPostgresRepo(db)),
		Intake:       recording.NewIntake(callStore, orchestrator, dispatcher, log),
		IntakeSecret: cfg.Intake.WebhookSecret,
		Logger:       log,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	sweeper.Stop()
	dispatcher.Wait()
}
