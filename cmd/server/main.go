// Package main is the entry point for the ScamShield coaching server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/advice"
	"github.com/jkindrix/scamshield/internal/audit"
	"github.com/jkindrix/scamshield/internal/clock"
	"github.com/jkindrix/scamshield/internal/config"
	"github.com/jkindrix/scamshield/internal/database"
	"github.com/jkindrix/scamshield/internal/domain"
	"github.com/jkindrix/scamshield/internal/handler"
	"github.com/jkindrix/scamshield/internal/logging"
	"github.com/jkindrix/scamshield/internal/metrics"
	"github.com/jkindrix/scamshield/internal/middleware"
	"github.com/jkindrix/scamshield/internal/push"
	"github.com/jkindrix/scamshield/internal/ratelimit"
	"github.com/jkindrix/scamshield/internal/repository"
	"github.com/jkindrix/scamshield/internal/shutdown"
	"github.com/jkindrix/scamshield/internal/signature"
	"github.com/jkindrix/scamshield/internal/telephony"
	"github.com/jkindrix/scamshield/internal/worker"
	"github.com/jkindrix/scamshield/migrations"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := logging.New(&logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Environment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := appLogger.Logger
	defer func() { _ = logger.Sync() }()

	logger.Info("starting ScamShield server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Environment),
	)

	ctx := context.Background()
	m := metrics.NewMetrics()
	auditLogger := audit.NewLogger(logger)
	hub := push.NewHub()

	// Storage: PostgreSQL when configured, in-memory otherwise. The
	// memory store is for local development only; state dies with the
	// process.
	var (
		store     domain.Store
		caseStore domain.CaseStore
		db        *database.DB
	)
	if cfg.Database.Password != "" {
		db, err = database.New(ctx, &cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		migrator := database.NewMigrator(db.Pool, logger)
		if err := migrator.MigrateFromFS(ctx, migrations.FS, "."); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		store = repository.NewSessionRepository(db.Pool, hub)
		caseStore = repository.NewCaseRepository(db.Pool)
	} else {
		logger.Warn("no database configured, using in-memory store")
		mem := repository.NewMemoryStore(hub)
		store = mem
		caseStore = mem
	}

	// Rate limiting: Redis-backed when available so limits hold across
	// replicas, in-process otherwise.
	var (
		limiter  ratelimit.Limiter
		cooldown ratelimit.CooldownLimiter
	)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rl := ratelimit.NewRedisLimiter(redisClient, logger)
		limiter, cooldown = rl, rl
		logger.Info("using redis rate limiter", zap.String("addr", cfg.Redis.Addr))
	} else {
		window := ratelimit.NewSlidingWindowLimiter(clock.New(), logger)
		window.StartPruner(ctx, 2*cfg.RateLimit.PhonePerIPWindow)
		cool := ratelimit.NewCooldown(clock.New())
		cool.StartPruner(ctx, 2*cfg.RateLimit.CallSlugCooldown)
		limiter, cooldown = window, cool
	}

	scorer := advice.NewModelScorer(advice.ModelConfig{
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.Name,
		BaseURL: cfg.Model.BaseURL,
	}, logger)
	if !scorer.Enabled() {
		logger.Warn("no model API key configured, advice is heuristic-only")
	}

	dispatcher := worker.NewDispatcher(store, scorer, clock.New(), worker.Config{
		ModelMinInterval: cfg.Model.MinInterval(),
		StepCaps:         advice.DefaultStepCaps,
		Metrics:          m,
	}, logger)

	dialer := telephony.NewClient(telephony.Config{
		AccountID:  cfg.Provider.AccountID,
		AuthToken:  cfg.Provider.AuthToken,
		APIURL:     cfg.Provider.APIURL,
		FromNumber: cfg.Provider.FromNumber,
	}, logger)

	verifier := signature.NewVerifier(cfg.Provider.AuthToken)
	if cfg.Webhook.SkipSignatureValidation {
		logger.Warn("webhook signature validation is DISABLED")
	}

	socket := push.NewSocketServer(hub, store, cfg.Live.TranscriptLimit, logger, m)

	webhookHandler := handler.NewWebhookHandler(handler.WebhookHandlerConfig{
		Store:         store,
		Dispatcher:    dispatcher,
		Verifier:      verifier,
		AccountID:     cfg.Provider.AccountID,
		SkipSignature: cfg.Webhook.SkipSignatureValidation,
		Logger:        logger,
		Audit:         auditLogger,
		Metrics:       m,
	})
	liveHandler := handler.NewLiveHandler(handler.LiveHandlerConfig{
		Store:           store,
		Socket:          socket,
		TranscriptLimit: cfg.Live.TranscriptLimit,
		Logger:          logger,
	})
	callHandler := handler.NewCallHandler(handler.CallHandlerConfig{
		Store:    store,
		Cases:    caseStore,
		Dialer:   dialer,
		Limiter:  limiter,
		Cooldown: cooldown,
		Limits:   cfg.RateLimit,
		BaseURL:  cfg.App.BaseURL,
		Logger:   logger,
		Audit:    auditLogger,
		Metrics:  m,
	})
	phoneHandler := handler.NewPhoneHandler(handler.PhoneHandlerConfig{
		Cases:   caseStore,
		Limiter: limiter,
		Limits:  cfg.RateLimit,
		Logger:  logger,
		Audit:   auditLogger,
		Metrics: m,
	})
	startHandler := handler.NewStartHandler(handler.StartHandlerConfig{
		Cases:  caseStore,
		Logger: logger,
		Audit:  auditLogger,
	})
	shutdownCoord := shutdown.NewCoordinator(&shutdown.Config{
		Timeout: 30 * time.Second,
	}, logger)
	readiness := shutdown.NewReadinessProbe(shutdownCoord)

	var healthChecker handler.HealthChecker
	if db != nil {
		healthChecker = db
	}
	healthHandler := handler.NewHealthHandler(handler.HealthHandlerConfig{
		HealthChecker: healthChecker,
		ModelChecker:  scorer,
		Readiness:     readiness,
		Logger:        logger,
	})

	correlation := middleware.NewRequestCorrelation(logger)

	r := chi.NewRouter()
	r.Use(correlation.Middleware)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimiddleware.Compress(5))
	r.Use(m.Middleware)

	webhookHandler.RegisterRoutes(r)
	liveHandler.RegisterRoutes(r)
	callHandler.RegisterRoutes(r)
	phoneHandler.RegisterRoutes(r)
	startHandler.RegisterRoutes(r)
	healthHandler.RegisterRoutes(r)
	r.Handle("/metrics", m.Handler())
	r.Handle("/admin/log-level", appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()
	auditLogger.ServiceStarted(ctx, cfg.Server.Environment)

	// Drain HTTP first so no new work lands on the dispatcher, then let
	// in-flight advice cycles finish, then release connections.
	shutdownCoord.RegisterFunc(shutdown.PhaseDrain, "http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})
	shutdownCoord.RegisterFunc(shutdown.PhaseShutdown, "advice-dispatcher", func(ctx context.Context) error {
		return dispatcher.Stop(ctx)
	})
	shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "database", func(ctx context.Context) error {
		if db != nil {
			db.Close()
		}
		return nil
	})
	if redisClient != nil {
		shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("received shutdown signal")
	auditLogger.ServiceStopping(ctx, "signal received")
	if err := shutdownCoord.Shutdown(ctx); err != nil {
		logger.Error("shutdown completed with errors", zap.Error(err))
	}
}
