package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mshadianto/mnee-sentinel/internal/alert"
	"github.com/mshadianto/mnee-sentinel/internal/api"
	"github.com/mshadianto/mnee-sentinel/internal/circuitbreaker"
	"github.com/mshadianto/mnee-sentinel/internal/compliance"
	"github.com/mshadianto/mnee-sentinel/internal/config"
	"github.com/mshadianto/mnee-sentinel/internal/extract"
	"github.com/mshadianto/mnee-sentinel/internal/payment"
	"github.com/mshadianto/mnee-sentinel/internal/reconciliation"
	"github.com/mshadianto/mnee-sentinel/internal/store"
	"github.com/mshadianto/mnee-sentinel/internal/store/memory"
	"github.com/mshadianto/mnee-sentinel/internal/store/postgres"
	redispkg "github.com/mshadianto/mnee-sentinel/internal/store/redis"
	"github.com/mshadianto/mnee-sentinel/internal/tracing"
)

const defaultMigrationsDir = "internal/store/postgres/migrations"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting mnee-sentinel",
		"api_port", cfg.Server.Port,
		"rail_mode", cfg.Payment.Mode,
		"confidence_threshold", cfg.Compliance.ConfidenceThreshold.String(),
		"velocity_window", cfg.Compliance.VelocityWindow.String(),
		"max_tx_per_vendor", cfg.Compliance.MaxTxPerVendorPerDay,
		"vendor_cache", cfg.Redis.URL != "",
		"extractor", cfg.Extractor.URL != "",
	)

	// Initialize OpenTelemetry tracing
	shutdownTracing, err := tracing.Init(context.Background(), "mnee-sentinel", cfg.Tracing.Endpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	// Connect to PostgreSQL
	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	migrationsDir := defaultMigrationsDir
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		migrationsDir = dir
	}
	if err := db.RunMigrations(migrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Repositories
	var vendorRepo store.VendorRepository = postgres.NewVendorRepo(db)
	budgetRepo := postgres.NewBudgetRepo(db)
	velocityRepo := postgres.NewVelocityRepo(db)
	auditRepo := postgres.NewAuditRepo(db)

	if cfg.Redis.URL != "" {
		cache, err := redispkg.NewVendorCache(cfg.Redis.URL, vendorRepo, cfg.Redis.VendorTTL, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		vendorRepo = cache
		logger.Info("vendor cache enabled", "backend", "redis", "ttl", cfg.Redis.VendorTTL.String())
	} else {
		vendorRepo = memory.NewVendorCache(vendorRepo, cfg.Redis.VendorTTL, logger)
		logger.Info("vendor cache enabled", "backend", "memory", "ttl", cfg.Redis.VendorTTL.String())
	}

	// Alerting
	var alerter alert.Alerter = alert.Noop{}
	if cfg.Alert.WebhookURL != "" {
		alerter = alert.NewCooldownAlerter(
			alert.NewWebhookAlerter(cfg.Alert.WebhookURL, 10*time.Second),
			cfg.Alert.Cooldown,
			logger,
		)
		logger.Info("webhook alerting enabled", "cooldown", cfg.Alert.Cooldown.String())
	}

	// Compliance pipeline
	tracker := compliance.NewTracker(velocityRepo, cfg.Compliance.VelocityWindow, cfg.Compliance.MaxTxPerVendorPerDay, logger)
	engine := compliance.NewEngine(vendorRepo, budgetRepo, tracker, cfg.Compliance.ConfidenceThreshold, logger)
	recorder := compliance.NewRecorder(db, auditRepo, budgetRepo, tracker, alerter, logger)

	// Extraction
	var extractor extract.Extractor = extract.NewRegexExtractor(logger)
	if cfg.Extractor.URL != "" {
		primary := extract.NewBreakerExtractor(
			extract.NewHTTPExtractor(cfg.Extractor.URL, logger),
			circuitbreaker.Config{},
			logger,
		)
		extractor = extract.NewFallbackExtractor(primary, extractor, logger)
	}

	rail := payment.NewSimulatedRail(logger)
	reconciler := reconciliation.NewService(budgetRepo, auditRepo, alerter, logger)

	server := api.NewServer(
		extractor, engine, recorder, rail,
		vendorRepo, budgetRepo, auditRepo,
		logger,
		api.WithReconciler(reconciler),
		api.WithAlerter(alerter),
		api.WithPinger(db.DB),
	)

	rateLimiter := api.NewRateLimitMiddleware(float64(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst, logger)
	defer rateLimiter.Stop()
	handler := api.RequestLogMiddleware(logger, rateLimiter.Wrap(server.Handler()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runAPIServer(gCtx, cfg.Server.Port, handler, logger)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("sentinel exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("sentinel shut down gracefully")
}

func runAPIServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("api server shutdown error", "error", err)
		}
	}()

	logger.Info("api server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
