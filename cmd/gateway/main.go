// Package main wires the LLM Safety Gateway executable entry point and
// lifecycle management.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aegislabs/aegis-gateway/pkg/audit"
	"github.com/aegislabs/aegis-gateway/pkg/classifier"
	"github.com/aegislabs/aegis-gateway/pkg/config"
	"github.com/aegislabs/aegis-gateway/pkg/domain"
	"github.com/aegislabs/aegis-gateway/pkg/gateway"
	"github.com/aegislabs/aegis-gateway/pkg/logging"
	"github.com/aegislabs/aegis-gateway/pkg/storage"
	"github.com/aegislabs/aegis-gateway/pkg/telemetry"
	"github.com/aegislabs/aegis-gateway/pkg/upstream"
)

const (
	defaultConfigPath        = "gateway.yaml"
	defaultServiceName       = "aegis-gateway"
	telemetryShutdownTimeout = 5 * time.Second
	gracefulShutdownTimeout  = 10 * time.Second
)

// store combines the two persistence interfaces both backends implement.
type store interface {
	domain.PolicyStore
	domain.AuditStore
}

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath, "Path to the configuration file")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	otelEndpoint := flag.String("otel-endpoint", "", "OTLP endpoint (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); err != nil && path == defaultConfigPath {
		// Default config file is optional; run on defaults + env.
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("configuration load failed: %v", err)
	}

	// Apply flag overrides
	if *listenAddr != "" {
		cfg.Server.Address = *listenAddr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *otelEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = *otelEndpoint
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, levelVar := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, path, logger, levelVar); err != nil {
		log.Fatalf("application failed: %v", err)
	}
}

// run orchestrates the application lifecycle.
func run(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger, levelVar *slog.LevelVar) error {
	telemetryShutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: defaultServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Environment: os.Getenv("GATEWAY_ENVIRONMENT"),
	})
	if err != nil {
		return fmt.Errorf("telemetry initialization failed: %w", err)
	}
	defer shutdownTelemetry(telemetryShutdown, logger)

	db, closeDB, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := db.SeedDefaults(ctx, domain.DefaultRiskCatalog); err != nil {
		return fmt.Errorf("policy seeding failed: %w", err)
	}

	scorer := classifier.New(classifier.Config{
		BaseURL:       cfg.Classifier.BaseURL,
		Timeout:       time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second,
		MaxConcurrent: cfg.Classifier.MaxConcurrent,
	}, logger)

	provider := upstream.New(upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		Timeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
	}, logger)

	metrics := gateway.NewMetrics()
	audits := audit.New(db, logger, audit.Options{
		QueueSize: cfg.Audit.QueueSize,
		Failures:  metrics.AuditFailures(),
		Dropped:   metrics.AuditDropped(),
	})
	defer audits.Close()

	controller := gateway.NewController(gateway.Deps{
		Policies:   db,
		Audits:     audits,
		AuditStore: db,
		Classifier: scorer,
		Upstream:   provider,
		Metrics:    metrics,
		Logger:     logger,
	})
	defer controller.Drain()

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			provider.SetTarget(next.Upstream.BaseURL, next.Upstream.APIKey)
			levelVar.Set(logging.ParseLevel(next.Logging.Level))
		}, logger)
		if err != nil {
			logger.Warn("config watcher unavailable", "error", err)
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	handler := otelhttp.NewHandler(
		gateway.NewHandler(controller, metrics, logger, cfg.CORS.AllowedOrigins),
		"gateway.http",
	)

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout stays unset: SSE relays hold the connection open
		// for the lifetime of the upstream stream.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (store, func(), error) {
	if cfg.Database.Path == "" {
		logger.Info("using in-memory storage")
		return storage.NewMemoryStore(), func() {}, nil
	}

	db, err := storage.OpenSQLite(cfg.Database.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("using sqlite storage", "path", cfg.Database.Path)
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database failed", "error", err)
		}
	}, nil
}

// shutdownTelemetry gracefully shuts down the telemetry provider.
func shutdownTelemetry(shutdown func(context.Context) error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}
}
