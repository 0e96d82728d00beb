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

	"github.com/lensai/lensai-stack/common/logging"
	natsclient "github.com/lensai/lensai-stack/common/messaging/nats"
	"github.com/lensai/lensai-stack/ingest/internal/auth"
	"github.com/lensai/lensai-stack/ingest/internal/config"
	"github.com/lensai/lensai-stack/ingest/internal/handlers"
	"github.com/lensai/lensai-stack/ingest/internal/objectstore"
	"github.com/lensai/lensai-stack/ingest/internal/ratelimit"
	"github.com/lensai/lensai-stack/ingest/internal/server"
	"github.com/lensai/lensai-stack/ingest/internal/validator"
	"github.com/lensai/lensai-stack/ingest/internal/writer"
	"github.com/lensai/lensai-stack/ingest/pkg/dlq"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("ingest"))
	logging.SetDefault(logger)

	slog.Info("Starting Ingest service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	ctx := context.Background()

	// Initialize object store
	store, err := objectstore.Open(ctx, objectstore.Config{
		Backend:     cfg.Store.Backend,
		Path:        cfg.Store.Path,
		RedisURL:    cfg.Store.RedisURL,
		RedisPrefix: cfg.Store.RedisPrefix,
	})
	if err != nil {
		log.Fatalf("Failed to open object store: %v", err)
	}
	defer store.Close()
	slog.Info("Object store ready",
		logging.Backend(cfg.Store.Backend),
		slog.Int("retry_attempts", cfg.Store.RetryAttempts),
		slog.Duration("timeout", cfg.Store.Timeout),
	)

	checks := map[string]handlers.ReadinessCheck{
		"store": storeCheck(store, cfg.Store.Backend),
	}

	// Initialize Dead Letter Queue
	var dlqWriter dlq.Writer
	if cfg.DLQ.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.DLQ.NATSURL
		natsCfg.Name = "lensai-ingest"
		jsClient, err := natsclient.NewJetStreamClient(natsCfg)
		if err != nil {
			log.Fatalf("Failed to connect to NATS for DLQ: %v", err)
		}
		defer jsClient.Close()

		queue, err := dlq.NewJetStreamQueue(ctx, jsClient)
		if err != nil {
			log.Fatalf("Failed to initialize JetStream DLQ: %v", err)
		}
		dlqWriter = queue
		checks["dlq"] = func(ctx context.Context) (map[string]interface{}, error) {
			stats := queue.Stats(ctx).Fields()
			if !jsClient.IsConnected() {
				return stats, errors.New("nats disconnected")
			}
			return stats, nil
		}
		slog.Info("Dead Letter Queue enabled", slog.String("nats_url", cfg.DLQ.NATSURL))
	} else {
		slog.Info("Dead Letter Queue disabled")
	}

	verifier, err := auth.New(cfg.Auth.Mode, cfg.Auth.Secret)
	if err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	slog.Info("Request authentication configured", slog.String("mode", cfg.Auth.Mode))

	// Initialize per-project rate limiting
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		rl, err := ratelimit.NewRedisLimiter(ctx, cfg.RateLimit.RedisURL, cfg.RateLimit.Limit, cfg.RateLimit.Window)
		if err != nil {
			log.Fatalf("Failed to initialize rate limiter: %v", err)
		}
		defer rl.Close()
		limiter = rl
		slog.Info("Rate limiting enabled",
			slog.Int("limit", cfg.RateLimit.Limit),
			slog.Duration("window", cfg.RateLimit.Window),
		)
	}

	eventWriter := writer.New(store, dlqWriter, writer.Config{
		Backend:       cfg.Store.Backend,
		RetryAttempts: cfg.Store.RetryAttempts,
		RetryBackoff:  cfg.Store.RetryBackoff,
		Timeout:       cfg.Store.Timeout,
	}, logger)

	// Initialize HTTP handlers
	handler := handlers.NewEventHandler(
		eventWriter,
		validator.New(validator.WithRejectUnknownFields(cfg.Validation.RejectUnknownFields)),
		verifier,
		handlers.Options{
			MaxBodyBytes: cfg.Ingestion.MaxEventSize,
			Logger:       logger,
			Checks:       checks,
			Limiter:      limiter,
			RetryAfter:   cfg.RateLimit.Window,
		},
	)
	router := server.NewRouter(handler)

	// Create server with config values
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Ingest service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", logging.Error(err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}

	slog.Info("Server stopped")
}

type pinger interface {
	Ping(ctx context.Context) error
}

func storeCheck(store objectstore.Store, backend string) handlers.ReadinessCheck {
	return func(ctx context.Context) (map[string]interface{}, error) {
		info := map[string]interface{}{"backend": backend}
		if p, ok := store.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return info, err
			}
		}
		return info, nil
	}
}
