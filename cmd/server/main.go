package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgercore/ledgerd/service/auth"
	"github.com/ledgercore/ledgerd/service/config"
	"github.com/ledgercore/ledgerd/service/db"
	"github.com/ledgercore/ledgerd/service/ledger"
	"github.com/ledgercore/ledgerd/service/metrics"
	natspkg "github.com/ledgercore/ledgerd/service/nats"
	"github.com/ledgercore/ledgerd/service/server"
)

func main() {
	// Load and validate configuration from environment.
	// This fails fast if any required config is missing or invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting ledger node",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"validators", len(cfg.Validators),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Prometheus collectors, shared by every layer that records metrics.
	m := metrics.NewMetrics(nil)

	// Storage agent
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := db.NewStore(dbPool, m)

	// Services registry for the auth gateway
	var registry *auth.Registry
	if cfg.ServicesRegistryFile != "" {
		registry, err = auth.LoadRegistryFile(cfg.ServicesRegistryFile)
	} else {
		registry, err = auth.ParseRegistry([]byte(cfg.ServicesRegistryJSON))
	}
	if err != nil {
		logger.Error("failed to load services registry", "error", err)
		os.Exit(1)
	}
	logger.Info("services registry loaded", "services", len(registry.Identities()))

	// Commit event fan-out. Optional: an empty NATS_URL runs the node
	// without a message bus.
	var publisher ledger.Publisher
	if cfg.NATSURL != "" {
		jsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, logger, m)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		defer jsPublisher.Close()
		publisher = jsPublisher
	} else {
		logger.Warn("NATS_URL not set, commit fan-out disabled")
	}

	// Admission-and-quorum pipeline
	svc := ledger.NewService(ledger.Options{
		Validators:      cfg.Validators,
		QuorumTimeout:   cfg.QuorumTimeout,
		MempoolCapacity: cfg.MempoolCapacity,
		CommitRetries:   cfg.CommitRetries,
	}, store, publisher, m, logger)
	svc.Start(ctx)

	httpServer := server.New(cfg.ServerAddr, cfg, svc, store, registry, m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
