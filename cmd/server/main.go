package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tipjarhq/tipjar/service/config"
	"github.com/tipjarhq/tipjar/service/metrics"
	natspkg "github.com/tipjarhq/tipjar/service/nats"
	"github.com/tipjarhq/tipjar/service/server"
	"github.com/tipjarhq/tipjar/service/stacks"
	"github.com/tipjarhq/tipjar/service/tips"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"network", cfg.Network,
		"contract", cfg.ContractAddress+"."+cfg.ContractName,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize the read-only contract query client
	query := stacks.NewClient(stacks.ContractConfig{
		APIBaseURL:      cfg.APIBaseURL,
		ContractAddress: cfg.ContractAddress,
		ContractName:    cfg.ContractName,
		OwnerAddress:    cfg.OwnerAddress,
	}, nil, m, logger)
	logger.Info("initialized stacks query client", "api_url", cfg.APIBaseURL)

	// Initialize NATS publisher, if configured
	var publisher natspkg.Publisher
	var ssePublisher *server.SSEPublisher
	if cfg.NATSURL != "" {
		p, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p

		sp, err := server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to initialize SSE publisher", "error", err)
			os.Exit(1)
		}
		defer sp.Close()
		ssePublisher = sp
	} else {
		logger.Warn("NATS_URL not set, event publishing and streaming disabled")
	}

	// Initialize the tip repository and start its poll loop
	repo := tips.NewRepository(query, tips.Options{
		FeedLimit:    cfg.FeedLimit,
		PollInterval: cfg.PollInterval,
		StaleWindow:  cfg.StaleWindow,
		Publisher:    publisher,
	}, m, logger)

	go func() {
		if err := repo.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("repository poll loop stopped", "error", err)
		}
	}()

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, repo, ssePublisher, m, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Stop the poll loop, then drain HTTP connections
		cancel()

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

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
