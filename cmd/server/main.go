package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/buildtrack/voice-expense-service/internal/config"
	"github.com/buildtrack/voice-expense-service/internal/extract"
	"github.com/buildtrack/voice-expense-service/internal/ledger"
	"github.com/buildtrack/voice-expense-service/internal/metrics"
	"github.com/buildtrack/voice-expense-service/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voice-expense-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load a local .env if present; GEMINI_API_KEY from the environment
	// overrides the config file.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.String("live_model", cfg.Live.Model),
		slog.String("extract_model", cfg.Extract.Model),
		slog.String("ledger_path", cfg.Ledger.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Open the expense ledger
	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		logger.Error("Failed to open ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Ledger opened", slog.String("path", cfg.Ledger.Path))

	// Create the extraction client
	extractor, err := extract.NewClient(extract.Config{
		Endpoint:      cfg.Extract.Endpoint,
		APIKey:        cfg.Extract.APIKey,
		Model:         cfg.Extract.Model,
		Timeout:       cfg.Extract.GetTimeout(),
		MaxRetries:    cfg.Extract.MaxRetries,
		MaxConcurrent: cfg.Extract.MaxConcurrent,
		Metrics:       appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create extraction client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Extraction client initialized",
		slog.String("endpoint", cfg.Extract.Endpoint),
	)

	// Initialize and start the HTTP API server
	apiServer := server.NewServer(cfg, logger, store, extractor, appMetrics)
	if err := apiServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	if err := extractor.Close(); err != nil {
		logger.Error("Error closing extraction client", slog.String("error", err.Error()))
	}

	if err := store.Close(); err != nil {
		logger.Error("Error closing ledger", slog.String("error", err.Error()))
	}

	// Final statistics
	stats := extractor.GetStats()
	logger.Info("Final extraction statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Float64("success_rate", stats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
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
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
