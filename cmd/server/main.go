package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/patient-predict-server/internal/api"
	"github.com/patient-predict-server/internal/config"
	"github.com/patient-predict-server/internal/logging"
	"github.com/patient-predict-server/internal/service"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, closeLog, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer closeLog()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Artifacts are loaded once; a failure here stops the process before serving.
	predictor, cleanup, err := service.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize prediction service")
	}
	defer cleanup()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithFields(map[string]interface{}{
		"host":             cfg.Server.Host,
		"port":             cfg.Server.Port,
		"artifact_version": predictor.Version(),
	}).Info("Starting patient prediction server")

	server := api.NewServer(configManager, predictor, logger)
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}
