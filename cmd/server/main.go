// Package main implements the StreamVault entry point.
//
// This service manages multiple live video streams end to end: each
// configured stream is dialed, branched out to a recording pipeline
// (and optionally inference/republish outputs), segmented to disk
// across a rotating multi-disk storage pool, and monitored for health
// with automatic recovery on failure.
//
// Architecture follows a layered startup:
//  1. Load and validate configuration
//  2. Initialize structured logging
//  3. Wire the core service (streams, recording, storage, rotation,
//     health, recovery) via internal/app.Service
//  4. Start the JSON-RPC/WebSocket control surface
//  5. Watch the configuration file for hot-reloadable changes
//
// Graceful shutdown reverses the startup order.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamvault/streamvault-go/internal/api"
	"github.com/streamvault/streamvault-go/internal/app"
	"github.com/streamvault/streamvault-go/internal/common"
	"github.com/streamvault/streamvault-go/internal/config"
	"github.com/streamvault/streamvault-go/internal/logging"
)

func main() {
	configPath := "config/default.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logging.SetupLogging(&logging.LoggingConfig{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		FileEnabled:    cfg.Logging.FileEnabled,
		FilePath:       cfg.Logging.FilePath,
		MaxFileSize:    cfg.Logging.MaxFileSizeMB,
		BackupCount:    cfg.Logging.BackupCount,
		ConsoleEnabled: cfg.Logging.ConsoleEnabled,
	}); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	logger := logging.NewLogger("streamvault")
	logger.WithField("instance_id", cfg.App.InstanceID).Info("starting streamvault")

	service, err := app.NewService(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to wire service")
	}

	var jwtHandler *api.JWTHandler
	if cfg.API.AuthEnabled {
		jwtHandler, err = api.NewJWTHandler(cfg.API.JWTSecretKey, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to create JWT handler")
		}
	}
	apiServer := api.NewServer(&cfg.API, service, jwtHandler, logger)

	ctx := context.Background()
	if err := service.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to start service")
	}
	logger.Info("service started")

	if err := apiServer.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to start api server")
	}
	logger.Info("api server started")

	watcher, err := config.NewConfigWatcher(configPath, cfg, func(newCfg *config.Config, diff config.ReloadDiff) error {
		if diff.NeedsRestart() {
			logger.WithField("fields", fmt.Sprint(diff.RestartRequired)).Warn("configuration changed fields that require a restart to apply")
		}
		if len(diff.Changed) > 0 {
			logger.WithField("fields", fmt.Sprint(diff.Changed)).Info("configuration reloaded")
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Warn("config hot reload unavailable")
	} else if err := watcher.Start(); err != nil {
		logger.WithError(err).Warn("config hot reload failed to start")
	}

	logger.Info("streamvault started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("received shutdown signal, stopping services")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	if watcher != nil {
		_ = watcher.Stop()
	}

	stop := func(name string, svc common.Stoppable) {
		logger.WithField("component", name).Info("stopping")
		if err := common.StopWithTimeout(svc, shutdownTimeout); err != nil {
			logger.WithField("component", name).WithError(err).Error("error during shutdown")
			return
		}
		logger.WithField("component", name).Info("stopped")
	}

	stop("api_server", apiServer)
	stop("service", service)

	logger.Info("streamvault stopped")
}
