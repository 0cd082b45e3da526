package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenHelm/internal/config"
	"github.com/KevinKickass/OpenHelm/internal/system"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := config.NewFlagSet(os.Args[0])
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("Invalid arguments: %v", err)
	}

	cfg, err := config.LoadFlags(flags)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully",
		zap.String("path", flags.Lookup("config").Value.String()),
		zap.String("serial_device", cfg.Serial.Device),
		zap.String("gain_profile", cfg.Calibration.GainProfile))

	lifecycle := system.NewLifecycleManager(cfg, logger)

	startCtx, cancelStart := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = lifecycle.Start(startCtx)
	cancelStart()
	if err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("OpenHelm started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", zap.Stringer("signal", sig))
	case <-lifecycle.Done():
		logger.Info("Shutdown requested over API")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("OpenHelm stopped successfully")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}

	return zcfg.Build()
}
