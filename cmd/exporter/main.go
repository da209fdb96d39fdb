package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"data-exporter/internal/config"
	"data-exporter/internal/exporter"
	"data-exporter/internal/logging"
	"data-exporter/internal/modules"
)

var (
	configFile string
	port       int
)

func init() {
	flag.StringVar(&configFile, "config", "exporter-config.yaml", "Path to configuration file")
	flag.StringVar(&configFile, "c", "exporter-config.yaml", "Shorthand for --config")
	flag.IntVar(&port, "port", 0, "Override the port from the configuration file")
	flag.IntVar(&port, "p", 0, "Shorthand for --port")
}

func main() {
	flag.Parse()

	bootstrap, err := logging.New("info", "console")
	if err != nil {
		panic(err)
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		bootstrap.Error("Config file not found, writing an example", zap.String("path", configFile))
		if err := config.WriteExample(configFile); err != nil {
			bootstrap.Error("Error writing example config", zap.Error(err))
		} else {
			bootstrap.Info("Edit the example config and restart the exporter", zap.String("path", configFile))
		}
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		bootstrap.Fatal("Error loading config", zap.String("path", configFile), zap.Error(err))
	}
	if port != 0 {
		if err := cfg.OverridePort(port); err != nil {
			bootstrap.Fatal("Invalid --port", zap.Error(err))
		}
	}

	logger, err := logging.New(cfg.Exporter.LogLevel, cfg.Exporter.LogFormat)
	if err != nil {
		bootstrap.Fatal("Error creating logger", zap.Error(err))
	}
	defer logger.Sync()

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	exp, err := exporter.New(cfg, modules.NewRegistry(), logger)
	if err != nil {
		logger.Fatal("Error initializing exporter", zap.Error(err))
	}

	// Create context that listens for the interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := exp.Run(ctx); err != nil {
		logger.Error("Exporter stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Exporter stopped")
}
