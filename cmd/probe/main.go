// Command probe runs one collection cycle of the configured data sources and
// prints the resulting exposition to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"data-exporter/internal/config"
	"data-exporter/internal/exporter"
	"data-exporter/internal/logging"
	"data-exporter/internal/modules"
)

func main() {
	configPath := flag.String("config", "exporter-config.yaml", "Path to configuration file")
	sources := flag.String("source", "", "Comma separated data source names, all enabled sources if empty")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	logger, err := logging.New(*logLevel, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Error loading config", zap.Error(err))
	}

	exp, err := exporter.New(cfg, modules.NewRegistry(), logger)
	if err != nil {
		logger.Fatal("Error initializing exporter", zap.Error(err))
	}
	defer exp.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var names []string
	if *sources != "" {
		for _, name := range strings.Split(*sources, ",") {
			names = append(names, strings.TrimSpace(name))
		}
	}

	results, err := exp.RunOnce(ctx, names...)
	if err != nil {
		logger.Error("Error running collection", zap.Error(err))
		exp.Close()
		os.Exit(1)
	}

	failed := false
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
			failed = true
		}
		fmt.Fprintf(os.Stderr, "%-24s records=%d written=%d skipped=%d duration=%s status=%s\n",
			r.Source, r.Records, r.Written, r.Skipped, r.Duration.Round(time.Millisecond), status)
	}

	families, err := exp.Gatherer().Gather()
	if err != nil {
		logger.Error("Error gathering metrics", zap.Error(err))
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			logger.Fatal("Error writing metrics", zap.Error(err))
		}
	}

	if failed {
		exp.Close()
		os.Exit(1)
	}
}
