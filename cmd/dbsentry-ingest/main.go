// cmd/dbsentry-ingest/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elchinoo/dbsentry/internal/config"
	"github.com/elchinoo/dbsentry/internal/ingestion"
	"github.com/elchinoo/dbsentry/internal/logging"
	"github.com/elchinoo/dbsentry/internal/sink"
)

func main() {
	var (
		monitorDir string
		configFile string
		continuous bool
		interval   time.Duration
		maxWorkers int
		logLevel   string
		batchSize  int // reserved, matches the original monitor's unused knob
	)

	rootCmd := &cobra.Command{
		Use:   "dbsentry-ingest",
		Short: "Loads committed snapshot files into the configured warehouse sink",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(monitorDir, configFile, continuous, interval, maxWorkers, logLevel)
		},
	}

	rootCmd.Flags().StringVar(&monitorDir, "monitor-dir", "./monitor", "snapshot root directory to ingest from")
	rootCmd.Flags().StringVar(&configFile, "config-file", "ingest.yaml", "ingestion sink configuration file")
	rootCmd.Flags().BoolVar(&continuous, "continuous", false, "keep ingesting on a repeating interval instead of exiting after one pass")
	rootCmd.Flags().DurationVar(&interval, "interval", time.Minute, "interval between ingestion passes in continuous mode")
	rootCmd.Flags().IntVar(&maxWorkers, "max-workers", 10, "maximum concurrent file parses")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 100, "reserved for future batch-size tuning")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(monitorDir, configFile string, continuous bool, interval time.Duration, maxWorkers int, logLevel string) error {
	logger, err := logging.NewLogger(logging.LoggerConfig{Level: logLevel})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ingestCfg, err := config.LoadIngestionConfig(configFile)
	if err != nil {
		return fmt.Errorf("load ingestion config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	s, err := sink.Open(ctx, ingestCfg)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer s.Close()

	if err := s.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure sink schema: %w", err)
	}

	pipeline := ingestion.New(ingestion.Config{
		MonitorDir: monitorDir,
		MaxWorkers: maxWorkers,
		Logger:     logger,
	}, s)

	return pipeline.Run(ctx, continuous, interval, func(report ingestion.Report) {
		logger.Info("ingestion pass summary",
			zap.Int("discovered", report.Discovered),
			zap.Int("committed", report.Committed),
			zap.Int("failed", report.Failed))
	})
}
