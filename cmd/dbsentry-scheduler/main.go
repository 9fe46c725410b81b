// cmd/dbsentry-scheduler/main.go
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

	"github.com/elchinoo/dbsentry/internal/circuitbreaker"
	"github.com/elchinoo/dbsentry/internal/config"
	"github.com/elchinoo/dbsentry/internal/engines"
	"github.com/elchinoo/dbsentry/internal/logging"
	"github.com/elchinoo/dbsentry/internal/runner"
	"github.com/elchinoo/dbsentry/internal/scheduler"
)

func main() {
	var (
		registryPath string
		rootDir      string
		once         bool
		continuous   bool
		interval     time.Duration
		workers      int
		grace        time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "dbsentry-scheduler",
		Short: "Collects health and performance metrics from a registry of database instances",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(registryPath, rootDir, once || !continuous, interval, workers, grace)
		},
	}

	rootCmd.Flags().StringVar(&registryPath, "registry", "registry.yaml", "path to the instance registry file")
	rootCmd.Flags().StringVar(&rootDir, "root", "./monitor", "snapshot output root directory")
	rootCmd.Flags().BoolVar(&once, "once", false, "run a single collection pass and exit")
	rootCmd.Flags().BoolVar(&continuous, "continuous", true, "run collection passes on a repeating interval")
	rootCmd.Flags().DurationVar(&interval, "interval", time.Minute, "interval between collection passes in continuous mode")
	rootCmd.Flags().IntVar(&workers, "workers", 10, "maximum concurrent instance collections")
	rootCmd.Flags().DurationVar(&grace, "grace", 15*time.Second, "grace window to let in-flight collections finish on shutdown")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(registryPath, rootDir string, oneShot bool, interval time.Duration, workers int, grace time.Duration) error {
	logger := logging.NewDefaultLogger()
	defer logger.Sync()

	reg, err := config.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	registry := engines.NewRegistry()
	breakers := circuitbreaker.NewMultiCircuitBreaker(circuitbreaker.Config{Logger: logger})
	run := runner.New(registry, breakers, rootDir, reg.ThresholdRules(), logger)

	sched := scheduler.New(run, scheduler.Config{MaxWorkers: workers, Grace: grace, Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	mode := scheduler.ModeContinuous
	if oneShot {
		mode = scheduler.ModeOneShot
	}

	instances := reg.Instances()
	sched.Run(ctx, mode, interval, instances, func(report scheduler.RunReport) {
		logger.Info("collection pass summary",
			zap.String("run_id", report.RunID),
			zap.Int("succeeded", report.Succeeded), zap.Int("failed", report.Failed))
	})

	return nil
}
