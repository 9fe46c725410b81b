// Package scheduler runs an Instance Runner over every enabled instance in a
// registry on a tick, either once or on a repeating interval, bounding
// concurrency with internal/workerpool and honoring a grace window on
// cancellation.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/elchinoo/dbsentry/internal/logging"
	"github.com/elchinoo/dbsentry/internal/runner"
	"github.com/elchinoo/dbsentry/internal/workerpool"
	"github.com/elchinoo/dbsentry/pkg/types"
	"go.uber.org/zap"
)

// RunReport aggregates the outcome of one full pass over every instance.
// RunID is a generated identifier for the pass, the same way the teacher's
// load-test runs are tagged with a generated execution ID; the scheduler's
// own log lines do not carry it, only the caller's pass summary does.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Results   []runner.Result
	Succeeded int
	Failed    int
}

// Config controls the scheduler's concurrency and cancellation behavior.
type Config struct {
	MaxWorkers int
	Grace      time.Duration
	Logger     logging.FleetLogger
}

// Scheduler drives runner.Runner across a set of instances.
type Scheduler struct {
	run    *runner.Runner
	cfg    Config
	logger logging.FleetLogger
}

// New builds a Scheduler that dispatches each tick through run.
func New(run *runner.Runner, cfg Config) *Scheduler {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefaultLogger()
	}
	return &Scheduler{run: run, cfg: cfg, logger: cfg.Logger}
}

// instanceJob adapts one Instance + Runner pairing to workerpool.Job.
type instanceJob struct {
	inst types.Instance
	run  *runner.Runner
}

func (j instanceJob) ID() string  { return j.inst.ID }
func (j instanceJob) Priority() int { return 0 }

func (j instanceJob) Execute(ctx context.Context) workerpool.Result {
	return instanceResult{result: j.run.Run(ctx, j.inst)}
}

type instanceResult struct{ result runner.Result }

func (r instanceResult) JobID() string       { return r.result.InstanceName }
func (r instanceResult) Error() error        { return r.result.Err }
func (r instanceResult) Duration() time.Duration { return r.result.Duration }
func (r instanceResult) Metrics() map[string]interface{} {
	return map[string]interface{}{"state": string(r.result.State), "alert_count": len(r.result.Alerts)}
}

// RunOnce executes a single pass over every enabled instance and waits for
// every runner to finish (or the grace window to elapse after ctx is
// cancelled), returning the aggregated report.
func (s *Scheduler) RunOnce(ctx context.Context, instances []types.Instance) RunReport {
	started := time.Now()
	enabled := enabledOnly(instances)

	report := RunReport{RunID: uuid.New().String(), StartedAt: started}
	if len(enabled) == 0 {
		report.Duration = time.Since(started)
		return report
	}

	workers := s.cfg.MaxWorkers
	if len(enabled) < workers {
		workers = len(enabled)
	}

	pool := workerpool.NewWorkerPool(workerpool.WorkerPoolConfig{
		Workers: workers, BufferSize: len(enabled), ShutdownTimeout: s.cfg.Grace, Logger: s.logger,
	})
	if err := pool.Start(); err != nil {
		s.logger.Error("failed to start collection pool", err)
		report.Duration = time.Since(started)
		return report
	}

	for _, inst := range enabled {
		if err := pool.Submit(instanceJob{inst: inst, run: s.run}); err != nil {
			s.logger.Warn("failed to submit instance job", zap.String("instance", inst.ID), zap.Error(err))
		}
	}

	// A cancelled ctx triggers an early, best-effort Shutdown so in-flight
	// runners get at most the grace window before the pool forces a stop.
	cancelled := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("collection pass cancelled, applying grace window", zap.Duration("grace", s.cfg.Grace))
			_ = pool.Shutdown()
		case <-cancelled:
		}
	}()

	collected := 0
	for res := range pool.Results() {
		ir := res.(instanceResult)
		report.Results = append(report.Results, ir.result)
		if ir.result.State == runner.StateDone {
			report.Succeeded++
		} else {
			report.Failed++
		}
		collected++
		if collected >= len(enabled) {
			break
		}
	}
	close(cancelled)

	_ = pool.Shutdown()
	report.Duration = time.Since(started)
	return report
}

// Mode selects one-shot or continuous scheduling.
type Mode string

const (
	ModeOneShot    Mode = "one-shot"
	ModeContinuous Mode = "continuous"
)

// Run executes RunOnce repeatedly per mode. In ModeOneShot it runs a single
// pass and returns. In ModeContinuous it sleeps interval between passes
// until ctx is cancelled, finishing any in-flight pass first.
func (s *Scheduler) Run(ctx context.Context, mode Mode, interval time.Duration, instances []types.Instance, onReport func(RunReport)) {
	for {
		report := s.RunOnce(ctx, instances)
		if onReport != nil {
			onReport(report)
		}
		s.logger.Info("collection pass complete",
			zap.Int("succeeded", report.Succeeded), zap.Int("failed", report.Failed),
			zap.Duration("duration", report.Duration))

		if mode == ModeOneShot {
			return
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler cancelled, exiting after grace window", zap.Duration("grace", s.cfg.Grace))
			return
		case <-time.After(interval):
		}
	}
}

func enabledOnly(instances []types.Instance) []types.Instance {
	out := make([]types.Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Enabled {
			out = append(out, inst)
		}
	}
	return out
}
