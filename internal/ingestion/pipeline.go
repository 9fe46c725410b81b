// Package ingestion drives the batch pipeline that lifts committed
// snapshot files off disk into the configured sink: ledger load, newest-
// first discovery of date directories, parallel parse, one transactional
// batch write, and a ledger update — run once or on a repeating interval,
// grounded on original_source/database/scheduler/monitor_to_db.py's
// read_json_files/process_file/batch_write_to_db/main.
package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/elchinoo/dbsentry/internal/ledger"
	"github.com/elchinoo/dbsentry/internal/logging"
	"github.com/elchinoo/dbsentry/internal/sink"
	"github.com/elchinoo/dbsentry/internal/snapshot"
	"github.com/elchinoo/dbsentry/internal/workerpool"
	"github.com/elchinoo/dbsentry/pkg/types"
	"go.uber.org/zap"
)

// Config controls one pipeline instance.
type Config struct {
	MonitorDir string
	MaxWorkers int
	Retention  int // days of ledger history to load/keep; default 7
	Logger     logging.FleetLogger
}

// Report summarizes one pass.
type Report struct {
	StartedAt  time.Time
	Duration   time.Duration
	Discovered int
	Parsed     int
	Failed     int
	Committed  int
}

// Pipeline discovers unprocessed snapshot files, parses them, and commits
// them to a Sink in batches, tracking progress in a Ledger.
type Pipeline struct {
	cfg    Config
	sink   sink.Sink
	logger logging.FleetLogger
}

// New builds a Pipeline writing to s.
func New(cfg Config, s sink.Sink) *Pipeline {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefaultLogger()
	}
	return &Pipeline{cfg: cfg, sink: s, logger: cfg.Logger}
}

// parseJob adapts one candidate file path to workerpool.Job: it reads and
// decodes the snapshot, leaving sink writing to the batch phase so a
// single slow file never blocks the others' parse.
type parseJob struct{ path string }

func (j parseJob) ID() string    { return j.path }
func (j parseJob) Priority() int { return 0 }

func (j parseJob) Execute(ctx context.Context) workerpool.Result {
	snap, err := snapshot.Read(j.path)
	return parseResult{path: j.path, snap: snap, err: err}
}

type parseResult struct {
	path string
	snap types.Snapshot
	err  error
}

func (r parseResult) JobID() string                  { return r.path }
func (r parseResult) Error() error                    { return r.err }
func (r parseResult) Duration() time.Duration         { return 0 }
func (r parseResult) Metrics() map[string]interface{} { return nil }

// RunOnce executes a single pass: load ledger, discover candidate files
// newest date-directory first, parse them concurrently, commit everything
// that parsed in one transaction, then persist the ledger.
func (p *Pipeline) RunOnce(ctx context.Context) (Report, error) {
	started := time.Now()
	report := Report{StartedAt: started}

	led, err := ledger.Load(p.cfg.MonitorDir, p.cfg.Retention)
	if err != nil {
		return report, err
	}

	candidates, err := discover(p.cfg.MonitorDir, led)
	if err != nil {
		return report, err
	}
	report.Discovered = len(candidates)
	if len(candidates) == 0 {
		report.Duration = time.Since(started)
		return report, nil
	}

	workers := p.cfg.MaxWorkers
	if len(candidates) < workers {
		workers = len(candidates)
	}
	pool := workerpool.NewWorkerPool(workerpool.WorkerPoolConfig{
		Workers: workers, BufferSize: len(candidates), Logger: p.logger,
	})
	if err := pool.Start(); err != nil {
		return report, err
	}
	for _, path := range candidates {
		if err := pool.Submit(parseJob{path: path}); err != nil {
			p.logger.Warn("failed to submit parse job", zap.String("path", path), zap.Error(err))
		}
	}

	var snapshots []types.Snapshot
	var committedPaths []string
	collected := 0
	for res := range pool.Results() {
		pr := res.(parseResult)
		collected++
		if pr.err != nil {
			report.Failed++
			p.logger.Warn("failed to parse snapshot file", zap.String("path", pr.path), zap.Error(pr.err))
		} else {
			report.Parsed++
			snapshots = append(snapshots, pr.snap)
			committedPaths = append(committedPaths, pr.path)
		}
		if collected >= len(candidates) {
			break
		}
	}
	_ = pool.Shutdown()

	if len(snapshots) > 0 {
		if err := p.sink.WriteBatch(ctx, snapshots); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}
		report.Committed = len(snapshots)

		today := time.Now().UTC().Format("2006-01-02")
		for _, path := range committedPaths {
			led.Add(today, path)
		}
		if err := led.Save(); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}
	}

	report.Duration = time.Since(started)
	return report, nil
}

// Run executes RunOnce repeatedly. continuous=false runs a single pass and
// returns, including the pass's error. continuous=true sleeps interval
// between passes until ctx is cancelled; a failed pass is logged and the
// next pass retries whatever the ledger did not record.
func (p *Pipeline) Run(ctx context.Context, continuous bool, interval time.Duration, onReport func(Report)) error {
	for {
		report, err := p.RunOnce(ctx)
		if err != nil {
			p.logger.Error("ingestion pass failed", err)
			if !continuous {
				return err
			}
		} else {
			if onReport != nil {
				onReport(report)
			}
			p.logger.Info("ingestion pass complete",
				zap.Int("discovered", report.Discovered), zap.Int("committed", report.Committed),
				zap.Int("failed", report.Failed), zap.Duration("duration", report.Duration))
		}

		if !continuous {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// discover walks monitorDir's date subdirectories newest-first, skipping
// any path the ledger already has recorded.
func discover(monitorDir string, led *ledger.Ledger) ([]string, error) {
	entries, err := os.ReadDir(monitorDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dateDirs []string
	for _, e := range entries {
		if e.IsDir() && ledger.ValidDateDir(e.Name()) {
			dateDirs = append(dateDirs, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dateDirs)))

	var candidates []string
	for _, date := range dateDirs {
		dirPath := filepath.Join(monitorDir, date)
		files, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			path := filepath.Join(dirPath, f.Name())
			if led.Contains(path) {
				continue
			}
			candidates = append(candidates, path)
		}
	}
	return candidates, nil
}
