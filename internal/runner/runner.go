// Package runner drives a single Instance through its collection lifecycle:
// Idle -> Opening -> Collecting -> Evaluating -> Emitting -> Closing ->
// Done|Failed. Every transition that can fail captures the error onto the
// emitted snapshot instead of propagating; Failed is reserved for errors
// that prevent producing a snapshot file at all.
package runner

import (
	"context"
	"time"

	"github.com/elchinoo/dbsentry/internal/circuitbreaker"
	"github.com/elchinoo/dbsentry/internal/collector"
	"github.com/elchinoo/dbsentry/internal/logging"
	"github.com/elchinoo/dbsentry/internal/snapshot"
	"github.com/elchinoo/dbsentry/internal/threshold"
	"github.com/elchinoo/dbsentry/pkg/types"
	"go.uber.org/zap"
)

// State is one point in the Instance Runner's lifecycle.
type State string

const (
	StateIdle       State = "Idle"
	StateOpening    State = "Opening"
	StateCollecting State = "Collecting"
	StateEvaluating State = "Evaluating"
	StateEmitting   State = "Emitting"
	StateClosing    State = "Closing"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
)

// Result is the outcome of one Run, reported up to the scheduler.
type Result struct {
	InstanceName string
	State        State
	SnapshotPath string
	Alerts       []types.Alert
	Err          error
	Duration     time.Duration
}

// Runner executes one Instance's full collect-evaluate-emit pass against a
// registry-resolved adapter, with a per-instance circuit breaker guarding
// the open/ping step from a chronically unreachable target.
type Runner struct {
	registry *collector.Registry
	breakers *circuitbreaker.MultiCircuitBreaker
	rootDir  string
	rules    types.Rules
	logger   logging.FleetLogger
}

// New builds a Runner that writes snapshots under rootDir, evaluating rules
// for every instance it processes.
func New(registry *collector.Registry, breakers *circuitbreaker.MultiCircuitBreaker, rootDir string, rules types.Rules, logger logging.FleetLogger) *Runner {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Runner{registry: registry, breakers: breakers, rootDir: rootDir, rules: rules, logger: logger}
}

// Run drives inst through the full state machine and returns the outcome.
func (r *Runner) Run(ctx context.Context, inst types.Instance) Result {
	start := time.Now()
	state := StateIdle
	logger := r.logger.With(logging.Fields.Instance(inst.ID, string(inst.Kind))...)

	adapter, ok := r.registry.Lookup(inst.Kind)
	if !ok {
		return Result{InstanceName: inst.ID, State: StateFailed, Err: unsupportedEngineError(inst.Kind), Duration: time.Since(start)}
	}

	now := time.Now()
	metrics := types.Metrics{Timestamp: now, MonitorTime: float64(now.Unix())}

	state = StateOpening
	var handle collector.Handle
	var connectErr error
	err := r.breakers.Execute(inst.ID, func() error {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		h, openErr := adapter.Open(connectCtx, inst)
		if openErr != nil {
			return openErr
		}
		pingErr := adapter.Ping(connectCtx, h)
		if pingErr != nil {
			h.Close()
			return pingErr
		}
		handle = h
		return nil
	})
	if err != nil {
		connectErr = err
	}

	if connectErr != nil {
		metrics.ConnectionStatus = false
		metrics.CollectionError = connectErr.Error()
		logger.Warn("instance unreachable, short-circuiting collection",
			zap.Error(connectErr))
	} else {
		metrics.ConnectionStatus = true
		state = StateCollecting

		collectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		collected, collectErr := adapter.Collect(collectCtx, handle, inst)
		cancel()
		handle.Close()

		if collectErr != nil {
			metrics.CollectionError = collectErr.Error()
			logger.Warn("collect failed", zap.Error(collectErr))
		} else {
			metrics.ConnectionStats = collected.ConnectionStats
			metrics.QPS = collected.QPS
			metrics.SlowQueries = collected.SlowQueries
			metrics.CacheHitRate = collected.CacheHitRate
			metrics.TablespaceUsage = collected.TablespaceUsage
			metrics.ProcessList = collected.ProcessList
			metrics.Replication = collected.Replication
		}
	}

	state = StateEvaluating
	alerts := threshold.Evaluate(inst.ID, metrics, r.rules, inst.ExpectsReplication, now)

	state = StateEmitting
	snap := types.Snapshot{
		Timestamp: now, MonitorTime: metrics.MonitorTime, InstanceName: inst.ID,
		Stats: metrics, Alerts: alerts, Thresholds: r.rules,
	}
	path, writeErr := snapshot.Write(r.rootDir, snap)
	if writeErr != nil {
		logger.Error("failed to write snapshot, instance run failed", writeErr)
		return Result{InstanceName: inst.ID, State: StateFailed, Err: writeErr, Duration: time.Since(start)}
	}

	state = StateClosing
	logger.Info("instance run complete", zap.String("snapshot_path", path), zap.Int("alert_count", len(alerts)))

	state = StateDone
	return Result{InstanceName: inst.ID, State: state, SnapshotPath: path, Alerts: alerts, Duration: time.Since(start)}
}

type unsupportedEngine struct{ kind types.EngineKind }

func (e unsupportedEngine) Error() string { return "no adapter registered for engine kind " + string(e.kind) }

func unsupportedEngineError(kind types.EngineKind) error { return unsupportedEngine{kind: kind} }
