package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/elchinoo/dbsentry/internal/circuitbreaker"
	"github.com/elchinoo/dbsentry/internal/collector"
	"github.com/elchinoo/dbsentry/internal/logging"
	"github.com/elchinoo/dbsentry/internal/runner"
	"github.com/elchinoo/dbsentry/pkg/types"
)

type fakeHandle struct{}

func (fakeHandle) Close() error { return nil }

type fakeAdapter struct{}

func (fakeAdapter) Open(ctx context.Context, inst types.Instance) (collector.Handle, error) {
	return fakeHandle{}, nil
}
func (fakeAdapter) Ping(ctx context.Context, h collector.Handle) error { return nil }
func (fakeAdapter) Collect(ctx context.Context, h collector.Handle, inst types.Instance) (types.Metrics, error) {
	return types.Metrics{}, nil
}

func newTestRunner(t *testing.T) *runner.Runner {
	t.Helper()
	reg := collector.NewRegistry()
	reg.Register(types.EnginePostgreSQL, fakeAdapter{})
	breakers := circuitbreaker.NewMultiCircuitBreaker(circuitbreaker.Config{Logger: logging.NewDefaultLogger()})
	return runner.New(reg, breakers, t.TempDir(), types.Rules{}, nil)
}

func TestRunOnceSkipsDisabledInstances(t *testing.T) {
	s := New(newTestRunner(t), Config{})
	instances := []types.Instance{
		{ID: "db1", Kind: types.EnginePostgreSQL, Enabled: true},
		{ID: "db2", Kind: types.EnginePostgreSQL, Enabled: false},
	}

	report := s.RunOnce(context.Background(), instances)
	if len(report.Results) != 1 || report.Results[0].InstanceName != "db1" {
		t.Fatalf("expected only db1 to run, got %+v", report.Results)
	}
}

func TestRunOnceAggregatesSuccesses(t *testing.T) {
	s := New(newTestRunner(t), Config{MaxWorkers: 2})
	instances := []types.Instance{
		{ID: "db1", Kind: types.EnginePostgreSQL, Enabled: true},
		{ID: "db2", Kind: types.EnginePostgreSQL, Enabled: true},
		{ID: "db3", Kind: types.EnginePostgreSQL, Enabled: true},
	}

	report := s.RunOnce(context.Background(), instances)
	if report.Succeeded != 3 || report.Failed != 0 {
		t.Fatalf("expected 3 successes, got succeeded=%d failed=%d", report.Succeeded, report.Failed)
	}
	if report.RunID == "" {
		t.Fatal("expected RunOnce to stamp a non-empty RunID")
	}
}

func TestRunOneShotModeRunsOnce(t *testing.T) {
	s := New(newTestRunner(t), Config{})
	instances := []types.Instance{{ID: "db1", Kind: types.EnginePostgreSQL, Enabled: true}}

	var reports []RunReport
	s.Run(context.Background(), ModeOneShot, time.Millisecond, instances, func(r RunReport) {
		reports = append(reports, r)
	})

	if len(reports) != 1 {
		t.Fatalf("expected exactly one report in one-shot mode, got %d", len(reports))
	}
}
