package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/elchinoo/dbsentry/internal/circuitbreaker"
	"github.com/elchinoo/dbsentry/internal/collector"
	"github.com/elchinoo/dbsentry/internal/logging"
	"github.com/elchinoo/dbsentry/pkg/types"
)

type fakeHandle struct{ closed bool }

func (h *fakeHandle) Close() error { h.closed = true; return nil }

type fakeAdapter struct {
	openErr    error
	pingErr    error
	collectErr error
	metrics    types.Metrics
}

func (a *fakeAdapter) Open(ctx context.Context, inst types.Instance) (collector.Handle, error) {
	if a.openErr != nil {
		return nil, a.openErr
	}
	return &fakeHandle{}, nil
}

func (a *fakeAdapter) Ping(ctx context.Context, h collector.Handle) error { return a.pingErr }

func (a *fakeAdapter) Collect(ctx context.Context, h collector.Handle, inst types.Instance) (types.Metrics, error) {
	return a.metrics, a.collectErr
}

func newBreakers() *circuitbreaker.MultiCircuitBreaker {
	return circuitbreaker.NewMultiCircuitBreaker(circuitbreaker.Config{Logger: logging.NewDefaultLogger()})
}

func TestRunSuccessWritesSnapshot(t *testing.T) {
	percent := 50.0
	reg := collector.NewRegistry()
	reg.Register(types.EnginePostgreSQL, &fakeAdapter{
		metrics: types.Metrics{ConnectionStats: &types.ConnectionStats{Percent: &percent}},
	})

	root := t.TempDir()
	r := New(reg, newBreakers(), root, types.Rules{}, nil)
	result := r.Run(context.Background(), types.Instance{ID: "db1", Kind: types.EnginePostgreSQL})

	if result.State != StateDone {
		t.Fatalf("expected StateDone, got %v (err=%v)", result.State, result.Err)
	}
	if result.SnapshotPath == "" {
		t.Fatalf("expected a snapshot path")
	}
}

func TestRunShortCircuitsOnConnectFailure(t *testing.T) {
	reg := collector.NewRegistry()
	reg.Register(types.EnginePostgreSQL, &fakeAdapter{openErr: errors.New("connection refused")})

	root := t.TempDir()
	r := New(reg, newBreakers(), root, types.Rules{}, nil)
	result := r.Run(context.Background(), types.Instance{ID: "db1", Kind: types.EnginePostgreSQL})

	if result.State != StateDone {
		t.Fatalf("expected StateDone with a down-instance snapshot, got %v", result.State)
	}
	if result.SnapshotPath == "" {
		t.Fatalf("expected a snapshot to still be written for a down instance")
	}
}

func TestRunFailsForUnregisteredEngine(t *testing.T) {
	reg := collector.NewRegistry()
	root := t.TempDir()
	r := New(reg, newBreakers(), root, types.Rules{}, nil)
	result := r.Run(context.Background(), types.Instance{ID: "db1", Kind: types.EngineMySQL})

	if result.State != StateFailed {
		t.Fatalf("expected StateFailed for unregistered engine, got %v", result.State)
	}
}

func TestRunReplicationBrokenRaisesCriticalAlert(t *testing.T) {
	reg := collector.NewRegistry()
	reg.Register(types.EnginePostgreSQL, &fakeAdapter{
		metrics: types.Metrics{Replication: &types.ReplicationStatus{Status: types.ReplicationError}},
	})

	root := t.TempDir()
	r := New(reg, newBreakers(), root, types.Rules{}, nil)
	result := r.Run(context.Background(), types.Instance{ID: "db1", Kind: types.EnginePostgreSQL, ExpectsReplication: true})

	found := false
	for _, a := range result.Alerts {
		if a.Metric == "replication_broken" && a.Level == types.AlertCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected replication_broken CRITICAL alert, got %+v", result.Alerts)
	}
}
