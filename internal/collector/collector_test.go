package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/elchinoo/dbsentry/pkg/types"
)

type stubHandle struct{ closed bool }

func (h *stubHandle) Close() error { h.closed = true; return nil }

type stubAdapter struct{}

func (stubAdapter) Open(context.Context, types.Instance) (Handle, error) { return &stubHandle{}, nil }
func (stubAdapter) Ping(context.Context, Handle) error                   { return nil }
func (stubAdapter) Collect(context.Context, Handle, types.Instance) (types.Metrics, error) {
	return types.Metrics{}, nil
}

func TestRegistryLookupMissingEngine(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup(types.EnginePostgreSQL); ok {
		t.Fatal("expected empty registry to report no adapter registered")
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(types.EngineMySQL, stubAdapter{})

	a, ok := r.Lookup(types.EngineMySQL)
	if !ok {
		t.Fatal("expected adapter registered for MySQL to be found")
	}
	if _, err := a.Open(context.Background(), types.Instance{}); err != nil {
		t.Fatalf("unexpected error opening stub adapter: %v", err)
	}
}

func TestRegistryRegisterOverwritesExisting(t *testing.T) {
	r := NewRegistry()
	r.Register(types.EngineOracle, stubAdapter{})
	r.Register(types.EngineOracle, stubAdapter{})

	if _, ok := r.Lookup(types.EngineOracle); !ok {
		t.Fatal("expected second registration to still be retrievable")
	}
}

func TestProbeErrorsRecordsFailure(t *testing.T) {
	p := NewProbeErrors()
	p.Run("connections", func() error { return nil })
	p.Run("slow_queries", func() error { return errors.New("query timed out") })

	if !p.Any() {
		t.Fatal("expected at least one recorded probe failure")
	}
	if _, ok := p.Map()["slow_queries"]; !ok {
		t.Fatal("expected slow_queries failure to be recorded under its name")
	}
	if _, ok := p.Map()["connections"]; ok {
		t.Fatal("did not expect a successful probe to be recorded")
	}
}

func TestProbeErrorsRecoversPanic(t *testing.T) {
	p := NewProbeErrors()
	p.Run("cache_hit_rate", func() error {
		panic("driver returned malformed row")
	})

	if !p.Any() {
		t.Fatal("expected a panicking probe to still be recorded as a failure")
	}
}
