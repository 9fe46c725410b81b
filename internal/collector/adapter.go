// Package collector defines the uniform engine adapter contract every
// engine-specific package implements, plus the dispatch registry the
// Instance Runner uses to pick the right adapter for an Instance.Kind.
package collector

import (
	"context"

	"github.com/elchinoo/dbsentry/pkg/types"
)

// Handle is an opaque, adapter-owned connection handle returned by Open and
// passed back into Ping/Collect/Close. Each adapter defines its own
// concrete type behind this interface; Instance Runner never inspects it.
type Handle interface {
	// Close releases whatever the adapter opened in Open.
	Close() error
}

// Adapter is the engine-specific implementation of the collection contract.
// One Adapter is constructed per EngineKind and reused across every
// Instance of that kind; it carries no per-instance state.
type Adapter interface {
	// Open establishes a connection/pool for inst and returns a Handle.
	Open(ctx context.Context, inst types.Instance) (Handle, error)

	// Ping performs the minimal round-trip sub-probe (connection_status).
	Ping(ctx context.Context, h Handle) error

	// Collect runs the remaining ordered sub-probes against h, isolating
	// each one so a single failure leaves only that field nil. Collect
	// itself only returns an error when it cannot build a Metrics value at
	// all; per sub-probe failures are recorded in the returned Metrics.
	Collect(ctx context.Context, h Handle, inst types.Instance) (types.Metrics, error)
}

// Registry maps an EngineKind to its Adapter.
type Registry struct {
	adapters map[types.EngineKind]Adapter
}

// NewRegistry builds an empty registry; callers call Register for each
// engine they wire in, so a partial build (only some drivers available)
// is still a valid registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[types.EngineKind]Adapter)}
}

// Register adds or replaces the Adapter for kind.
func (r *Registry) Register(kind types.EngineKind, a Adapter) {
	r.adapters[kind] = a
}

// Lookup returns the Adapter registered for kind, or ok=false if none was
// registered.
func (r *Registry) Lookup(kind types.EngineKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}
