package dbconn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elchinoo/dbsentry/internal/logging"
	"github.com/elchinoo/dbsentry/pkg/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Manager wraps a pgxpool.Pool for a single PostgreSQL-wire instance
// (PostgreSQL or KingbaseES) with connection metrics and a background
// health checker. The postgres and kingbase adapters and the sink writer
// call OpenPGWirePool directly and do not use Manager.
type Manager struct {
	pool   *pgxpool.Pool
	inst   types.Instance
	logger logging.FleetLogger
	health *HealthChecker

	activeConnections  int64
	connectionAttempts int64
	connectionFailures int64

	mutex sync.RWMutex
}

// HealthChecker runs a periodic ping against a Manager's pool and keeps a
// bounded history of the results.
type HealthChecker struct {
	manager  *Manager
	interval time.Duration
	stop     chan struct{}
	logger   logging.FleetLogger

	consecutiveFails int64
	healthHistory    []HealthStatus
	historyMu        sync.Mutex
}

// HealthStatus is one point-in-time health check result.
type HealthStatus struct {
	Timestamp    time.Time
	Healthy      bool
	ResponseTime time.Duration
	Error        string
}

// NewManager creates a connection manager for inst. It does not connect
// until Connect is called.
func NewManager(inst types.Instance, logger logging.FleetLogger, healthInterval time.Duration) (*Manager, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if healthInterval <= 0 {
		healthInterval = time.Minute
	}

	m := &Manager{inst: inst, logger: logger}
	m.health = &HealthChecker{
		manager:       m,
		interval:      healthInterval,
		stop:          make(chan struct{}),
		logger:        logger.With(zap.String("component", "health_checker")),
		healthHistory: make([]HealthStatus, 0, 100),
	}
	return m, nil
}

// Connect establishes the pool and starts background health checking.
func (m *Manager) Connect(ctx context.Context) error {
	m.logger.Info("establishing connection pool", logging.Fields.Instance(m.inst.ID, string(m.inst.Kind))...)

	pool, err := OpenPGWirePool(ctx, m.inst)
	if err != nil {
		atomic.AddInt64(&m.connectionFailures, 1)
		return errors.Wrap(err, "connect")
	}

	m.mutex.Lock()
	m.pool = pool
	m.mutex.Unlock()

	m.health.Start()
	return nil
}

// Pool returns the underlying pgx pool for direct query use by an adapter.
func (m *Manager) Pool() *pgxpool.Pool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.pool
}

// Ping performs a single health check against the pool.
func (m *Manager) Ping(ctx context.Context) error {
	m.mutex.RLock()
	pool := m.pool
	m.mutex.RUnlock()
	if pool == nil {
		return errors.New("connection pool not initialized")
	}
	return pool.Ping(ctx)
}

// Close stops health checking and closes the pool.
func (m *Manager) Close() error {
	m.health.Stop()
	m.mutex.Lock()
	pool := m.pool
	m.pool = nil
	m.mutex.Unlock()
	if pool != nil {
		pool.Close()
	}
	return nil
}

// WithTransaction runs fn inside a transaction acquired from the pool,
// rolling back on error or panic.
func (m *Manager) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	pool := m.Pool()
	if pool == nil {
		return errors.New("connection pool not initialized")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			m.logger.Error("failed to rollback transaction", rbErr, zap.Error(err))
		}
		return err
	}
	return tx.Commit(ctx)
}

// Start begins periodic health monitoring.
func (hc *HealthChecker) Start() {
	go func() {
		ticker := time.NewTicker(hc.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				hc.check()
			case <-hc.stop:
				return
			}
		}
	}()
}

// Stop stops the health checker goroutine.
func (hc *HealthChecker) Stop() {
	close(hc.stop)
}

func (hc *HealthChecker) check() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := hc.manager.Ping(ctx)
	status := HealthStatus{Timestamp: start, Healthy: err == nil, ResponseTime: time.Since(start)}

	if err != nil {
		status.Error = err.Error()
		atomic.AddInt64(&hc.consecutiveFails, 1)
		hc.logger.Warn("health check failed", zap.Error(err),
			zap.Int64("consecutive_failures", atomic.LoadInt64(&hc.consecutiveFails)))
	} else {
		atomic.StoreInt64(&hc.consecutiveFails, 0)
	}

	hc.historyMu.Lock()
	if len(hc.healthHistory) >= 100 {
		copy(hc.healthHistory, hc.healthHistory[1:])
		hc.healthHistory = hc.healthHistory[:99]
	}
	hc.healthHistory = append(hc.healthHistory, status)
	hc.historyMu.Unlock()
}

// IsHealthy reports whether the most recent run of checks has had zero
// consecutive failures.
func (hc *HealthChecker) IsHealthy() bool {
	return atomic.LoadInt64(&hc.consecutiveFails) == 0
}
