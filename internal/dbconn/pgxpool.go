// Package dbconn builds pooled PostgreSQL-wire connections shared by the
// PostgreSQL and KingbaseES adapters: both engines speak the same wire
// protocol, so both reuse this pool construction.
package dbconn

import (
	"context"
	"fmt"
	"time"

	"github.com/elchinoo/dbsentry/pkg/types"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultMaxConns       = 4
	defaultMaxConnLife    = time.Hour
	defaultMaxConnIdle    = 30 * time.Minute
	defaultHealthCheck    = time.Minute
)

// OpenPGWirePool opens a pgxpool connection pool to a PostgreSQL-wire
// compatible instance (PostgreSQL proper or KingbaseES), applying the same
// lifetime/health-check tuning across both.
func OpenPGWirePool(ctx context.Context, inst types.Instance) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"user=%s password=%s host=%s port=%d dbname=%s sslmode=disable "+
			"pool_max_conns=%d pool_min_conns=%d pool_max_conn_lifetime=%s "+
			"pool_max_conn_idle_time=%s pool_health_check_period=%s connect_timeout=%d",
		inst.Credentials.Username, inst.Credentials.Password,
		inst.Address.Host, inst.Address.Port, inst.Database,
		defaultMaxConns, defaultMaxConns/2, defaultMaxConnLife,
		defaultMaxConnIdle, defaultHealthCheck, int(defaultConnectTimeout.Seconds()),
	)

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// DSN builds a libpq-style connection string without the pool settings.
// Every adapter in this module opens a pool instead, so nothing calls it.
func DSN(inst types.Instance) string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%d dbname=%s sslmode=disable connect_timeout=%d",
		inst.Credentials.Username, inst.Credentials.Password,
		inst.Address.Host, inst.Address.Port, inst.Database,
		int(defaultConnectTimeout.Seconds()),
	)
}
