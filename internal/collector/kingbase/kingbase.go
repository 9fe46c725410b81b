// Package kingbase implements the KingbaseES engine adapter. KingbaseES is
// wire-compatible with PostgreSQL, so this adapter reuses internal/dbconn's
// pgxpool plumbing. It differs from the postgres adapter in its cache hit
// rate source (pg_stat_database blocks rather than pg_statio_user_tables),
// its narrower tablespace query, matching KingbaseES's catalog surface, and
// its slow-query probe, which counts statements active for over a fixed
// 1 second instead of deriving the threshold from log_min_duration_statement.
package kingbase

import (
	"context"
	"fmt"
	"time"

	"github.com/elchinoo/dbsentry/internal/collector"
	"github.com/elchinoo/dbsentry/internal/dbconn"
	"github.com/elchinoo/dbsentry/pkg/types"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Adapter implements collector.Adapter for KingbaseES.
type Adapter struct{}

// New returns a KingbaseES adapter.
func New() *Adapter { return &Adapter{} }

type handle struct {
	pool *pgxpool.Pool
}

func (h *handle) Close() error {
	h.pool.Close()
	return nil
}

// Open establishes a pooled connection to inst.
func (a *Adapter) Open(ctx context.Context, inst types.Instance) (collector.Handle, error) {
	pool, err := dbconn.OpenPGWirePool(ctx, inst)
	if err != nil {
		return nil, err
	}
	return &handle{pool: pool}, nil
}

// Ping runs the connection_status sub-probe.
func (a *Adapter) Ping(ctx context.Context, h collector.Handle) error {
	var one int
	return h.(*handle).pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// Collect runs the remaining ordered sub-probes.
func (a *Adapter) Collect(ctx context.Context, h collector.Handle, inst types.Instance) (types.Metrics, error) {
	pool := h.(*handle).pool
	m := types.Metrics{Timestamp: time.Now(), MonitorTime: float64(time.Now().Unix())}
	probes := collector.NewProbeErrors()

	probes.Run("connection_stats", func() error {
		s, err := connectionStats(ctx, pool)
		if err != nil {
			return err
		}
		m.ConnectionStats = s
		return nil
	})

	probes.Run("qps", func() error {
		q, err := queryStats(ctx, pool, inst.Database)
		if err != nil {
			return err
		}
		m.QPS = q
		return nil
	})

	probes.Run("slow_queries", func() error {
		sq, err := slowQueries(ctx, pool)
		if err != nil {
			return err
		}
		m.SlowQueries = sq
		return nil
	})

	probes.Run("cache_hit_rate", func() error {
		c, err := cacheHitRate(ctx, pool, inst.Database)
		if err != nil {
			return err
		}
		m.CacheHitRate = c
		return nil
	})

	probes.Run("tablespace_usage", func() error {
		ts, err := tablespaceUsage(ctx, pool)
		if err != nil {
			return err
		}
		m.TablespaceUsage = ts
		return nil
	})

	probes.Run("process_list", func() error {
		procs, err := processList(ctx, pool)
		if err != nil {
			return err
		}
		m.ProcessList = procs
		return nil
	})

	probes.Run("replication_status", func() error {
		rep, err := replicationStatus(ctx, pool)
		if err != nil {
			return err
		}
		m.Replication = rep
		return nil
	})

	return m, nil
}

func connectionStats(ctx context.Context, pool *pgxpool.Pool) (*types.ConnectionStats, error) {
	var maxConn int64
	if err := pool.QueryRow(ctx, "SHOW max_connections").Scan(&maxConn); err != nil {
		return nil, fmt.Errorf("show max_connections: %w", err)
	}

	var current int64
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM pg_stat_activity").Scan(&current); err != nil {
		return nil, fmt.Errorf("count pg_stat_activity: %w", err)
	}

	var active int64
	if err := pool.QueryRow(ctx,
		"SELECT count(*) FROM pg_stat_activity WHERE state = 'active'").Scan(&active); err != nil {
		return nil, fmt.Errorf("count active sessions: %w", err)
	}

	percent := float64(0)
	if maxConn > 0 {
		percent = float64(current) / float64(maxConn) * 100
	}

	return &types.ConnectionStats{Max: &maxConn, Current: &current, Percent: &percent, Active: &active}, nil
}

func queryStats(ctx context.Context, pool *pgxpool.Pool, database string) (*types.QPSStats, error) {
	var totalTx int64
	var uptime float64
	err := pool.QueryRow(ctx, `
		SELECT coalesce(sum(xact_commit + xact_rollback), 0),
		       extract(epoch from now() - pg_postmaster_start_time())
		FROM pg_stat_database
		WHERE datname = $1
	`, database).Scan(&totalTx, &uptime)
	if err != nil {
		return nil, fmt.Errorf("pg_stat_database: %w", err)
	}

	qps := float64(0)
	if uptime > 0 {
		qps = float64(totalTx) / uptime
	}

	return &types.QPSStats{TotalQueries: &totalTx, UptimeSeconds: &uptime, QPS: &qps}, nil
}

func slowQueries(ctx context.Context, pool *pgxpool.Pool) (*types.SlowQueries, error) {
	var logMinDuration string
	if err := pool.QueryRow(ctx, "SHOW log_min_duration_statement").Scan(&logMinDuration); err != nil {
		return nil, fmt.Errorf("show log_min_duration_statement: %w", err)
	}

	var count int64
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM pg_stat_activity
		WHERE state = 'active' AND now() - query_start > interval '1 second'
	`).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count slow queries: %w", err)
	}

	threshold := float64(1)
	enabled := logMinDuration != "-1"
	return &types.SlowQueries{Count: &count, ThresholdSecond: &threshold, LogEnabled: &enabled}, nil
}

func cacheHitRate(ctx context.Context, pool *pgxpool.Pool, database string) (*types.CacheHitRate, error) {
	var hits, reads int64
	err := pool.QueryRow(ctx, `
		SELECT coalesce(blks_hit, 0), coalesce(blks_read, 0)
		FROM pg_stat_database
		WHERE datname = $1
	`, database).Scan(&hits, &reads)
	if err != nil {
		return nil, fmt.Errorf("pg_stat_database blocks: %w", err)
	}

	rate := float64(100)
	if hits+reads > 0 {
		rate = 100 - (float64(reads)/float64(hits+reads+1))*100
	}

	return &types.CacheHitRate{RatePercent: &rate, Hits: &hits, Misses: &reads}, nil
}

func tablespaceUsage(ctx context.Context, pool *pgxpool.Pool) ([]types.TablespaceUsage, error) {
	rows, err := pool.Query(ctx, `
		SELECT spcname, pg_tablespace_size(spcname)
		FROM pg_tablespace
		WHERE spcname NOT LIKE 'pg_%'
		ORDER BY 2 DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("pg_tablespace: %w", err)
	}
	defer rows.Close()

	var out []types.TablespaceUsage
	for rows.Next() {
		var name string
		var sizeBytes int64
		if err := rows.Scan(&name, &sizeBytes); err != nil {
			return nil, fmt.Errorf("scan tablespace row: %w", err)
		}
		totalMB := float64(sizeBytes) / (1024 * 1024)
		out = append(out, types.TablespaceUsage{Name: name, TotalMB: &totalMB})
	}
	return out, rows.Err()
}

func processList(ctx context.Context, pool *pgxpool.Pool) ([]types.ProcessEntry, error) {
	rows, err := pool.Query(ctx, `
		SELECT pid::text, coalesce(usename, ''), coalesce(client_addr::text, ''),
		       coalesce(state, ''), coalesce(query, ''), backend_start
		FROM pg_stat_activity
		WHERE pid != pg_backend_pid()
	`)
	if err != nil {
		return nil, fmt.Errorf("pg_stat_activity process list: %w", err)
	}
	defer rows.Close()

	var out []types.ProcessEntry
	for rows.Next() {
		var entry types.ProcessEntry
		var loginTime *time.Time
		if err := rows.Scan(&entry.SessionID, &entry.User, &entry.Host, &entry.State, &entry.Query, &loginTime); err != nil {
			return nil, fmt.Errorf("scan process row: %w", err)
		}
		entry.LoginTime = loginTime
		out = append(out, entry)
	}
	return out, rows.Err()
}

func replicationStatus(ctx context.Context, pool *pgxpool.Pool) (*types.ReplicationStatus, error) {
	rows, err := pool.Query(ctx, `
		SELECT application_name, state,
		       extract(epoch from (now() - reply_time)) AS lag_seconds
		FROM pg_stat_replication
	`)
	if err != nil {
		return nil, fmt.Errorf("pg_stat_replication: %w", err)
	}
	defer rows.Close()

	var replicas []string
	allStreaming := true
	var maxLag float64
	hasLag := false
	for rows.Next() {
		var appName, state string
		var lag *float64
		if err := rows.Scan(&appName, &state, &lag); err != nil {
			return nil, fmt.Errorf("scan replication row: %w", err)
		}
		replicas = append(replicas, appName)
		if state != "streaming" {
			allStreaming = false
		}
		if lag != nil && (!hasLag || *lag > maxLag) {
			maxLag = *lag
			hasLag = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(replicas) == 0 {
		return &types.ReplicationStatus{Status: types.ReplicationNoReplicas}, nil
	}

	status := types.ReplicationRunning
	if !allStreaming {
		status = types.ReplicationError
	}
	var lagPtr *float64
	if hasLag {
		lagPtr = &maxLag
	}
	return &types.ReplicationStatus{Status: status, Role: "primary", LagSeconds: lagPtr, Replicas: replicas}, nil
}
