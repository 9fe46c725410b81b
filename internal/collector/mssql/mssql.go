// Package mssql implements the SQL Server engine adapter over database/sql
// and go-mssqldb, sourcing sys.dm_exec_sessions/requests, sys.database_files
// and sys.dm_os_performance_counters.
//
// QPS deliberately does NOT reproduce the original monitor's
// "sys.dm_os_performance_counters CROSS JOIN sys.databases" query: that join
// multiplies the single server-wide "Batch Requests/sec" counter value by
// the row count of sys.databases, and divides by each database's own
// uptime, producing a number with no stable meaning. Instead this adapter
// samples the raw cumulative counter each tick and computes the QPS as the
// delta between two consecutive samples divided by the elapsed wall-clock
// time, which is what the counter name actually describes.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/elchinoo/dbsentry/internal/collector"
	"github.com/elchinoo/dbsentry/pkg/types"
)

// Adapter implements collector.Adapter for SQL Server. It keeps the last
// Batch Requests/sec sample per instance to compute a delta-based QPS.
type Adapter struct {
	mu      sync.Mutex
	samples map[string]counterSample
}

type counterSample struct {
	value int64
	at    time.Time
}

// New returns a SQL Server adapter.
func New() *Adapter {
	return &Adapter{samples: make(map[string]counterSample)}
}

type handle struct {
	db *sql.DB
}

func (h *handle) Close() error { return h.db.Close() }

func dsn(inst types.Instance) string {
	return fmt.Sprintf("server=%s;port=%d;user id=%s;password=%s;database=%s;dial timeout=10",
		inst.Address.Host, inst.Address.Port,
		inst.Credentials.Username, inst.Credentials.Password, inst.Database)
}

// Open opens a connection pool to inst.
func (a *Adapter) Open(ctx context.Context, inst types.Instance) (collector.Handle, error) {
	db, err := sql.Open("sqlserver", dsn(inst))
	if err != nil {
		return nil, fmt.Errorf("open mssql: %w", err)
	}
	db.SetMaxOpenConns(4)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mssql: %w", err)
	}
	return &handle{db: db}, nil
}

// Ping runs the connection_status sub-probe.
func (a *Adapter) Ping(ctx context.Context, h collector.Handle) error {
	var one int
	return h.(*handle).db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// Collect runs the remaining ordered sub-probes.
func (a *Adapter) Collect(ctx context.Context, h collector.Handle, inst types.Instance) (types.Metrics, error) {
	db := h.(*handle).db
	m := types.Metrics{Timestamp: time.Now(), MonitorTime: float64(time.Now().Unix())}
	probes := collector.NewProbeErrors()

	probes.Run("connection_stats", func() error {
		s, err := connectionStats(ctx, db)
		if err != nil {
			return err
		}
		m.ConnectionStats = s
		return nil
	})

	probes.Run("qps", func() error {
		q, err := a.queryStats(ctx, db, inst.ID)
		if err != nil {
			return err
		}
		m.QPS = q
		return nil
	})

	probes.Run("slow_queries", func() error {
		sq, err := slowQueries(ctx, db)
		if err != nil {
			return err
		}
		m.SlowQueries = sq
		return nil
	})

	probes.Run("cache_hit_rate", func() error {
		c, err := cacheHitRate(ctx, db)
		if err != nil {
			return err
		}
		m.CacheHitRate = c
		return nil
	})

	probes.Run("tablespace_usage", func() error {
		ts, err := tablespaceUsage(ctx, db)
		if err != nil {
			return err
		}
		m.TablespaceUsage = ts
		return nil
	})

	probes.Run("process_list", func() error {
		procs, err := processList(ctx, db)
		if err != nil {
			return err
		}
		m.ProcessList = procs
		return nil
	})

	probes.Run("replication_status", func() error {
		rep, err := replicationStatus(ctx, db)
		if err != nil {
			return err
		}
		m.Replication = rep
		return nil
	})

	return m, nil
}

func connectionStats(ctx context.Context, db *sql.DB) (*types.ConnectionStats, error) {
	rows, err := db.QueryContext(ctx, "EXEC sp_configure 'user connections'")
	if err != nil {
		return nil, fmt.Errorf("sp_configure user connections: %w", err)
	}
	var maxConnections int64
	cols, _ := rows.Columns()
	if rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err == nil && len(vals) > 1 {
			maxConnections = asInt64(vals[1])
		}
	}
	rows.Close()

	var current int64
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sys.dm_exec_sessions WHERE is_user_process = 1").Scan(&current); err != nil {
		return nil, fmt.Errorf("dm_exec_sessions count: %w", err)
	}

	var active int64
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sys.dm_exec_requests WHERE session_id > 50").Scan(&active); err != nil {
		return nil, fmt.Errorf("dm_exec_requests count: %w", err)
	}

	percent := float64(0)
	if maxConnections > 0 {
		percent = float64(current) / float64(maxConnections) * 100
	}

	return &types.ConnectionStats{Max: &maxConnections, Current: &current, Percent: &percent, Active: &active}, nil
}

func (a *Adapter) queryStats(ctx context.Context, db *sql.DB, instanceID string) (*types.QPSStats, error) {
	var counterValue int64
	err := db.QueryRowContext(ctx, `
		SELECT cntr_value FROM sys.dm_os_performance_counters
		WHERE counter_name = 'Batch Requests/sec'
	`).Scan(&counterValue)
	if err != nil {
		return nil, fmt.Errorf("batch requests/sec counter: %w", err)
	}

	now := time.Now()
	a.mu.Lock()
	prev, ok := a.samples[instanceID]
	a.samples[instanceID] = counterSample{value: counterValue, at: now}
	a.mu.Unlock()

	qps := float64(0)
	uptime := float64(0)
	if ok && now.After(prev.at) {
		elapsed := now.Sub(prev.at).Seconds()
		if elapsed > 0 && counterValue >= prev.value {
			qps = float64(counterValue-prev.value) / elapsed
			uptime = elapsed
		}
	}

	return &types.QPSStats{TotalQueries: &counterValue, UptimeSeconds: &uptime, QPS: &qps}, nil
}

func slowQueries(ctx context.Context, db *sql.DB) (*types.SlowQueries, error) {
	var count int64
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sys.dm_exec_requests
		WHERE session_id > 50 AND DATEDIFF(SECOND, start_time, GETDATE()) > 1
	`).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("dm_exec_requests slow count: %w", err)
	}
	threshold := float64(1)
	return &types.SlowQueries{Count: &count, ThresholdSecond: &threshold}, nil
}

func cacheHitRate(ctx context.Context, db *sql.DB) (*types.CacheHitRate, error) {
	var pageReads, pageLookups float64
	err := db.QueryRowContext(ctx, `
		SELECT counter_value FROM sys.dm_os_performance_counters
		WHERE counter_name = 'Page reads/sec' AND instance_name = ''
	`).Scan(&pageReads)
	if err != nil {
		return nil, fmt.Errorf("page reads/sec counter: %w", err)
	}
	err = db.QueryRowContext(ctx, `
		SELECT counter_value FROM sys.dm_os_performance_counters
		WHERE counter_name = 'Page lookups/sec' AND instance_name = ''
	`).Scan(&pageLookups)
	if err != nil {
		return nil, fmt.Errorf("page lookups/sec counter: %w", err)
	}

	rate := float64(0)
	if pageLookups > 0 {
		rate = (1 - pageReads/pageLookups) * 100
	}
	hits := int64(pageLookups)
	misses := int64(pageReads)
	return &types.CacheHitRate{RatePercent: &rate, Hits: &hits, Misses: &misses}, nil
}

func tablespaceUsage(ctx context.Context, db *sql.DB) ([]types.TablespaceUsage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name,
		       CAST(size * 8.0 / 1024 AS DECIMAL(10, 2)) AS total_mb,
		       CAST(FILEPROPERTY(name, 'SpaceUsed') * 8.0 / 1024 AS DECIMAL(10, 2)) AS used_mb,
		       CAST((size * 8.0 - FILEPROPERTY(name, 'SpaceUsed') * 8.0) / 1024 AS DECIMAL(10, 2)) AS free_mb,
		       CAST((FILEPROPERTY(name, 'SpaceUsed') * 100.0 / size) AS DECIMAL(10, 2)) AS usage_percent
		FROM sys.database_files
		WHERE type = 0
	`)
	if err != nil {
		return nil, fmt.Errorf("sys.database_files: %w", err)
	}
	defer rows.Close()

	var out []types.TablespaceUsage
	for rows.Next() {
		var name string
		var totalMB, usedMB, freeMB, percent float64
		if err := rows.Scan(&name, &totalMB, &usedMB, &freeMB, &percent); err != nil {
			return nil, fmt.Errorf("scan database file row: %w", err)
		}
		out = append(out, types.TablespaceUsage{
			Name: name, TotalMB: &totalMB, UsedMB: &usedMB, FreeMB: &freeMB, UsagePercent: &percent,
		})
	}
	return out, rows.Err()
}

func processList(ctx context.Context, db *sql.DB) ([]types.ProcessEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.session_id, s.login_name, s.host_name, r.status, t.text, r.start_time
		FROM sys.dm_exec_requests r
		JOIN sys.dm_exec_sessions s ON r.session_id = s.session_id
		CROSS APPLY sys.dm_exec_sql_text(r.sql_handle) t
		WHERE r.session_id > 50
		ORDER BY r.start_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("dm_exec_requests process list: %w", err)
	}
	defer rows.Close()

	var out []types.ProcessEntry
	for rows.Next() {
		var sessionID int64
		var login, host, status, text sql.NullString
		var startTime *time.Time
		if err := rows.Scan(&sessionID, &login, &host, &status, &text, &startTime); err != nil {
			return nil, fmt.Errorf("scan request row: %w", err)
		}
		out = append(out, types.ProcessEntry{
			SessionID: fmt.Sprintf("%d", sessionID), User: login.String, Host: host.String,
			State: status.String, Query: text.String, LoginTime: startTime,
		})
	}
	return out, rows.Err()
}

func replicationStatus(ctx context.Context, db *sql.DB) (*types.ReplicationStatus, error) {
	var count int64
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sys.databases WHERE is_published = 1 OR is_subscribed = 1").Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("sys.databases replication flags: %w", err)
	}
	if count == 0 {
		return &types.ReplicationStatus{Status: types.ReplicationNotConfigured}, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT name, status FROM msdb.dbo.sysjobs WHERE name LIKE '%Replication%'
	`)
	if err != nil {
		return nil, fmt.Errorf("msdb sysjobs: %w", err)
	}
	defer rows.Close()

	var agentCount int
	for rows.Next() {
		var name string
		var status int
		if err := rows.Scan(&name, &status); err != nil {
			return nil, fmt.Errorf("scan sysjobs row: %w", err)
		}
		agentCount++
	}

	// Publication/subscription flags are set but msdb has no job whose name
	// contains "Replication": configured, not actually replicating. Jobs are
	// matched by name only; their run state is not checked.
	status := types.ReplicationError
	if agentCount > 0 {
		status = types.ReplicationRunning
	}
	return &types.ReplicationStatus{Status: status}, rows.Err()
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
