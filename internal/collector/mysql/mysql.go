// Package mysql implements the MySQL engine adapter over database/sql and
// go-sql-driver/mysql, sourcing SHOW GLOBAL STATUS/VARIABLES counters,
// information_schema.tables sizing, and SHOW SLAVE STATUS replication state.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/elchinoo/dbsentry/internal/collector"
	"github.com/elchinoo/dbsentry/pkg/types"
)

// Adapter implements collector.Adapter for MySQL.
type Adapter struct{}

// New returns a MySQL adapter.
func New() *Adapter { return &Adapter{} }

type handle struct {
	db *sql.DB
}

func (h *handle) Close() error { return h.db.Close() }

func dsn(inst types.Instance) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=10s&readTimeout=30s",
		inst.Credentials.Username, inst.Credentials.Password,
		inst.Address.Host, inst.Address.Port, inst.Database)
}

// Open opens a connection pool to inst.
func (a *Adapter) Open(ctx context.Context, inst types.Instance) (collector.Handle, error) {
	db, err := sql.Open("mysql", dsn(inst))
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
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
		q, err := queryStats(ctx, db)
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

func globalStatusLike(ctx context.Context, db *sql.DB, pattern string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW GLOBAL STATUS LIKE ?", pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

func connectionStats(ctx context.Context, db *sql.DB) (*types.ConnectionStats, error) {
	threads, err := globalStatusLike(ctx, db, "Threads%")
	if err != nil {
		return nil, fmt.Errorf("threads status: %w", err)
	}

	var maxConnections int64
	if err := db.QueryRowContext(ctx,
		"SHOW GLOBAL VARIABLES LIKE 'max_connections'").Scan(new(string), &maxConnections); err != nil {
		return nil, fmt.Errorf("max_connections: %w", err)
	}

	running := parseInt(threads["Threads_running"])
	connected := parseInt(threads["Threads_connected"])
	created := parseInt(threads["Threads_created"])
	cached := parseInt(threads["Threads_cached"])

	percent := float64(0)
	if maxConnections > 0 {
		percent = float64(connected) / float64(maxConnections) * 100
	}

	return &types.ConnectionStats{
		Max: &maxConnections, Current: &connected, Percent: &percent,
		ThreadsRunning: &running, ThreadsConnected: &connected,
		ThreadsCreated: &created, ThreadsCached: &cached,
	}, nil
}

func queryStats(ctx context.Context, db *sql.DB) (*types.QPSStats, error) {
	commands, err := globalStatusLike(ctx, db, "Com_%")
	if err != nil {
		return nil, fmt.Errorf("com status: %w", err)
	}

	var total int64
	for _, v := range commands {
		total += parseInt(v)
	}

	var uptimeName, uptimeValue string
	if err := db.QueryRowContext(ctx, "SHOW GLOBAL STATUS LIKE 'Uptime'").Scan(&uptimeName, &uptimeValue); err != nil {
		return nil, fmt.Errorf("uptime status: %w", err)
	}
	uptime := float64(parseInt(uptimeValue))

	qps := float64(0)
	if uptime > 0 {
		qps = float64(total) / uptime
	}

	return &types.QPSStats{TotalQueries: &total, UptimeSeconds: &uptime, QPS: &qps}, nil
}

func slowQueries(ctx context.Context, db *sql.DB) (*types.SlowQueries, error) {
	var name, countStr string
	if err := db.QueryRowContext(ctx, "SHOW GLOBAL STATUS LIKE 'Slow_queries'").Scan(&name, &countStr); err != nil {
		return nil, fmt.Errorf("slow_queries status: %w", err)
	}
	count := parseInt(countStr)

	var lqtName string
	var lqtValue float64
	if err := db.QueryRowContext(ctx,
		"SHOW GLOBAL VARIABLES LIKE 'long_query_time'").Scan(&lqtName, &lqtValue); err != nil {
		return nil, fmt.Errorf("long_query_time variable: %w", err)
	}

	var slName, slValue string
	enabled := false
	if err := db.QueryRowContext(ctx,
		"SHOW GLOBAL VARIABLES LIKE 'slow_query_log'").Scan(&slName, &slValue); err == nil {
		enabled = slValue == "ON"
	}

	return &types.SlowQueries{Count: &count, ThresholdSecond: &lqtValue, LogEnabled: &enabled}, nil
}

func cacheHitRate(ctx context.Context, db *sql.DB) (*types.CacheHitRate, error) {
	innodb, err := globalStatusLike(ctx, db, "Innodb_buffer_pool_read%")
	if err != nil {
		return nil, fmt.Errorf("innodb buffer pool status: %w", err)
	}

	reads := parseInt(innodb["Innodb_buffer_pool_reads"])
	readRequests := parseInt(innodb["Innodb_buffer_pool_read_requests"])

	rate := float64(0)
	if readRequests > 0 {
		rate = float64(readRequests-reads) / float64(readRequests) * 100
	}

	return &types.CacheHitRate{RatePercent: &rate, Hits: ptrInt64(readRequests - reads), Misses: &reads}, nil
}

func tablespaceUsage(ctx context.Context, db *sql.DB) ([]types.TablespaceUsage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema,
		       SUM(data_length + index_length) / 1024 / 1024 AS total_mb,
		       SUM(data_free) / 1024 / 1024 AS free_mb
		FROM information_schema.tables
		GROUP BY table_schema
		ORDER BY total_mb DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("information_schema.tables: %w", err)
	}
	defer rows.Close()

	var out []types.TablespaceUsage
	for rows.Next() {
		var schema string
		var totalMB, freeMB float64
		if err := rows.Scan(&schema, &totalMB, &freeMB); err != nil {
			return nil, fmt.Errorf("scan schema size row: %w", err)
		}
		if isSystemSchema(schema) {
			continue
		}

		usedMB := totalMB - freeMB
		percent := float64(0)
		if totalMB > 0 {
			percent = usedMB / totalMB * 100
		}

		out = append(out, types.TablespaceUsage{
			Name: schema, TotalMB: &totalMB, UsedMB: &usedMB, FreeMB: &freeMB, UsagePercent: &percent,
		})
	}
	return out, rows.Err()
}

func isSystemSchema(name string) bool {
	switch name {
	case "information_schema", "performance_schema", "mysql", "sys":
		return true
	}
	return false
}

func processList(ctx context.Context, db *sql.DB) ([]types.ProcessEntry, error) {
	rows, err := db.QueryContext(ctx, "SHOW PROCESSLIST")
	if err != nil {
		return nil, fmt.Errorf("show processlist: %w", err)
	}
	defer rows.Close()

	var out []types.ProcessEntry
	for rows.Next() {
		var id int64
		var user, host, db, command, state, info sql.NullString
		var timeSec sql.NullInt64
		if err := rows.Scan(&id, &user, &host, &db, &command, &timeSec, &state, &info); err != nil {
			return nil, fmt.Errorf("scan processlist row: %w", err)
		}
		out = append(out, types.ProcessEntry{
			SessionID: fmt.Sprintf("%d", id),
			User:      user.String,
			Host:      host.String,
			State:     state.String,
			Query:     info.String,
		})
	}
	return out, rows.Err()
}

func replicationStatus(ctx context.Context, db *sql.DB) (*types.ReplicationStatus, error) {
	rows, err := db.QueryContext(ctx, "SHOW SLAVE STATUS")
	if err != nil {
		return nil, fmt.Errorf("show slave status: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return &types.ReplicationStatus{Status: types.ReplicationNotASlave}, nil
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan slave status: %w", err)
	}

	row := make(map[string]any, len(cols))
	for i, c := range cols {
		row[c] = vals[i]
	}

	ioRunning := asString(row["Slave_IO_Running"])
	sqlRunning := asString(row["Slave_SQL_Running"])
	status := types.ReplicationError
	if ioRunning == "Yes" && sqlRunning == "Yes" {
		status = types.ReplicationRunning
	}

	var lag *float64
	if v := row["Seconds_Behind_Master"]; v != nil {
		f := float64(parseInt(asString(v)))
		lag = &f
	}

	return &types.ReplicationStatus{Status: status, Role: "replica", LagSeconds: lag}, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", v)
	}
}

func parseInt(s string) int64 {
	var v int64
	fmt.Sscanf(s, "%d", &v)
	return v
}

func ptrInt64(v int64) *int64 { return &v }
