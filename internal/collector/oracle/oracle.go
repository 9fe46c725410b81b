// Package oracle implements the Oracle engine adapter over database/sql and
// godror, sourcing v$session/v$sysstat/dba_data_files counters and
// v$database/v$archive_dest for replication (Data Guard) state.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/godror/godror"

	"github.com/elchinoo/dbsentry/internal/collector"
	"github.com/elchinoo/dbsentry/pkg/types"
)

// Adapter implements collector.Adapter for Oracle.
type Adapter struct{}

// New returns an Oracle adapter.
func New() *Adapter { return &Adapter{} }

type handle struct {
	db *sql.DB
}

func (h *handle) Close() error { return h.db.Close() }

func dsn(inst types.Instance) string {
	return fmt.Sprintf(`user="%s" password="%s" connectString="%s:%d/%s"`,
		inst.Credentials.Username, inst.Credentials.Password,
		inst.Address.Host, inst.Address.Port, inst.SID)
}

// Open opens a connection pool to inst.
func (a *Adapter) Open(ctx context.Context, inst types.Instance) (collector.Handle, error) {
	db, err := sql.Open("godror", dsn(inst))
	if err != nil {
		return nil, fmt.Errorf("open oracle: %w", err)
	}
	db.SetMaxOpenConns(4)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping oracle: %w", err)
	}
	return &handle{db: db}, nil
}

// Ping runs the connection_status sub-probe.
func (a *Adapter) Ping(ctx context.Context, h collector.Handle) error {
	var one int
	return h.(*handle).db.QueryRowContext(ctx, "SELECT 1 FROM DUAL").Scan(&one)
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

func connectionStats(ctx context.Context, db *sql.DB) (*types.ConnectionStats, error) {
	var maxProcesses int64
	if err := db.QueryRowContext(ctx,
		"SELECT value FROM v$parameter WHERE name = 'processes'").Scan(&maxProcesses); err != nil {
		return nil, fmt.Errorf("v$parameter processes: %w", err)
	}

	var current int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM v$session").Scan(&current); err != nil {
		return nil, fmt.Errorf("v$session count: %w", err)
	}

	var active int64
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM v$session WHERE status = 'ACTIVE'").Scan(&active); err != nil {
		return nil, fmt.Errorf("v$session active count: %w", err)
	}

	percent := float64(0)
	if maxProcesses > 0 {
		percent = float64(current) / float64(maxProcesses) * 100
	}

	return &types.ConnectionStats{Max: &maxProcesses, Current: &current, Percent: &percent, Active: &active}, nil
}

func queryStats(ctx context.Context, db *sql.DB) (*types.QPSStats, error) {
	var total int64
	var uptime float64
	err := db.QueryRowContext(ctx, `
		SELECT SUM(value), (SYSDATE - startup_time) * 86400
		FROM v$sysstat, v$instance
		WHERE name = 'execute count'
	`).Scan(&total, &uptime)
	if err != nil {
		return nil, fmt.Errorf("v$sysstat execute count: %w", err)
	}

	qps := float64(0)
	if uptime > 0 {
		qps = float64(total) / uptime
	}

	return &types.QPSStats{TotalQueries: &total, UptimeSeconds: &uptime, QPS: &qps}, nil
}

func slowQueries(ctx context.Context, db *sql.DB) (*types.SlowQueries, error) {
	var count int64
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM v$sql WHERE elapsed_time > 1000000").Scan(&count); err != nil {
		return nil, fmt.Errorf("v$sql elapsed_time: %w", err)
	}
	threshold := float64(1)
	return &types.SlowQueries{Count: &count, ThresholdSecond: &threshold}, nil
}

func cacheHitRate(ctx context.Context, db *sql.DB) (*types.CacheHitRate, error) {
	var rate, logicalReads, physicalReads float64
	err := db.QueryRowContext(ctx, `
		SELECT (1 - (phy_reads / (consistent_gets + db_block_gets + phy_reads + 1))) * 100,
		       consistent_gets + db_block_gets, phy_reads
		FROM v$sysstat
		WHERE name = 'physical reads'
	`).Scan(&rate, &logicalReads, &physicalReads)
	if err != nil {
		return nil, fmt.Errorf("v$sysstat physical reads: %w", err)
	}

	hits := int64(logicalReads)
	misses := int64(physicalReads)
	return &types.CacheHitRate{RatePercent: &rate, Hits: &hits, Misses: &misses}, nil
}

func tablespaceUsage(ctx context.Context, db *sql.DB) ([]types.TablespaceUsage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tablespace_name,
		       ROUND(SUM(bytes) / 1024 / 1024, 2),
		       ROUND(SUM(bytes - free_bytes) / 1024 / 1024, 2),
		       ROUND(SUM(free_bytes) / 1024 / 1024, 2),
		       ROUND((SUM(bytes - free_bytes) / SUM(bytes)) * 100, 2)
		FROM (
			SELECT tablespace_name, bytes,
			       CASE WHEN autoextensible = 'YES' THEN maxbytes - bytes ELSE 0 END AS free_bytes
			FROM dba_data_files
		)
		GROUP BY tablespace_name
		ORDER BY 5 DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("dba_data_files: %w", err)
	}
	defer rows.Close()

	var out []types.TablespaceUsage
	for rows.Next() {
		var name string
		var totalMB, usedMB, freeMB, percent float64
		if err := rows.Scan(&name, &totalMB, &usedMB, &freeMB, &percent); err != nil {
			return nil, fmt.Errorf("scan tablespace row: %w", err)
		}
		out = append(out, types.TablespaceUsage{
			Name: name, TotalMB: &totalMB, UsedMB: &usedMB, FreeMB: &freeMB, UsagePercent: &percent,
		})
	}
	return out, rows.Err()
}

func processList(ctx context.Context, db *sql.DB) ([]types.ProcessEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.sid, s.username, s.machine, s.status, q.sql_text, s.logon_time
		FROM v$session s
		LEFT JOIN v$sql q ON s.sql_id = q.sql_id
		WHERE s.username IS NOT NULL
		ORDER BY s.status DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("v$session process list: %w", err)
	}
	defer rows.Close()

	var out []types.ProcessEntry
	for rows.Next() {
		var sid int64
		var user, machine, status, sqlText sql.NullString
		var logonTime *time.Time
		if err := rows.Scan(&sid, &user, &machine, &status, &sqlText, &logonTime); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, types.ProcessEntry{
			SessionID: fmt.Sprintf("%d", sid), User: user.String, Host: machine.String,
			State: status.String, Query: sqlText.String, LoginTime: logonTime,
		})
	}
	return out, rows.Err()
}

func replicationStatus(ctx context.Context, db *sql.DB) (*types.ReplicationStatus, error) {
	var role string
	if err := db.QueryRowContext(ctx, "SELECT database_role FROM v$database").Scan(&role); err != nil {
		return nil, fmt.Errorf("v$database role: %w", err)
	}

	switch role {
	case "PRIMARY":
		var standbyCount int64
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM v$archive_dest WHERE status = 'VALID' AND target != 'LOCAL'").Scan(&standbyCount)
		if err != nil {
			return nil, fmt.Errorf("v$archive_dest: %w", err)
		}
		if standbyCount > 0 {
			return &types.ReplicationStatus{Status: types.ReplicationRunning, Role: role}, nil
		}
		return &types.ReplicationStatus{Status: types.ReplicationNoReplicas, Role: role}, nil
	case "PHYSICAL STANDBY", "LOGICAL STANDBY":
		var recoveryMode string
		err := db.QueryRowContext(ctx,
			"SELECT recovery_mode FROM v$archive_dest_status WHERE dest_id = 1").Scan(&recoveryMode)
		if err != nil {
			return nil, fmt.Errorf("v$archive_dest_status: %w", err)
		}
		status := types.ReplicationError
		if recoveryMode == "MANAGED" {
			status = types.ReplicationRunning
		}
		return &types.ReplicationStatus{Status: status, Role: role}, nil
	default:
		return &types.ReplicationStatus{Status: types.ReplicationSingle, Role: role}, nil
	}
}
