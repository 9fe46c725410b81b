// Package dameng implements the Dameng (DM) engine adapter. No DM-specific
// Go driver exists in the wider ecosystem; DM's SQL dialect and V$ catalog
// views are close enough to Oracle's that this adapter reuses godror's
// database/sql plumbing for connection handling while keeping DM's own
// V$DM_INI/V$SESSION/V$INSTANCE/V$REP_LINK query shapes.
package dameng

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/godror/godror"

	"github.com/elchinoo/dbsentry/internal/collector"
	"github.com/elchinoo/dbsentry/pkg/types"
)

// Adapter implements collector.Adapter for Dameng.
type Adapter struct{}

// New returns a Dameng adapter.
func New() *Adapter { return &Adapter{} }

type handle struct {
	db *sql.DB
}

func (h *handle) Close() error { return h.db.Close() }

func dsn(inst types.Instance) string {
	return fmt.Sprintf(`user="%s" password="%s" connectString="%s:%d/%s"`,
		inst.Credentials.Username, inst.Credentials.Password,
		inst.Address.Host, inst.Address.Port, inst.Database)
}

// Open opens a connection pool to inst.
func (a *Adapter) Open(ctx context.Context, inst types.Instance) (collector.Handle, error) {
	db, err := sql.Open("godror", dsn(inst))
	if err != nil {
		return nil, fmt.Errorf("open dameng: %w", err)
	}
	db.SetMaxOpenConns(4)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping dameng: %w", err)
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

func connectionStats(ctx context.Context, db *sql.DB) (*types.ConnectionStats, error) {
	var maxSessions int64
	err := db.QueryRowContext(ctx,
		"SELECT PARA_VALUE FROM V$DM_INI WHERE PARA_NAME = 'MAX_SESSIONS'").Scan(&maxSessions)
	if err != nil {
		return nil, fmt.Errorf("v$dm_ini max_sessions: %w", err)
	}

	var current int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM V$SESSION").Scan(&current); err != nil {
		return nil, fmt.Errorf("v$session count: %w", err)
	}

	var active int64
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM V$SESSION WHERE STATE = 'ACTIVE'").Scan(&active); err != nil {
		return nil, fmt.Errorf("v$session active count: %w", err)
	}

	percent := float64(0)
	if maxSessions > 0 {
		percent = float64(current) / float64(maxSessions) * 100
	}

	return &types.ConnectionStats{Max: &maxSessions, Current: &current, Percent: &percent, Active: &active}, nil
}

func queryStats(ctx context.Context, db *sql.DB) (*types.QPSStats, error) {
	var total int64
	var uptime float64
	err := db.QueryRowContext(ctx, `
		SELECT SUM(SESS_SQL_COUNT), DATEDIFF(SECOND, START_TIME, SYSDATE)
		FROM V$INSTANCE
	`).Scan(&total, &uptime)
	if err != nil {
		return nil, fmt.Errorf("v$instance: %w", err)
	}

	qps := float64(0)
	if uptime > 0 {
		qps = float64(total) / uptime
	}

	return &types.QPSStats{TotalQueries: &total, UptimeSeconds: &uptime, QPS: &qps}, nil
}

func slowQueries(ctx context.Context, db *sql.DB) (*types.SlowQueries, error) {
	var threshold float64
	err := db.QueryRowContext(ctx,
		"SELECT PARA_VALUE FROM V$DM_INI WHERE PARA_NAME = 'SLOW_QUERY_TIME'").Scan(&threshold)
	if err != nil {
		return nil, fmt.Errorf("v$dm_ini slow_query_time: %w", err)
	}

	var count int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM V$LONG_EXEC_SQL").Scan(&count); err != nil {
		return nil, fmt.Errorf("v$long_exec_sql: %w", err)
	}

	return &types.SlowQueries{Count: &count, ThresholdSecond: &threshold}, nil
}

func cacheHitRate(ctx context.Context, db *sql.DB) (*types.CacheHitRate, error) {
	var rate, logicalReads, physicalReads float64
	err := db.QueryRowContext(ctx, `
		SELECT (100 - (PHY_READS / (LOGICAL_READS + 1) * 100)), LOGICAL_READS, PHY_READS
		FROM V$BUFFERPOOL
		WHERE BP_NAME = 'DEFAULT'
	`).Scan(&rate, &logicalReads, &physicalReads)
	if err != nil {
		return nil, fmt.Errorf("v$bufferpool: %w", err)
	}

	hits := int64(logicalReads)
	misses := int64(physicalReads)
	return &types.CacheHitRate{RatePercent: &rate, Hits: &hits, Misses: &misses}, nil
}

func tablespaceUsage(ctx context.Context, db *sql.DB) ([]types.TablespaceUsage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT TABLESPACE_NAME,
		       TOTAL_SIZE * PAGE_SIZE / 1024 / 1024,
		       (TOTAL_SIZE - FREE_SIZE) * PAGE_SIZE / 1024 / 1024,
		       FREE_SIZE * PAGE_SIZE / 1024 / 1024,
		       (1 - FREE_SIZE / TOTAL_SIZE) * 100
		FROM V$TABLESPACE
	`)
	if err != nil {
		return nil, fmt.Errorf("v$tablespace: %w", err)
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
		SELECT SESS_ID, USERNAME, CLIENT_IP, STATE, SQL_TEXT, LOGIN_TIME
		FROM V$SESSION
		WHERE SESS_ID != SYS_CONTEXT('USERENV', 'SESSIONID')
	`)
	if err != nil {
		return nil, fmt.Errorf("v$session process list: %w", err)
	}
	defer rows.Close()

	var out []types.ProcessEntry
	for rows.Next() {
		var sessID int64
		var user, clientIP, state, sqlText sql.NullString
		var loginTime *time.Time
		if err := rows.Scan(&sessID, &user, &clientIP, &state, &sqlText, &loginTime); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, types.ProcessEntry{
			SessionID: fmt.Sprintf("%d", sessID), User: user.String, Host: clientIP.String,
			State: state.String, Query: sqlText.String, LoginTime: loginTime,
		})
	}
	return out, rows.Err()
}

func replicationStatus(ctx context.Context, db *sql.DB) (*types.ReplicationStatus, error) {
	var role string
	if err := db.QueryRowContext(ctx, "SELECT ROLE FROM V$INSTANCE").Scan(&role); err != nil {
		return nil, fmt.Errorf("v$instance role: %w", err)
	}

	switch role {
	case "PRIMARY":
		var repCount int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM V$REP_LINK").Scan(&repCount); err != nil {
			return nil, fmt.Errorf("v$rep_link count: %w", err)
		}
		if repCount == 0 {
			return &types.ReplicationStatus{Status: types.ReplicationNoReplicas, Role: role}, nil
		}
		var repState string
		if err := db.QueryRowContext(ctx, "SELECT STATE FROM V$REP_LINK").Scan(&repState); err != nil {
			return nil, fmt.Errorf("v$rep_link state: %w", err)
		}
		status := types.ReplicationError
		if repState == "VALID" {
			status = types.ReplicationRunning
		}
		return &types.ReplicationStatus{Status: status, Role: role}, nil
	case "STANDBY":
		var repState string
		if err := db.QueryRowContext(ctx, "SELECT STATE FROM V$REP_LINK").Scan(&repState); err != nil {
			return nil, fmt.Errorf("v$rep_link state: %w", err)
		}
		status := types.ReplicationError
		if repState == "VALID" {
			status = types.ReplicationRunning
		}
		return &types.ReplicationStatus{Status: status, Role: role}, nil
	default:
		return &types.ReplicationStatus{Status: types.ReplicationSingle, Role: role}, nil
	}
}
