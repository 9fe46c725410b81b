package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/godror/godror"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elchinoo/dbsentry/internal/config"
	"github.com/elchinoo/dbsentry/internal/dbconn"
	"github.com/elchinoo/dbsentry/pkg/types"
)

// Sink persists committed snapshots to the configured warehouse target:
// one relational connection shared across every ingestion pass, or the
// document store for MongoDB.
type Sink interface {
	// EnsureSchema creates monitor_main/monitor_alerts if they don't
	// already exist. A no-op for MongoDB, which is schemaless.
	EnsureSchema(ctx context.Context) error
	// WriteBatch writes every snapshot's main row and alert rows. The
	// relational sinks do it in a single transaction, rolling back entirely
	// on any failure; the MongoDB sink has no transaction, so documents
	// inserted before a failure stay.
	WriteBatch(ctx context.Context, snapshots []types.Snapshot) error
	Close() error
}

// Open builds the Sink matching cfg's engine kind.
func Open(ctx context.Context, cfg *config.IngestionConfig) (Sink, error) {
	kind := cfg.EngineKind()
	if kind == types.EngineMongoDB {
		return openMongoSink(ctx, cfg)
	}
	return openRelationalSink(ctx, cfg, kind)
}

func instanceFromConfig(cfg *config.IngestionConfig) types.Instance {
	return types.Instance{
		ID:          "sink",
		Address:     types.Address{Host: cfg.Host, Port: cfg.Port},
		Credentials: types.Credentials{Username: cfg.User, Password: cfg.Password},
		Database:    cfg.Database,
		SID:         cfg.SID,
	}
}

type relationalSink struct {
	dialect Dialect
	db      *sql.DB // nil for the pgx-backed engines
	pool    *pgxpool.Pool
}

func openRelationalSink(ctx context.Context, cfg *config.IngestionConfig, kind types.EngineKind) (Sink, error) {
	dialect, err := ForEngine(kind)
	if err != nil {
		return nil, err
	}
	inst := instanceFromConfig(cfg)

	switch kind {
	case types.EnginePostgreSQL, types.EngineKingbase:
		pool, err := dbconn.OpenPGWirePool(ctx, inst)
		if err != nil {
			return nil, err
		}
		return &relationalSink{dialect: dialect, pool: pool}, nil

	case types.EngineMySQL:
		db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			inst.Credentials.Username, inst.Credentials.Password, inst.Address.Host, inst.Address.Port, inst.Database))
		if err != nil {
			return nil, fmt.Errorf("open sink mysql connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping sink mysql connection: %w", err)
		}
		return &relationalSink{dialect: dialect, db: db}, nil

	case types.EngineOracle, types.EngineDameng:
		// Dameng has no Go-native driver; it shares godror's wire plumbing
		// with Oracle the same way internal/collector/dameng does.
		db, err := sql.Open("godror", fmt.Sprintf(`user="%s" password="%s" connectString="%s:%d/%s"`,
			inst.Credentials.Username, inst.Credentials.Password, inst.Address.Host, inst.Address.Port, inst.SID))
		if err != nil {
			return nil, fmt.Errorf("open sink godror-family connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping sink godror-family connection: %w", err)
		}
		return &relationalSink{dialect: dialect, db: db}, nil

	case types.EngineMSSQL:
		db, err := sql.Open("sqlserver", fmt.Sprintf("server=%s;port=%d;user id=%s;password=%s;database=%s;dial timeout=10",
			inst.Address.Host, inst.Address.Port, inst.Credentials.Username, inst.Credentials.Password, inst.Database))
		if err != nil {
			return nil, fmt.Errorf("open sink mssql connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping sink mssql connection: %w", err)
		}
		return &relationalSink{dialect: dialect, db: db}, nil

	default:
		return nil, fmt.Errorf("unsupported sink engine %q", kind)
	}
}

func (s *relationalSink) EnsureSchema(ctx context.Context) error {
	mainDDL := createMainTableDDL(s.dialect)
	alertDDL := createAlertsTableDDL(s.dialect)

	if s.pool != nil {
		if _, err := s.pool.Exec(ctx, mainDDL); err != nil {
			return fmt.Errorf("create monitor_main: %w", err)
		}
		if _, err := s.pool.Exec(ctx, alertDDL); err != nil {
			return fmt.Errorf("create monitor_alerts: %w", err)
		}
		return nil
	}

	if _, err := s.db.ExecContext(ctx, mainDDL); err != nil {
		return fmt.Errorf("create monitor_main: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, alertDDL); err != nil {
		return fmt.Errorf("create monitor_alerts: %w", err)
	}
	return nil
}

func (s *relationalSink) WriteBatch(ctx context.Context, snapshots []types.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	if s.pool != nil {
		return s.writeBatchPGX(ctx, snapshots)
	}
	return s.writeBatchSQL(ctx, snapshots)
}

func (s *relationalSink) writeBatchPGX(ctx context.Context, snapshots []types.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin sink transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	mainSQL := insertMainSQL(s.dialect, "monitor_main")
	alertSQL := insertAlertSQL(s.dialect, "monitor_alerts")

	for _, snap := range snapshots {
		if _, err := tx.Exec(ctx, mainSQL, mainRowArgs(s.dialect, snap)...); err != nil {
			return fmt.Errorf("insert monitor_main row for %s: %w", snap.InstanceName, err)
		}
		for _, alert := range snap.Alerts {
			if _, err := tx.Exec(ctx, alertSQL, alertRowArgs(alert)...); err != nil {
				return fmt.Errorf("insert monitor_alerts row for %s: %w", snap.InstanceName, err)
			}
		}
	}
	return tx.Commit(ctx)
}

func (s *relationalSink) writeBatchSQL(ctx context.Context, snapshots []types.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sink transaction: %w", err)
	}
	defer tx.Rollback()

	mainSQL := insertMainSQL(s.dialect, "monitor_main")
	alertSQL := insertAlertSQL(s.dialect, "monitor_alerts")

	for _, snap := range snapshots {
		if _, err := tx.ExecContext(ctx, mainSQL, mainRowArgs(s.dialect, snap)...); err != nil {
			return fmt.Errorf("insert monitor_main row for %s: %w", snap.InstanceName, err)
		}
		for _, alert := range snap.Alerts {
			if _, err := tx.ExecContext(ctx, alertSQL, alertRowArgs(alert)...); err != nil {
				return fmt.Errorf("insert monitor_alerts row for %s: %w", snap.InstanceName, err)
			}
		}
	}
	return tx.Commit()
}

func (s *relationalSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
		return nil
	}
	return s.db.Close()
}
