package sink

import (
	"strings"
	"testing"

	"github.com/elchinoo/dbsentry/pkg/types"
)

func TestForEngineMapsDialects(t *testing.T) {
	cases := map[types.EngineKind]string{
		types.EngineMySQL:      "mysql",
		types.EngineDameng:     "oracle",
		types.EngineKingbase:   "postgres",
		types.EnginePostgreSQL: "postgres",
		types.EngineOracle:     "oracle",
		types.EngineMSSQL:      "mssql",
	}
	for kind, want := range cases {
		d, err := ForEngine(kind)
		if err != nil {
			t.Fatalf("ForEngine(%s): %v", kind, err)
		}
		if d.Name != want {
			t.Errorf("ForEngine(%s).Name = %q, want %q", kind, d.Name, want)
		}
	}

	if _, err := ForEngine(types.EngineMongoDB); err == nil {
		t.Fatal("expected an error resolving a relational dialect for mongodb")
	}
}

func TestPlaceholdersPerDialect(t *testing.T) {
	if got := DialectMySQLFamily.Placeholders(3); got != "?, ?, ?" {
		t.Errorf("mysql placeholders = %q", got)
	}
	if got := DialectPostgresFamily.Placeholders(3); got != "$1, $2, $3" {
		t.Errorf("postgres placeholders = %q", got)
	}
	if got := DialectOracleFamily.Placeholders(3); got != ":1, :2, :3" {
		t.Errorf("oracle placeholders = %q", got)
	}
	if got := DialectMSSQL.Placeholders(2); got != "?, ?" {
		t.Errorf("mssql placeholders = %q", got)
	}
}

func TestCreateMainTableDDLMSSQLUsesExistenceGuard(t *testing.T) {
	ddl := createMainTableDDL(DialectMSSQL)
	if !strings.Contains(ddl, "IF NOT EXISTS (SELECT * FROM sysobjects") {
		t.Fatalf("expected mssql DDL to use the sysobjects guard, got: %s", ddl)
	}
}

func TestCreateMainTableDDLOtherDialectsUseIfNotExists(t *testing.T) {
	for _, d := range []Dialect{DialectMySQLFamily, DialectPostgresFamily, DialectOracleFamily} {
		ddl := createMainTableDDL(d)
		if !strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS monitor_main") {
			t.Errorf("%s: expected CREATE TABLE IF NOT EXISTS prefix, got: %s", d.Name, ddl)
		}
	}
}

func TestInsertMainSQLColumnAndPlaceholderCounts(t *testing.T) {
	stmt := insertMainSQL(DialectPostgresFamily, "monitor_main")
	if !strings.Contains(stmt, "$20") {
		t.Fatalf("expected 20 placeholders in insert statement, got: %s", stmt)
	}
}

// KingbaseES rows are written over the same pgxpool.Tx as PostgreSQL, which
// only accepts $n binds; a ? placeholder here would fail at Exec time.
func TestKingbaseUsesPGXPlaceholderStyle(t *testing.T) {
	d, err := ForEngine(types.EngineKingbase)
	if err != nil {
		t.Fatalf("ForEngine(kingbase): %v", err)
	}
	if got := d.Placeholders(2); got != "$1, $2" {
		t.Fatalf("kingbase placeholders = %q, want $n style", got)
	}
}

// Dameng rows are written over godror, the same driver Oracle uses, which
// only accepts :n binds.
func TestDamengUsesGodrorPlaceholderStyle(t *testing.T) {
	d, err := ForEngine(types.EngineDameng)
	if err != nil {
		t.Fatalf("ForEngine(dameng): %v", err)
	}
	if got := d.Placeholders(2); got != ":1, :2" {
		t.Fatalf("dameng placeholders = %q, want :n style", got)
	}
	if !d.BoolAsInt {
		t.Fatalf("expected dameng dialect to use NUMBER(1) booleans like oracle")
	}
}
