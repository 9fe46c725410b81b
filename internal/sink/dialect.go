// Package sink writes ingested snapshots to the two relational tables
// (monitor_main, monitor_alerts) each engine family needs, dispatching on
// dialect for DDL, placeholder style and boolean representation.
package sink

import (
	"fmt"
	"strings"

	"github.com/elchinoo/dbsentry/pkg/types"
)

// Dialect captures everything the sink writer needs to know about one
// target engine family's SQL surface: MySQL uses `?` positional binds,
// PostgreSQL/KingbaseES use `$n` (executed over pgx, which only recognizes
// that style), SQL Server uses `?`, and Oracle/Dameng share godror's `:n`
// binds and lack a native boolean.
type Dialect struct {
	Name             string
	Placeholder      func(pos int) string
	BoolAsInt        bool // Oracle has no native boolean column type
	AutoIncrementDDL string
	TimestampDDL     string
	TextDDL          string
}

var (
	DialectMySQLFamily = Dialect{
		Name:             "mysql",
		Placeholder:      func(int) string { return "?" },
		AutoIncrementDDL: "INT AUTO_INCREMENT PRIMARY KEY",
		TimestampDDL:     "DATETIME",
		TextDDL:          "TEXT",
	}
	DialectPostgresFamily = Dialect{
		Name:             "postgres",
		Placeholder:      func(pos int) string { return fmt.Sprintf("$%d", pos) },
		AutoIncrementDDL: "SERIAL PRIMARY KEY",
		TimestampDDL:     "TIMESTAMP",
		TextDDL:          "TEXT",
	}
	DialectOracleFamily = Dialect{
		Name:             "oracle",
		Placeholder:      func(pos int) string { return fmt.Sprintf(":%d", pos) },
		BoolAsInt:        true,
		AutoIncrementDDL: "NUMBER GENERATED BY DEFAULT ON NULL AS IDENTITY PRIMARY KEY",
		TimestampDDL:     "TIMESTAMP",
		TextDDL:          "CLOB",
	}
	DialectMSSQL = Dialect{
		Name:             "mssql",
		Placeholder:      func(int) string { return "?" },
		AutoIncrementDDL: "INT IDENTITY(1,1) PRIMARY KEY",
		TimestampDDL:     "DATETIME",
		TextDDL:          "TEXT",
	}
)

// ForEngine resolves the Dialect for an engine kind. MongoDB has no SQL
// dialect and is handled separately by the document sink.
func ForEngine(kind types.EngineKind) (Dialect, error) {
	switch kind {
	case types.EngineMySQL:
		return DialectMySQLFamily, nil
	case types.EnginePostgreSQL, types.EngineKingbase:
		// KingbaseES is written over the same pgxpool connection as
		// PostgreSQL, so it must use pgx's $n placeholder style, not
		// MySQL's ?.
		return DialectPostgresFamily, nil
	case types.EngineOracle, types.EngineDameng:
		// Dameng is written over godror, the same driver Oracle uses, so
		// it takes Oracle's :n placeholders and NUMBER(1) booleans.
		return DialectOracleFamily, nil
	case types.EngineMSSQL:
		return DialectMSSQL, nil
	default:
		return Dialect{}, fmt.Errorf("no relational dialect for engine %q", kind)
	}
}

// Placeholders renders n sequential positional placeholders, e.g.
// "$1, $2, $3" for PostgreSQL or "?, ?, ?" for MySQL/SQL Server.
func (d Dialect) Placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.Placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}
