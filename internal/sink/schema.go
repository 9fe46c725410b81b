package sink

import "fmt"

// mainTableColumns is the monitor_main column list, identical across every
// relational dialect; only the per-column type mapping and autoincrement
// clause differ, both supplied by Dialect.
var mainTableColumns = []string{
	"instance_name", "timestamp", "monitor_time",
	"connection_status", "connection_count", "connection_percent",
	"threads_running", "threads_connected", "threads_created", "threads_cached",
	"qps", "total_queries", "uptime",
	"slow_queries", "long_query_time", "slow_query_log",
	"innodb_cache_hit_rate", "query_cache_hit_rate",
	"tablespace_usage", "replication_status",
}

var alertTableColumns = []string{
	"instance_name", "timestamp", "level", "message", "metric", "value", "threshold",
}

// createMainTableDDL renders the monitor_main CREATE TABLE statement for d.
func createMainTableDDL(d Dialect) string {
	boolType := "BOOLEAN"
	if d.BoolAsInt {
		boolType = "NUMBER(1)"
	}
	if d.Name == "mysql" {
		boolType = "BOOLEAN"
	}
	if d.Name == "mssql" {
		boolType = "BIT"
	}

	floatType := "DOUBLE PRECISION"
	switch d.Name {
	case "mysql":
		floatType = "DOUBLE"
	case "oracle":
		floatType = "NUMBER(15,2)"
	case "mssql":
		floatType = "FLOAT"
	}

	body := fmt.Sprintf(`(
    id %s,
    instance_name VARCHAR(255) NOT NULL,
    timestamp %s NOT NULL,
    monitor_time %s,
    connection_status %s,
    connection_count BIGINT,
    connection_percent %s,
    threads_running BIGINT,
    threads_connected BIGINT,
    threads_created BIGINT,
    threads_cached BIGINT,
    qps %s,
    total_queries BIGINT,
    uptime %s,
    slow_queries BIGINT,
    long_query_time %s,
    slow_query_log %s,
    innodb_cache_hit_rate %s,
    query_cache_hit_rate %s,
    tablespace_usage %s,
    replication_status %s,
    created_at %s
)`, d.AutoIncrementDDL, d.TimestampDDL, floatType, boolType, floatType,
		floatType, d.TimestampDDL, floatType, boolType, floatType, floatType, d.TextDDL, d.TextDDL, d.TimestampDDL)

	return createTableStatement(d, "monitor_main", body)
}

// createAlertsTableDDL renders the monitor_alerts CREATE TABLE statement for d.
func createAlertsTableDDL(d Dialect) string {
	body := fmt.Sprintf(`(
    id %s,
    instance_name VARCHAR(255) NOT NULL,
    timestamp %s NOT NULL,
    level VARCHAR(16) NOT NULL,
    message %s,
    metric VARCHAR(64),
    value VARCHAR(64),
    threshold VARCHAR(64),
    created_at %s
)`, d.AutoIncrementDDL, d.TimestampDDL, d.TextDDL, d.TimestampDDL)

	return createTableStatement(d, "monitor_alerts", body)
}

// createTableStatement wraps body in the dialect-appropriate
// create-if-missing form. SQL Server has no CREATE TABLE IF NOT EXISTS, so
// it needs the sysobjects existence guard the original monitor used.
func createTableStatement(d Dialect, table, body string) string {
	if d.Name == "mssql" {
		return fmt.Sprintf(
			"IF NOT EXISTS (SELECT * FROM sysobjects WHERE name='%s' AND xtype='U') CREATE TABLE %s %s",
			table, table, body)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", table, body)
}

func insertMainSQL(d Dialect, table string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, join(mainTableColumns), d.Placeholders(len(mainTableColumns)))
}

func insertAlertSQL(d Dialect, table string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, join(alertTableColumns), d.Placeholders(len(alertTableColumns)))
}

func join(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}
