package sink

import (
	"testing"
	"time"

	"github.com/elchinoo/dbsentry/pkg/types"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int64) *int64       { return &v }

func TestMainRowArgsConnectionStatusAsIntForOracle(t *testing.T) {
	snap := types.Snapshot{
		InstanceName: "db1",
		Timestamp:    time.Date(2026, 3, 4, 10, 20, 30, 0, time.UTC),
		Stats:        types.Metrics{ConnectionStatus: true},
	}

	args := mainRowArgs(DialectOracleFamily, snap)
	if got, ok := args[3].(int); !ok || got != 1 {
		t.Fatalf("expected connection_status = int(1) for oracle, got %#v", args[3])
	}

	args = mainRowArgs(DialectMySQLFamily, snap)
	if got, ok := args[3].(bool); !ok || !got {
		t.Fatalf("expected connection_status = bool(true) for mysql, got %#v", args[3])
	}
}

func TestMainRowArgsNilFieldsBecomeNil(t *testing.T) {
	snap := types.Snapshot{Stats: types.Metrics{ConnectionStatus: false}}
	args := mainRowArgs(DialectPostgresFamily, snap)
	if args[4] != nil {
		t.Fatalf("expected connection_count to be nil when ConnectionStats is nil, got %#v", args[4])
	}
}

func TestMainRowArgsTablespaceUsesFirstEntry(t *testing.T) {
	snap := types.Snapshot{
		Stats: types.Metrics{
			TablespaceUsage: []types.TablespaceUsage{
				{Name: "data1", UsagePercent: floatPtr(60)},
				{Name: "data2", UsagePercent: floatPtr(80)},
			},
		},
	}
	args := mainRowArgs(DialectPostgresFamily, snap)
	got, ok := args[18].(float64)
	if !ok || got != 60 {
		t.Fatalf("expected the first tablespace's usage percent (60), got %#v", args[18])
	}
}

func TestAlertRowArgsOrder(t *testing.T) {
	a := types.Alert{
		InstanceName: "db1", Level: types.AlertWarning, Message: "high connections",
		Metric: "connection_percent", Value: "85.0000", Threshold: "80.0000",
	}
	args := alertRowArgs(a)
	if args[0] != "db1" || args[2] != types.AlertWarning || args[4] != "connection_percent" {
		t.Fatalf("unexpected alert row args: %#v", args)
	}
}
