package threshold

import (
	"testing"
	"time"

	"github.com/elchinoo/dbsentry/pkg/types"
)

func ptrFloat(v float64) *float64 { return &v }
func ptrInt(v int64) *int64       { return &v }

func TestEvaluateConnectionPercentHigh(t *testing.T) {
	m := types.Metrics{ConnectionStats: &types.ConnectionStats{Percent: ptrFloat(85)}}
	alerts := Evaluate("db1", m, types.Rules{}, false, time.Now())
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Metric != "connection_percent_high" || alerts[0].Level != types.AlertWarning {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
}

func TestEvaluateSkipsNilFields(t *testing.T) {
	m := types.Metrics{}
	alerts := Evaluate("db1", m, types.Rules{}, false, time.Now())
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts for empty metrics, got %d", len(alerts))
	}
}

func TestEvaluateQPSHighUsesCustomRule(t *testing.T) {
	m := types.Metrics{QPS: &types.QPSStats{QPS: ptrFloat(500)}}
	alerts := Evaluate("db1", m, types.Rules{QPSHigh: 100}, false, time.Now())
	if len(alerts) != 1 || alerts[0].Metric != "qps_high" {
		t.Fatalf("expected qps_high alert, got %+v", alerts)
	}
}

func TestEvaluateSlowQueriesPresent(t *testing.T) {
	m := types.Metrics{SlowQueries: &types.SlowQueries{Count: ptrInt(3)}}
	alerts := Evaluate("db1", m, types.Rules{}, false, time.Now())
	if len(alerts) != 1 || alerts[0].Metric != "slow_queries_present" {
		t.Fatalf("expected slow_queries_present alert, got %+v", alerts)
	}
}

func TestEvaluateCacheHitLow(t *testing.T) {
	m := types.Metrics{CacheHitRate: &types.CacheHitRate{RatePercent: ptrFloat(70)}}
	alerts := Evaluate("db1", m, types.Rules{}, false, time.Now())
	if len(alerts) != 1 || alerts[0].Metric != "cache_hit_low" {
		t.Fatalf("expected cache_hit_low alert, got %+v", alerts)
	}
}

func TestEvaluateTablespaceHighPerTablespace(t *testing.T) {
	m := types.Metrics{TablespaceUsage: []types.TablespaceUsage{
		{Name: "data01", UsagePercent: ptrFloat(95)},
		{Name: "data02", UsagePercent: ptrFloat(10)},
	}}
	alerts := Evaluate("db1", m, types.Rules{}, false, time.Now())
	if len(alerts) != 1 || alerts[0].Extra != "data01" {
		t.Fatalf("expected one tablespace_high alert for data01, got %+v", alerts)
	}
}

func TestEvaluateReplicationLagHigh(t *testing.T) {
	m := types.Metrics{Replication: &types.ReplicationStatus{
		Status: types.ReplicationRunning, LagSeconds: ptrFloat(45),
	}}
	alerts := Evaluate("db1", m, types.Rules{}, false, time.Now())
	if len(alerts) != 1 || alerts[0].Metric != "replication_lag_high" {
		t.Fatalf("expected replication_lag_high alert, got %+v", alerts)
	}
}

func TestEvaluateReplicationBrokenOnlyWhenExpected(t *testing.T) {
	m := types.Metrics{Replication: &types.ReplicationStatus{Status: types.ReplicationError}}

	alerts := Evaluate("db1", m, types.Rules{}, false, time.Now())
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts when replication is not expected, got %+v", alerts)
	}

	alerts = Evaluate("db1", m, types.Rules{}, true, time.Now())
	if len(alerts) != 1 || alerts[0].Level != types.AlertCritical || alerts[0].Metric != "replication_broken" {
		t.Fatalf("expected replication_broken CRITICAL alert, got %+v", alerts)
	}
}

func TestEvaluateReplicationBrokenSkippedWhenRunning(t *testing.T) {
	m := types.Metrics{Replication: &types.ReplicationStatus{Status: types.ReplicationRunning}}
	alerts := Evaluate("db1", m, types.Rules{}, true, time.Now())
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts when replication is running, got %+v", alerts)
	}
}
