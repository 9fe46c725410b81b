package sink

import (
	"encoding/json"

	"github.com/elchinoo/dbsentry/pkg/types"
)

// mainRowArgs flattens one Snapshot into monitor_main column order. Oracle
// has no native boolean column, so connection_status is carried as 0/1
// there; every other dialect accepts a Go bool directly.
func mainRowArgs(d Dialect, snap types.Snapshot) []interface{} {
	m := snap.Stats

	var connStatus interface{} = m.ConnectionStatus
	if d.BoolAsInt {
		connStatus = boolToInt(m.ConnectionStatus)
	}

	var slowLogEnabled interface{}
	if m.SlowQueries != nil && m.SlowQueries.LogEnabled != nil {
		slowLogEnabled = boolLabel(*m.SlowQueries.LogEnabled)
	}

	return []interface{}{
		snap.InstanceName, snap.Timestamp, snap.MonitorTime,
		connStatus,
		nilableInt64(connStats(m, func(c types.ConnectionStats) *int64 { return c.Current })),
		nilableFloat64(connStats(m, func(c types.ConnectionStats) *float64 { return c.Percent })),
		nilableInt64(connStats(m, func(c types.ConnectionStats) *int64 { return c.ThreadsRunning })),
		nilableInt64(connStats(m, func(c types.ConnectionStats) *int64 { return c.ThreadsConnected })),
		nilableInt64(connStats(m, func(c types.ConnectionStats) *int64 { return c.ThreadsCreated })),
		nilableInt64(connStats(m, func(c types.ConnectionStats) *int64 { return c.ThreadsCached })),
		qpsField(m, func(q types.QPSStats) *float64 { return q.QPS }),
		qpsFieldInt(m, func(q types.QPSStats) *int64 { return q.TotalQueries }),
		qpsUptime(m),
		slowField(m, func(s types.SlowQueries) *int64 { return s.Count }),
		slowFieldFloat(m, func(s types.SlowQueries) *float64 { return s.ThresholdSecond }),
		slowLogEnabled,
		cacheField(m),
		cacheField(m), // query_cache_hit_rate mirrors the single normalized rate; engines with no distinct buffer/query split report the same value in both columns, matching the original monitor's MySQL-derived schema.
		tablespaceHeadline(m.TablespaceUsage),
		replicationSummary(m.Replication),
	}
}

func alertRowArgs(a types.Alert) []interface{} {
	return []interface{}{a.InstanceName, a.Timestamp, a.Level, a.Message, a.Metric, a.Value, a.Threshold}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boolLabel(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func connStats[T any](m types.Metrics, get func(types.ConnectionStats) *T) *T {
	if m.ConnectionStats == nil {
		return nil
	}
	return get(*m.ConnectionStats)
}

func qpsField(m types.Metrics, get func(types.QPSStats) *float64) interface{} {
	if m.QPS == nil {
		return nil
	}
	return nilableFloat64(get(*m.QPS))
}

func qpsFieldInt(m types.Metrics, get func(types.QPSStats) *int64) interface{} {
	if m.QPS == nil {
		return nil
	}
	return nilableInt64(get(*m.QPS))
}

func qpsUptime(m types.Metrics) interface{} {
	if m.QPS == nil || m.QPS.UptimeSeconds == nil {
		return nil
	}
	return int64(*m.QPS.UptimeSeconds)
}

func slowField(m types.Metrics, get func(types.SlowQueries) *int64) interface{} {
	if m.SlowQueries == nil {
		return nil
	}
	return nilableInt64(get(*m.SlowQueries))
}

func slowFieldFloat(m types.Metrics, get func(types.SlowQueries) *float64) interface{} {
	if m.SlowQueries == nil {
		return nil
	}
	return nilableFloat64(get(*m.SlowQueries))
}

func cacheField(m types.Metrics) interface{} {
	if m.CacheHitRate == nil {
		return nil
	}
	return nilableFloat64(m.CacheHitRate.RatePercent)
}

// tablespaceHeadline takes the first tablespace's usage percent as the
// monitor_main row's representative figure, matching the original
// monitor's own choice of "first entry stands for the instance"; the full
// per-tablespace breakdown only ever existed in the JSON snapshot, never
// in the relational schema.
func tablespaceHeadline(usage []types.TablespaceUsage) interface{} {
	if len(usage) == 0 || usage[0].UsagePercent == nil {
		return nil
	}
	return *usage[0].UsagePercent
}

func replicationSummary(r *types.ReplicationStatus) interface{} {
	if r == nil {
		return nil
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return r.Status
	}
	return string(payload)
}

func nilableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nilableFloat64(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
