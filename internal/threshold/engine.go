// Package threshold implements the pure rule evaluator that turns a Metrics
// snapshot into a list of Alerts. No I/O happens here; every rule reads a
// single field off Metrics and, when that field is absent, is skipped
// rather than raising an alert.
package threshold

import (
	"fmt"
	"time"

	"github.com/elchinoo/dbsentry/pkg/types"
)

// Defaults mirrors the rule table's default thresholds, used whenever a
// Rules value leaves a field at its zero value.
var Defaults = types.Rules{
	ConnectionPercentHigh: 80,
	QPSHigh:               1000,
	SlowQueriesPresent:    0,
	CacheHitLow:           90,
	TablespaceHigh:        80,
	ReplicationLagHigh:    30,
}

func withDefaults(r types.Rules) types.Rules {
	if r.ConnectionPercentHigh == 0 {
		r.ConnectionPercentHigh = Defaults.ConnectionPercentHigh
	}
	if r.QPSHigh == 0 {
		r.QPSHigh = Defaults.QPSHigh
	}
	if r.CacheHitLow == 0 {
		r.CacheHitLow = Defaults.CacheHitLow
	}
	if r.TablespaceHigh == 0 {
		r.TablespaceHigh = Defaults.TablespaceHigh
	}
	if r.ReplicationLagHigh == 0 {
		r.ReplicationLagHigh = Defaults.ReplicationLagHigh
	}
	return r
}

// Evaluate runs the fixed rule table against m and returns every triggered
// alert. expectsReplication controls whether the replication_broken rule is
// armed for this instance.
func Evaluate(instanceName string, m types.Metrics, rules types.Rules, expectsReplication bool, now time.Time) []types.Alert {
	rules = withDefaults(rules)
	var alerts []types.Alert

	if m.ConnectionStats != nil && m.ConnectionStats.Percent != nil {
		if p := *m.ConnectionStats.Percent; p > rules.ConnectionPercentHigh {
			alerts = append(alerts, newAlert(instanceName, now, types.AlertWarning,
				"connection_percent_high", p, rules.ConnectionPercentHigh,
				fmt.Sprintf("connection usage at %.1f%%, above %.1f%% threshold", p, rules.ConnectionPercentHigh)))
		}
	}

	if m.QPS != nil && m.QPS.QPS != nil {
		if q := *m.QPS.QPS; q > rules.QPSHigh {
			alerts = append(alerts, newAlert(instanceName, now, types.AlertWarning,
				"qps_high", q, rules.QPSHigh,
				fmt.Sprintf("query rate at %.1f qps, above %.1f threshold", q, rules.QPSHigh)))
		}
	}

	if m.SlowQueries != nil && m.SlowQueries.Count != nil {
		if c := *m.SlowQueries.Count; float64(c) > rules.SlowQueriesPresent {
			alerts = append(alerts, newAlert(instanceName, now, types.AlertWarning,
				"slow_queries_present", float64(c), rules.SlowQueriesPresent,
				fmt.Sprintf("%d slow queries present", c)))
		}
	}

	if m.CacheHitRate != nil && m.CacheHitRate.RatePercent != nil {
		if r := *m.CacheHitRate.RatePercent; r < rules.CacheHitLow {
			alerts = append(alerts, newAlert(instanceName, now, types.AlertWarning,
				"cache_hit_low", r, rules.CacheHitLow,
				fmt.Sprintf("cache hit rate at %.1f%%, below %.1f%% threshold", r, rules.CacheHitLow)))
		}
	}

	for _, ts := range m.TablespaceUsage {
		if ts.UsagePercent == nil {
			continue
		}
		if p := *ts.UsagePercent; p > rules.TablespaceHigh {
			a := newAlert(instanceName, now, types.AlertWarning,
				"tablespace_high", p, rules.TablespaceHigh,
				fmt.Sprintf("tablespace %s usage at %.1f%%, above %.1f%% threshold", ts.Name, p, rules.TablespaceHigh))
			a.Extra = ts.Name
			alerts = append(alerts, a)
		}
	}

	if m.Replication != nil {
		if m.Replication.LagSeconds != nil {
			if lag := *m.Replication.LagSeconds; lag > rules.ReplicationLagHigh {
				alerts = append(alerts, newAlert(instanceName, now, types.AlertWarning,
					"replication_lag_high", lag, rules.ReplicationLagHigh,
					fmt.Sprintf("replication lag at %.1fs, above %.1fs threshold", lag, rules.ReplicationLagHigh)))
			}
		}

		if expectsReplication && m.Replication.Status != types.ReplicationRunning {
			alerts = append(alerts, types.Alert{
				InstanceName: instanceName,
				Timestamp:    now,
				Level:        types.AlertCritical,
				Metric:       "replication_broken",
				Message:      fmt.Sprintf("replication status is %q, expected %q", m.Replication.Status, types.ReplicationRunning),
				Value:        m.Replication.Status,
				Threshold:    types.ReplicationRunning,
			})
		}
	}

	return alerts
}

func newAlert(instanceName string, now time.Time, level, metric string, value, threshold float64, message string) types.Alert {
	return types.Alert{
		InstanceName: instanceName,
		Timestamp:    now,
		Level:        level,
		Metric:       metric,
		Message:      message,
		Value:        fmt.Sprintf("%.4f", value),
		Threshold:    fmt.Sprintf("%.4f", threshold),
	}
}
