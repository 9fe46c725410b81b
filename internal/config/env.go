package config

import (
	"os"
	"strconv"
)

// lookupEnv returns the value of an environment variable and whether it was
// set and non-empty, so a present-but-blank override never clobbers a
// config-file value.
func lookupEnv(key string) (string, bool) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func parsePort(val string) (int, error) {
	return strconv.Atoi(val)
}

// applyRulesEnvOverrides lets the unprefixed threshold environment
// variables override a loaded RulesConfig, mirroring the original monitor
// scripts' own os.getenv-sourced threshold globals.
func applyRulesEnvOverrides(r *RulesConfig) {
	overrideFloat := func(key string, dst *float64) {
		val, ok := lookupEnv(key)
		if !ok {
			return
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
	overrideFloat("MAX_CONNECTIONS_THRESHOLD", &r.MaxConnectionsThreshold)
	overrideFloat("MAX_QPS_THRESHOLD", &r.MaxQPSThreshold)
	overrideFloat("SLOW_QUERY_THRESHOLD", &r.SlowQueryThreshold)
	overrideFloat("CACHE_HIT_RATE_THRESHOLD", &r.CacheHitRateThreshold)
	overrideFloat("TABLESPACE_USAGE_THRESHOLD", &r.TablespaceUsageThreshold)
}
