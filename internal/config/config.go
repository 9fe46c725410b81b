// Package config loads the two configuration surfaces of the fleet
// monitor: the instance registry consumed by the scheduler, and the sink
// connection config consumed by the ingestion pipeline.
package config

import (
	"fmt"
	"strings"

	"github.com/elchinoo/dbsentry/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

// InstanceConnConfig holds the connection parameters of one registered
// instance, matching the "config" object of a database_instances entry.
type InstanceConnConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SID      string `mapstructure:"sid"` // Oracle only
}

// InstanceConfig is one entry of the registry's database_instances array.
type InstanceConfig struct {
	Type               string             `mapstructure:"type" validate:"required,oneof=mysql postgresql oracle mssql mongodb dm kb"`
	Name               string             `mapstructure:"name" validate:"required"`
	Enabled            bool               `mapstructure:"enabled"`
	ExpectsReplication bool               `mapstructure:"expects_replication"`
	Config             InstanceConnConfig `mapstructure:"config" validate:"required"`
}

// RulesConfig is the optional "rules:" section of the registry document,
// the declarative threshold table threshold.Evaluate runs against every
// instance. Any field left at zero falls back to threshold.Defaults.
type RulesConfig struct {
	MaxConnectionsThreshold  float64 `mapstructure:"max_connections_threshold"`
	MaxQPSThreshold          float64 `mapstructure:"max_qps_threshold"`
	SlowQueryThreshold       float64 `mapstructure:"slow_query_threshold"`
	CacheHitRateThreshold    float64 `mapstructure:"cache_hit_rate_threshold"`
	TablespaceUsageThreshold float64 `mapstructure:"tablespace_usage_threshold"`
	ReplicationLagThreshold  float64 `mapstructure:"replication_lag_threshold"`
}

// RegistryConfig is the top-level instance registry document.
type RegistryConfig struct {
	ConcurrentExecution bool             `mapstructure:"concurrent_execution"`
	DatabaseInstances   []InstanceConfig `mapstructure:"database_instances" validate:"dive"`
	Rules               RulesConfig      `mapstructure:"rules"`
}

// ThresholdRules converts the loaded rules section into the types.Rules
// value runner/threshold.Evaluate consumes, after letting the
// MAX_CONNECTIONS_THRESHOLD/MAX_QPS_THRESHOLD/SLOW_QUERY_THRESHOLD/
// CACHE_HIT_RATE_THRESHOLD/TABLESPACE_USAGE_THRESHOLD environment variables
// override the file, matching the original monitor scripts' own
// os.getenv-sourced threshold globals.
func (r *RegistryConfig) ThresholdRules() types.Rules {
	rules := r.Rules
	applyRulesEnvOverrides(&rules)
	return types.Rules{
		ConnectionPercentHigh: rules.MaxConnectionsThreshold,
		QPSHigh:               rules.MaxQPSThreshold,
		SlowQueriesPresent:    rules.SlowQueryThreshold,
		CacheHitLow:           rules.CacheHitRateThreshold,
		TablespaceHigh:        rules.TablespaceUsageThreshold,
		ReplicationLagHigh:    rules.ReplicationLagThreshold,
	}
}

// engineKindOf maps a registry "type" string onto the closed EngineKind
// set, translating the abbreviated dm/kb spellings used in registry files.
func engineKindOf(t string) types.EngineKind {
	switch strings.ToLower(t) {
	case "dm":
		return types.EngineDameng
	case "kb":
		return types.EngineKingbase
	default:
		return types.EngineKind(strings.ToLower(t))
	}
}

// Instances converts the loaded registry into the Instance values the
// scheduler dispatches over.
func (r *RegistryConfig) Instances() []types.Instance {
	out := make([]types.Instance, 0, len(r.DatabaseInstances))
	for _, ic := range r.DatabaseInstances {
		out = append(out, types.Instance{
			ID:                 ic.Name,
			Kind:               engineKindOf(ic.Type),
			Address:            types.Address{Host: ic.Config.Host, Port: ic.Config.Port},
			Credentials:        types.Credentials{Username: ic.Config.User, Password: ic.Config.Password},
			Database:           ic.Config.Database,
			SID:                ic.Config.SID,
			Enabled:            ic.Enabled,
			ExpectsReplication: ic.ExpectsReplication,
		})
	}
	return out
}

// LoadRegistry reads and validates the instance registry at path.
func LoadRegistry(path string) (*RegistryConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var cfg RegistryConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}
	for i := range cfg.DatabaseInstances {
		if !engineKindOf(cfg.DatabaseInstances[i].Type).Valid() {
			return nil, fmt.Errorf("instance %q: unsupported engine type %q",
				cfg.DatabaseInstances[i].Name, cfg.DatabaseInstances[i].Type)
		}
	}

	return &cfg, nil
}

// IngestionConfig is the sink connection and tuning config consumed by the
// ingestion pipeline, loaded from --config-file with environment overrides.
type IngestionConfig struct {
	DBType   string `mapstructure:"db_type" validate:"required,oneof=mysql postgresql oracle mssql mongodb dm kb"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SID      string `mapstructure:"sid"`

	MonitorInterval int  `mapstructure:"monitor_interval"`
	AlertEnabled    bool `mapstructure:"alert_enabled"`
}

// EngineKind returns the closed-set EngineKind for DBType.
func (c *IngestionConfig) EngineKind() types.EngineKind {
	return engineKindOf(c.DBType)
}

func defaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		Database:        "monitor",
		MonitorInterval: 60,
		AlertEnabled:    true,
	}
}

// LoadIngestionConfig reads path, applies defaults, then lets environment
// variables named "<ENGINE>_HOST|_PORT|_USER|_PASSWORD|_DATABASE|_SID"
// override the file — matching the original tool's documented precedence
// of environment over config file over built-in default.
func LoadIngestionConfig(path string) (*IngestionConfig, error) {
	v := viper.New()
	cfg := defaultIngestionConfig()
	setViperDefaults(v, cfg)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read ingestion config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse ingestion config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid ingestion config: %w", err)
	}
	if !cfg.EngineKind().Valid() {
		return nil, fmt.Errorf("unsupported db_type %q", cfg.DBType)
	}

	return &cfg, nil
}

func setViperDefaults(v *viper.Viper, cfg IngestionConfig) {
	v.SetDefault("database", cfg.Database)
	v.SetDefault("monitor_interval", cfg.MonitorInterval)
	v.SetDefault("alert_enabled", cfg.AlertEnabled)
}

func applyEnvOverrides(cfg *IngestionConfig) {
	prefix := strings.ToUpper(cfg.DBType)
	override := func(key string, dst *string) {
		if val, ok := lookupEnv(prefix + key); ok {
			*dst = val
		}
	}
	override("_HOST", &cfg.Host)
	override("_USER", &cfg.User)
	override("_PASSWORD", &cfg.Password)
	override("_DATABASE", &cfg.Database)
	override("_SID", &cfg.SID)

	if val, ok := lookupEnv(prefix + "_PORT"); ok {
		if port, err := parsePort(val); err == nil {
			cfg.Port = port
		}
	}
}
