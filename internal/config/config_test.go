package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/elchinoo/dbsentry/pkg/types"
)

func TestLoadRegistry(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "registry.yaml")

	configContent := `
concurrent_execution: true
database_instances:
  - type: postgresql
    name: pg-primary
    enabled: true
    expects_replication: true
    config:
      host: "localhost"
      port: 5432
      user: "monitor"
      password: "secret"
      database: "appdb"
  - type: dm
    name: dm-reporting
    enabled: true
    config:
      host: "10.0.0.5"
      port: 5236
      user: "SYSDBA"
      password: "secret"
      sid: "DMSERVER"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	cfg, err := LoadRegistry(configFile)
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}

	if !cfg.ConcurrentExecution {
		t.Error("expected concurrent_execution true")
	}
	if len(cfg.DatabaseInstances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(cfg.DatabaseInstances))
	}

	instances := cfg.Instances()
	if instances[0].Kind != types.EnginePostgreSQL {
		t.Errorf("expected postgresql kind, got %s", instances[0].Kind)
	}
	if !instances[0].ExpectsReplication {
		t.Error("expected pg-primary to expect replication")
	}
	if instances[1].Kind != types.EngineDameng {
		t.Errorf("expected dm to map to dameng, got %s", instances[1].Kind)
	}
	if instances[1].SID != "DMSERVER" {
		t.Errorf("expected SID DMSERVER, got %s", instances[1].SID)
	}
}

func TestLoadRegistryRejectsUnsupportedEngine(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "registry.yaml")

	configContent := `
database_instances:
  - type: sqlite
    name: bad-instance
    enabled: true
    config:
      host: "localhost"
      port: 1
      user: "u"
`
	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	if _, err := LoadRegistry(configFile); err == nil {
		t.Fatal("expected an error for unsupported engine type")
	}
}

func TestRegistryThresholdRulesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "registry.yaml")

	configContent := `
database_instances:
  - type: postgresql
    name: pg-primary
    enabled: true
    config:
      host: "localhost"
      port: 5432
      user: "monitor"
rules:
  max_connections_threshold: 75
  max_qps_threshold: 500
  cache_hit_rate_threshold: 95
  tablespace_usage_threshold: 85
`
	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	cfg, err := LoadRegistry(configFile)
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}

	rules := cfg.ThresholdRules()
	if rules.ConnectionPercentHigh != 75 {
		t.Errorf("expected connection threshold 75, got %v", rules.ConnectionPercentHigh)
	}
	if rules.QPSHigh != 500 {
		t.Errorf("expected qps threshold 500, got %v", rules.QPSHigh)
	}
	if rules.CacheHitLow != 95 {
		t.Errorf("expected cache hit threshold 95, got %v", rules.CacheHitLow)
	}
	if rules.TablespaceHigh != 85 {
		t.Errorf("expected tablespace threshold 85, got %v", rules.TablespaceHigh)
	}
}

func TestRegistryThresholdRulesEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "registry.yaml")

	configContent := `
database_instances:
  - type: postgresql
    name: pg-primary
    enabled: true
    config:
      host: "localhost"
      port: 5432
      user: "monitor"
rules:
  max_connections_threshold: 75
`
	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	t.Setenv("MAX_CONNECTIONS_THRESHOLD", "60")

	cfg, err := LoadRegistry(configFile)
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}

	if rules := cfg.ThresholdRules(); rules.ConnectionPercentHigh != 60 {
		t.Errorf("expected env override 60, got %v", rules.ConnectionPercentHigh)
	}
}

func TestLoadIngestionConfigAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "ingest.yaml")

	configContent := `
db_type: postgresql
host: "localhost"
port: 5432
user: "monitor"
password: "secret"
`
	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	cfg, err := LoadIngestionConfig(configFile)
	if err != nil {
		t.Fatalf("failed to load ingestion config: %v", err)
	}

	if cfg.Database != "monitor" {
		t.Errorf("expected default database 'monitor', got %s", cfg.Database)
	}
	if cfg.MonitorInterval != 60 {
		t.Errorf("expected default monitor_interval 60, got %d", cfg.MonitorInterval)
	}
	if cfg.EngineKind() != types.EnginePostgreSQL {
		t.Errorf("expected postgresql engine kind, got %s", cfg.EngineKind())
	}
}

func TestLoadIngestionConfigEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "ingest.yaml")

	configContent := `
db_type: mysql
host: "localhost"
port: 3306
user: "monitor"
password: "secret"
`
	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	t.Setenv("MYSQL_HOST", "db.internal")
	t.Setenv("MYSQL_PORT", "3307")

	cfg, err := LoadIngestionConfig(configFile)
	if err != nil {
		t.Fatalf("failed to load ingestion config: %v", err)
	}

	if cfg.Host != "db.internal" {
		t.Errorf("expected env override host 'db.internal', got %s", cfg.Host)
	}
	if cfg.Port != 3307 {
		t.Errorf("expected env override port 3307, got %d", cfg.Port)
	}
}
