// Package snapshot writes Metrics/Alert records to the date-partitioned JSON
// tree read back by the ingestion pipeline. Every write lands via a
// write-then-rename so readers never observe a partial file.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/elchinoo/dbsentry/pkg/types"
)

// Write serializes snap under rootDir, returning the final path.
// Layout: <rootDir>/<YYYY-MM-DD>/<instance_name>_<YYYYMMDD_HHMMSS>.json.
// A same-second collision for the same instance appends a numeric suffix.
func Write(rootDir string, snap types.Snapshot) (string, error) {
	dateDir := filepath.Join(rootDir, snap.Timestamp.Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", fmt.Errorf("create date directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s", snap.InstanceName, snap.Timestamp.Format("20060102_150405"))
	finalPath := filepath.Join(dateDir, base+".json")
	for suffix := 1; fileExists(finalPath); suffix++ {
		finalPath = filepath.Join(dateDir, fmt.Sprintf("%s_%d.json", base, suffix))
	}

	payload, err := json.MarshalIndent(snapshotDocument(snap), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpFile, err := os.CreateTemp(dateDir, ".tmp-snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(payload); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return finalPath, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// document is the on-disk JSON shape, keeping field names stable for the
// ingestion pipeline regardless of Go struct tag defaults.
type document struct {
	Timestamp    time.Time     `json:"timestamp"`
	MonitorTime  float64       `json:"monitor_time"`
	InstanceName string        `json:"instance_name"`
	Stats        types.Metrics `json:"stats"`
	Alerts       []types.Alert `json:"alerts"`
	Thresholds   types.Rules   `json:"thresholds"`
}

func snapshotDocument(s types.Snapshot) document {
	return document{
		Timestamp:    s.Timestamp,
		MonitorTime:  s.MonitorTime,
		InstanceName: s.InstanceName,
		Stats:        s.Stats,
		Alerts:       s.Alerts,
		Thresholds:   s.Thresholds,
	}
}

// Read parses a snapshot file back into a Snapshot, used by the ingestion
// pipeline's parse stage.
func Read(path string) (types.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("read snapshot file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return types.Snapshot{}, fmt.Errorf("parse snapshot file: %w", err)
	}
	return types.Snapshot{
		Timestamp:    doc.Timestamp,
		MonitorTime:  doc.MonitorTime,
		InstanceName: doc.InstanceName,
		Stats:        doc.Stats,
		Alerts:       doc.Alerts,
		Thresholds:   doc.Thresholds,
	}, nil
}
