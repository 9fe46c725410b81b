package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/elchinoo/dbsentry/pkg/types"
)

func TestWriteLayoutAndContent(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2026, 3, 4, 10, 20, 30, 0, time.UTC)

	path, err := Write(root, types.Snapshot{
		Timestamp: ts, MonitorTime: 123, InstanceName: "db1",
		Stats: types.Metrics{ConnectionStatus: true},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	want := filepath.Join(root, "2026-03-04", "db1_20260304_102030.json")
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.InstanceName != "db1" || !got.Stats.ConnectionStatus {
		t.Fatalf("unexpected round-trip: %+v", got)
	}
}

func TestWriteCollisionAppendsCounter(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2026, 3, 4, 10, 20, 30, 0, time.UTC)
	snap := types.Snapshot{Timestamp: ts, InstanceName: "db1"}

	first, err := Write(root, snap)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	second, err := Write(root, snap)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct paths for same-second collision, got %q twice", first)
	}
}
