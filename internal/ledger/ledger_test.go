package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyWhenNoProcessedDir(t *testing.T) {
	root := t.TempDir()
	l, err := Load(root, 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.Count() != 0 {
		t.Fatalf("expected empty ledger, got %d entries", l.Count())
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	l, err := Load(root, 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(root, today, "db1_20260304_101010.json")
	l.Add(today, path)

	if err := l.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := Load(root, 7)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Contains(path) {
		t.Fatalf("expected reloaded ledger to contain %q", path)
	}
}

func TestSavePrunesExpiredBuckets(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(processedDir(root), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	oldDate := time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02")
	oldPath := bucketFile(root, oldDate)
	if err := os.WriteFile(oldPath, []byte(`["/tmp/old.json"]`), 0o644); err != nil {
		t.Fatalf("write old bucket: %v", err)
	}

	l, err := Load(root, 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := l.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected expired bucket to be pruned, stat err = %v", err)
	}
}

func TestDateOfExtractsParentDirectory(t *testing.T) {
	date, ok := DateOf("/var/monitor/2026-03-04/db1_20260304_101010.json")
	if !ok || date != "2026-03-04" {
		t.Fatalf("DateOf = %q, %v", date, ok)
	}
}

func TestValidDateDir(t *testing.T) {
	cases := map[string]bool{
		"2026-03-04": true,
		"processed":  false,
		"2026-3-04":  false,
	}
	for name, want := range cases {
		if got := ValidDateDir(name); got != want {
			t.Errorf("ValidDateDir(%q) = %v, want %v", name, got, want)
		}
	}
}
