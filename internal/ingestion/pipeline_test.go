package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/elchinoo/dbsentry/internal/snapshot"
	"github.com/elchinoo/dbsentry/pkg/types"
)

type fakeSink struct {
	written  []types.Snapshot
	failNext bool
}

func (f *fakeSink) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeSink) WriteBatch(ctx context.Context, snapshots []types.Snapshot) error {
	if f.failNext {
		return errBoom
	}
	f.written = append(f.written, snapshots...)
	return nil
}

func (f *fakeSink) Close() error { return nil }

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }

func writeTestSnapshot(t *testing.T, root, instance string, ts time.Time) {
	t.Helper()
	_, err := snapshot.Write(root, types.Snapshot{
		Timestamp: ts, MonitorTime: float64(ts.Unix()), InstanceName: instance,
		Stats: types.Metrics{ConnectionStatus: true},
	})
	if err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
}

func TestRunOnceCommitsDiscoveredSnapshots(t *testing.T) {
	root := t.TempDir()
	writeTestSnapshot(t, root, "db1", time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	writeTestSnapshot(t, root, "db2", time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC))

	s := &fakeSink{}
	p := New(Config{MonitorDir: root}, s)

	report, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Discovered != 2 || report.Committed != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(s.written) != 2 {
		t.Fatalf("expected 2 snapshots written to sink, got %d", len(s.written))
	}
}

func TestRunOnceSkipsAlreadyProcessedFiles(t *testing.T) {
	root := t.TempDir()
	writeTestSnapshot(t, root, "db1", time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))

	s := &fakeSink{}
	p := New(Config{MonitorDir: root}, s)

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}

	report, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if report.Discovered != 0 {
		t.Fatalf("expected no new candidates on second pass, got %d", report.Discovered)
	}
}

func TestRunOnceEmptyDirProducesEmptyReport(t *testing.T) {
	root := t.TempDir()
	s := &fakeSink{}
	p := New(Config{MonitorDir: root}, s)

	report, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Discovered != 0 || report.Committed != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestRunOneShotRunsExactlyOnce(t *testing.T) {
	root := t.TempDir()
	writeTestSnapshot(t, root, "db1", time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))

	s := &fakeSink{}
	p := New(Config{MonitorDir: root}, s)

	var reports []Report
	if err := p.Run(context.Background(), false, time.Millisecond, func(r Report) { reports = append(reports, r) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected exactly one report in one-shot mode, got %d", len(reports))
	}
}
