package meter

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPeriodStart(t *testing.T) {
	period := 5 * time.Minute
	ts := time.Date(2026, 1, 1, 12, 7, 30, 0, time.UTC)
	want := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)

	got := PeriodStart(ts, period)
	if !got.Equal(want) {
		t.Errorf("PeriodStart(%v, %v) = %v, want %v", ts, period, got, want)
	}
}

func TestWAL_AppendSnapshotCompact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meter.wal")

	w, err := NewWAL(path, discardLogger())
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}

	e1 := NewEvent("tenant-a", "chat", "openai", 0.01, 0.02, nil, nil)
	e2 := NewEvent("tenant-a", "chat", "openai", 0.02, 0.03, nil, nil)

	if err := w.Append(e1); err != nil {
		t.Fatalf("Append e1: %v", err)
	}
	if err := w.Append(e2); err != nil {
		t.Fatalf("Append e2: %v", err)
	}

	events, offset, err := w.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Snapshot returned %d events, want 2", len(events))
	}

	// An emit during the flush window must survive compaction.
	e3 := NewEvent("tenant-a", "chat", "openai", 0.03, 0.04, nil, nil)
	if err := w.Append(e3); err != nil {
		t.Fatalf("Append e3: %v", err)
	}

	if err := w.Compact(offset, nil); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	remaining, _, err := w.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot after compact: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != e3.ID {
		t.Fatalf("remaining = %+v, want only e3 (%s)", remaining, e3.ID)
	}
}

func TestWAL_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meter.wal")

	if err := os.WriteFile(path, []byte("not json\n{\"id\":\"x\",\"tenant\":\"t\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWAL(path, discardLogger())
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}

	events, _, err := w.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (malformed line should be skipped)", len(events))
	}
}

func TestGroupForAggregation_ExcludesCurrentPeriod(t *testing.T) {
	period := 5 * time.Minute
	now := time.Date(2026, 1, 1, 12, 7, 0, 0, time.UTC) // in period [12:05, 12:10)

	completed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) // period [12:00, 12:05)
	current := time.Date(2026, 1, 1, 12, 6, 0, 0, time.UTC)   // period [12:05, 12:10) -- current

	events := []Event{
		{ID: "1", Tenant: "t", Capability: "chat", Provider: "openai", Cost: 1, Charge: 2, Timestamp: completed},
		{ID: "2", Tenant: "t", Capability: "chat", Provider: "openai", Cost: 1, Charge: 2, Timestamp: completed},
		{ID: "3", Tenant: "t", Capability: "chat", Provider: "openai", Cost: 5, Charge: 9, Timestamp: current},
	}

	groups := GroupForAggregation(events, period, now)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1 (current period must be excluded)", len(groups))
	}
	if groups[0].EventCount != 2 {
		t.Errorf("EventCount = %d, want 2", groups[0].EventCount)
	}
	if groups[0].TotalCost != 2 {
		t.Errorf("TotalCost = %v, want 2", groups[0].TotalCost)
	}
}

func TestHandleFlushFailure_RetryCountSurvivesCompactionAndReachesDLQ(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWAL(filepath.Join(dir, "meter.wal"), discardLogger())
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}
	dlqPath := filepath.Join(dir, "meter.dlq")
	d, err := NewDLQ(dlqPath)
	if err != nil {
		t.Fatalf("NewDLQ: %v", err)
	}

	e := NewEvent("tenant-a", "chat", "openai", 0.01, 0.02, nil, nil)
	if err := w.Append(e); err != nil {
		t.Fatalf("Append: %v", err)
	}

	p := &Pipeline{wal: w, dlq: d, logger: discardLogger(), maxRetries: 3}

	cause := fmt.Errorf("insert failed")

	// Cycle 1 and 2: below maxRetries, event stays in the WAL with its
	// retry count persisted across the Compact rewrite.
	for i := 1; i <= 2; i++ {
		events, offset, err := w.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("cycle %d: got %d events, want 1", i, len(events))
		}
		if events[0].RetryCount() != i-1 {
			t.Fatalf("cycle %d: retry count = %d, want %d (must survive prior compaction)", i, events[0].RetryCount(), i-1)
		}
		if err := p.handleFlushFailure(events, offset, cause); err != nil {
			t.Fatalf("handleFlushFailure: %v", err)
		}
	}

	// Cycle 3: retry count now reaches maxRetries, so the event must be
	// dead-lettered and removed from the WAL instead of retried forever.
	events, offset, err := w.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if events[0].RetryCount() != 2 {
		t.Fatalf("retry count before final cycle = %d, want 2", events[0].RetryCount())
	}
	if err := p.handleFlushFailure(events, offset, cause); err != nil {
		t.Fatalf("handleFlushFailure: %v", err)
	}

	remaining, _, err := w.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot after dead-lettering: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("WAL still has %d events, want 0 (should be dead-lettered)", len(remaining))
	}

	dlqBytes, err := os.ReadFile(dlqPath)
	if err != nil {
		t.Fatalf("reading DLQ: %v", err)
	}
	if len(dlqBytes) == 0 {
		t.Fatal("DLQ file is empty, want the dead-lettered event to have been appended")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
