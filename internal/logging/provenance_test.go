package logging

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crowdcal/crowdcal/internal/state"
)

func tempDB(t *testing.T) *sql.DB {
	t.Helper()
	s, err := state.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s.DB()
}

func TestLogBatchAndList(t *testing.T) {
	db := tempDB(t)
	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	last := first.Add(45 * time.Minute)

	entries := []BatchEntry{
		{SnapshotID: "snap-1", FirstEvent: first, LastEvent: last, Seen: 120, Skipped: 3, Processed: 117, HasMore: true},
		{SnapshotID: "snap-2", Seen: 0, Skipped: 0, Processed: 0, HasMore: false, Note: "feed exhausted"},
	}
	for _, e := range entries {
		if err := LogBatch(db, e); err != nil {
			t.Fatalf("LogBatch: %v", err)
		}
	}

	got, err := ListBatches(db, 10)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}

	// Newest first.
	if got[0].SnapshotID != "snap-2" || got[1].SnapshotID != "snap-1" {
		t.Fatalf("unexpected order: %s, %s", got[0].SnapshotID, got[1].SnapshotID)
	}
	if got[0].Note != "feed exhausted" {
		t.Fatalf("note lost: %q", got[0].Note)
	}
	if !got[0].FirstEvent.IsZero() || !got[0].LastEvent.IsZero() {
		t.Fatalf("empty batch should keep zero event times: %+v", got[0])
	}

	full := got[1]
	if !full.FirstEvent.Equal(first) || !full.LastEvent.Equal(last) {
		t.Fatalf("event window lost: %+v", full)
	}
	if full.Seen != 120 || full.Skipped != 3 || full.Processed != 117 || !full.HasMore {
		t.Fatalf("counters lost: %+v", full)
	}
	if full.StartedAt.IsZero() {
		t.Fatal("expected StartedAt to be filled in")
	}
}

func TestLogBatchFailsWithoutSchema(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := LogBatch(db, BatchEntry{SnapshotID: "x"}); err == nil {
		t.Fatal("expected error when batch_log table is missing")
	}
	if _, err := ListBatches(db, 10); err == nil {
		t.Fatal("expected error when batch_log table is missing")
	}
}
