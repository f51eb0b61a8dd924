package joblog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kettleworks/dirigent/internal/storage"
)

func openLog(t *testing.T) *Log {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestRecordAndList(t *testing.T) {
	t.Parallel()

	l := openLog(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{JobID: "j1", Component: "image", Action: "pull", Status: StatusSucceeded, Command: "podman image pull x", CompletedAt: base},
		{JobID: "j2", Component: "image", Action: "tag", Status: StatusFailed, Error: "exit 125", CompletedAt: base.Add(time.Minute)},
		{JobID: "j3", Component: "image", Action: "pull", Status: StatusCached, CompletedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := l.Record(context.Background(), e); err != nil {
			t.Fatalf("Record(%s): %v", e.JobID, err)
		}
	}

	got, err := l.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	// Newest first.
	if got[0].JobID != "j3" || got[2].JobID != "j1" {
		t.Fatalf("unexpected order: %s, %s, %s", got[0].JobID, got[1].JobID, got[2].JobID)
	}
	if got[1].Status != StatusFailed || got[1].Error != "exit 125" {
		t.Fatalf("unexpected failed entry: %+v", got[1])
	}
}

func TestRecordValidation(t *testing.T) {
	t.Parallel()

	l := openLog(t)

	if err := l.Record(context.Background(), Entry{Component: "image", Status: StatusFailed}); err == nil {
		t.Fatalf("expected error for empty job id")
	}
	if err := l.Record(context.Background(), Entry{JobID: "x", Status: StatusFailed}); err == nil {
		t.Fatalf("expected error for empty component")
	}
	if err := l.Record(context.Background(), Entry{JobID: "x", Component: "image", Status: "processing"}); err == nil {
		t.Fatalf("expected error for non-terminal status")
	}
}

func TestRecordRejectsDuplicateJobID(t *testing.T) {
	t.Parallel()

	l := openLog(t)
	e := Entry{JobID: "dup", Component: "image", Status: StatusSucceeded}
	if err := l.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(context.Background(), e); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}
}

func TestRecordTruncatesLongOutput(t *testing.T) {
	t.Parallel()

	l := openLog(t)
	e := Entry{
		JobID:     "big",
		Component: "image",
		Status:    StatusSucceeded,
		Output:    strings.Repeat("a", maxExcerptBytes+100),
	}
	if err := l.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := l.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got[0].Output) != maxExcerptBytes {
		t.Fatalf("expected truncated output, got %d bytes", len(got[0].Output))
	}
}

func TestListLimitDefaults(t *testing.T) {
	t.Parallel()

	l := openLog(t)
	if _, err := l.List(context.Background(), 0); err != nil {
		t.Fatalf("List with zero limit: %v", err)
	}
}
