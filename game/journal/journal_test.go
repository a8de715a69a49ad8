package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriter_RecordAndRead(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	entries := []Entry{
		{Call: "start_level", LevelID: 1, Digest: "d1", Outcome: OutcomeFinalized},
		{Call: "submit_solution", SessionID: "abcd", LevelID: 1, MoveCount: 3, Moves: "↑→→", Digest: "d2", Outcome: OutcomeAborted, Code: 107, Error: "Puzzle not solved"},
	}
	for _, e := range entries {
		if err := w.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "journal-2026-03-01.jsonl.zst")
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	if got[1].Code != 107 || got[1].Moves != "↑→→" || got[1].SessionID != "abcd" {
		t.Errorf("Unexpected entry %+v", got[1])
	}
	if got[0].Time.IsZero() {
		t.Error("Expected time to be stamped")
	}
}

func TestWriter_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	fixed := func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }

	for i := 0; i < 2; i++ {
		w := NewWriter(dir)
		w.now = fixed
		if err := w.Record(Entry{Call: "start_level", LevelID: i + 1, Outcome: OutcomeFinalized}); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	got, err := ReadFile(filepath.Join(dir, "journal-2026-03-02.jsonl.zst"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 2 || got[0].LevelID != 1 || got[1].LevelID != 2 {
		t.Errorf("Expected both frames decoded in order, got %+v", got)
	}
}

func TestWriter_RotatesDaily(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	day := time.Date(2026, 3, 3, 23, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return day }
	if err := w.Record(Entry{Call: "start_level", Outcome: OutcomeFinalized}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	day = day.Add(2 * time.Minute)
	if err := w.Record(Entry{Call: "start_level", Outcome: OutcomeFinalized}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected 2 journal files, got %d", len(files))
	}
}
