package archive

import (
	"strings"
	"testing"
)

func TestRecordVersionInitializesRepo(t *testing.T) {
	svc := New(t.TempDir())

	hash, err := svc.RecordVersion("doc_1", Snapshot{
		Version:       1,
		Title:         "Notes",
		Content:       "<p>hello</p>",
		Visibility:    "private",
		ChangedBy:     "Alice",
		ChangeSummary: "Initial version",
	})
	if err != nil {
		t.Fatalf("RecordVersion failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := svc.History("doc_1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(history))
	}
	if history[0].Author != "Alice" {
		t.Errorf("expected author Alice, got %s", history[0].Author)
	}
	if !strings.HasPrefix(history[0].Message, "v1: Initial version") {
		t.Errorf("unexpected commit message %q", history[0].Message)
	}
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	svc := New(t.TempDir())

	for i := 1; i <= 3; i++ {
		snap := Snapshot{Version: i, Title: "T", Content: "c", Visibility: "private", ChangedBy: "Bob", ChangeSummary: "Minor changes"}
		if _, err := svc.RecordVersion("doc_2", snap); err != nil {
			t.Fatalf("RecordVersion %d failed: %v", i, err)
		}
	}

	history, err := svc.History("doc_2", 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if !strings.HasPrefix(history[0].Message, "v3:") {
		t.Errorf("expected newest commit first, got %q", history[0].Message)
	}
}

func TestSnapshotAtRoundTrip(t *testing.T) {
	svc := New(t.TempDir())

	want := Snapshot{
		Version:       2,
		Title:         "Plan",
		Content:       "<p>the plan</p>",
		Visibility:    "public",
		ChangedBy:     "Carol",
		ChangeSummary: "Visibility changed to public",
	}
	hash, err := svc.RecordVersion("doc_3", want)
	if err != nil {
		t.Fatalf("RecordVersion failed: %v", err)
	}

	got, err := svc.SnapshotAt("doc_3", hash)
	if err != nil {
		t.Fatalf("SnapshotAt failed: %v", err)
	}
	if got != want {
		t.Errorf("snapshot mismatch: got %+v want %+v", got, want)
	}
}

func TestHistoryUnknownDocument(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.History("doc_missing", 0); err == nil {
		t.Fatal("expected error for unknown document")
	}
}

func TestRepositoriesAreIsolated(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.RecordVersion("doc_a", Snapshot{Version: 1, Title: "A", ChangedBy: "x", ChangeSummary: "Initial version"}); err != nil {
		t.Fatalf("RecordVersion doc_a failed: %v", err)
	}
	if _, err := svc.RecordVersion("doc_b", Snapshot{Version: 1, Title: "B", ChangedBy: "x", ChangeSummary: "Initial version"}); err != nil {
		t.Fatalf("RecordVersion doc_b failed: %v", err)
	}

	history, err := svc.History("doc_a", 0)
	if err != nil {
		t.Fatalf("History doc_a failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 commit in doc_a, got %d", len(history))
	}
}
