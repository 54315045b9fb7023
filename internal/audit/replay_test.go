package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTestLog creates a temp decision log with known entries for testing.
func writeTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	base := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Timestamp: base.Format(TimestampFormat), Stage: "pre_scan", SourceHash: "sha256:s1", Level: "standard", Decision: "allow", DurationMS: 1},
		{Timestamp: base.Add(2 * time.Second).Format(TimestampFormat), Stage: "validate", SourceHash: "sha256:s1", Level: "standard", Decision: "allow", DurationMS: 2},
		{Timestamp: base.Add(4 * time.Second).Format(TimestampFormat), Stage: "score", SourceHash: "sha256:s1", Level: "standard", Decision: "allow", Score: 0.31, DurationMS: 12},
		{Timestamp: base.Add(6 * time.Second).Format(TimestampFormat), Stage: "score", SourceHash: "sha256:s2", Level: "strict", Decision: "block", Reason: "score at or above block threshold", Score: 0.93, DurationMS: 15},
		{Timestamp: base.Add(8 * time.Second).Format(TimestampFormat), Stage: "execute", SourceHash: "sha256:s1", Level: "standard", Decision: "error", ErrorKind: "timeout", DurationMS: 5000},
		{Timestamp: base.Add(10 * time.Second).Format(TimestampFormat), Stage: "execute", SourceHash: "sha256:s3", Level: "standard", Decision: "allow", DurationMS: 40},
	}

	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatal(err)
		}
	}

	return path
}

func TestReplayUnfilteredReturnsAll(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Entries) != 6 {
		t.Errorf("expected 6 entries, got %d", len(result.Entries))
	}
	s := result.Summary
	if s.Total != 6 {
		t.Errorf("total: expected 6, got %d", s.Total)
	}
	if s.AllowCount != 4 {
		t.Errorf("allow: expected 4, got %d", s.AllowCount)
	}
	if s.BlockCount != 1 {
		t.Errorf("block: expected 1, got %d", s.BlockCount)
	}
	if s.ErrorCount != 1 {
		t.Errorf("error: expected 1, got %d", s.ErrorCount)
	}
}

func TestReplayFiltersByStage(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{Stage: "score"})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Entries) != 2 {
		t.Errorf("expected 2 score entries, got %d", len(result.Entries))
	}
	for _, e := range result.Entries {
		if e.Stage != "score" {
			t.Errorf("unexpected stage: %s", e.Stage)
		}
	}
}

func TestReplayFiltersByDecision(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{Decision: "block"})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 block entry, got %d", len(result.Entries))
	}
	if result.Entries[0].Score != 0.93 {
		t.Errorf("expected score 0.93, got %v", result.Entries[0].Score)
	}
}

func TestReplayTimeRangeFrom(t *testing.T) {
	path := writeTestLog(t)

	from := time.Date(2025, 1, 15, 14, 0, 5, 0, time.UTC)
	result, err := Replay(path, ReplayFilter{From: from})
	if err != nil {
		t.Fatal(err)
	}

	// Should only include entries at 14:00:06, 14:00:08, 14:00:10
	if len(result.Entries) != 3 {
		t.Errorf("expected 3 entries after from filter, got %d", len(result.Entries))
	}
}

func TestReplayTimeRangeTo(t *testing.T) {
	path := writeTestLog(t)

	to := time.Date(2025, 1, 15, 14, 0, 3, 0, time.UTC)
	result, err := Replay(path, ReplayFilter{To: to})
	if err != nil {
		t.Fatal(err)
	}

	// Should only include entries at 14:00:00, 14:00:02
	if len(result.Entries) != 2 {
		t.Errorf("expected 2 entries before to filter, got %d", len(result.Entries))
	}
}

func TestReplayTimeRangeBoth(t *testing.T) {
	path := writeTestLog(t)

	from := time.Date(2025, 1, 15, 14, 0, 1, 0, time.UTC)
	to := time.Date(2025, 1, 15, 14, 0, 7, 0, time.UTC)
	result, err := Replay(path, ReplayFilter{From: from, To: to})
	if err != nil {
		t.Fatal(err)
	}

	// Should include entries at 14:00:02, 14:00:04, 14:00:06
	if len(result.Entries) != 3 {
		t.Errorf("expected 3 entries in time window, got %d", len(result.Entries))
	}
}

func TestReplayLastKeepsTail(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{Last: 2})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Entries))
	}
	if result.Entries[0].Stage != "execute" || result.Entries[1].Stage != "execute" {
		t.Errorf("expected the two most recent entries, got stages %s and %s",
			result.Entries[0].Stage, result.Entries[1].Stage)
	}
	if result.Summary.Total != 2 {
		t.Errorf("expected summary over kept entries, got total %d", result.Summary.Total)
	}
}

func TestReplayEmptyResult(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{Stage: "nonexistent"})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Entries) != 0 {
		t.Errorf("expected 0 entries for unknown stage, got %d", len(result.Entries))
	}
	if result.Summary.Total != 0 {
		t.Errorf("expected 0 total, got %d", result.Summary.Total)
	}
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	path := writeTestLog(t)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json\n")
	f.Close()

	result, err := Replay(path, ReplayFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 6 {
		t.Errorf("expected malformed line to be skipped, got %d entries", len(result.Entries))
	}
}

func TestReplayMaxScoreTracked(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Summary.MaxScore != 0.93 {
		t.Errorf("max score: expected 0.93, got %v", result.Summary.MaxScore)
	}

	// execute entries carry no score
	result2, err := Replay(path, ReplayFilter{Stage: "execute"})
	if err != nil {
		t.Fatal(err)
	}
	if result2.Summary.MaxScore != 0 {
		t.Errorf("max score for execute: expected 0, got %v", result2.Summary.MaxScore)
	}
}
