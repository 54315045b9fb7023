package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// ReplayFilter holds filtering criteria for replaying a decision log.
type ReplayFilter struct {
	Stage    string    // "" = all stages
	Decision string    // "" = all decisions
	From     time.Time // zero value = no lower bound
	To       time.Time // zero value = no upper bound
	Last     int       // >0 = keep only the most recent N matches
}

// ReplaySummary holds decision counts and metadata for a replayed log.
type ReplaySummary struct {
	Total          int     `json:"total"`
	AllowCount     int     `json:"allow_count"`
	BlockCount     int     `json:"block_count"`
	ErrorCount     int     `json:"error_count"`
	FirstTimestamp string  `json:"first_timestamp"`
	LastTimestamp  string  `json:"last_timestamp"`
	MaxScore       float64 `json:"max_score"`
}

// ReplayResult holds filtered entries and summary for a replayed log.
type ReplayResult struct {
	Entries []Entry       `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the decision log and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}

		if filter.Stage != "" && entry.Stage != filter.Stage {
			continue
		}
		if filter.Decision != "" && !strings.EqualFold(entry.Decision, filter.Decision) {
			continue
		}

		// Time range filtering
		if !filter.From.IsZero() || !filter.To.IsZero() {
			ts, err := time.Parse(TimestampFormat, entry.Timestamp)
			if err != nil {
				continue // skip unparseable timestamps
			}
			if !filter.From.IsZero() && ts.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && ts.After(filter.To) {
				continue
			}
		}

		result.Entries = append(result.Entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	if filter.Last > 0 && len(result.Entries) > filter.Last {
		result.Entries = result.Entries[len(result.Entries)-filter.Last:]
	}
	for _, entry := range result.Entries {
		updateSummary(&result.Summary, entry)
	}

	return result, nil
}

func updateSummary(s *ReplaySummary, entry Entry) {
	s.Total++

	switch strings.ToLower(entry.Decision) {
	case "allow":
		s.AllowCount++
	case "block":
		s.BlockCount++
	case "error":
		s.ErrorCount++
	}

	if entry.Score > s.MaxScore {
		s.MaxScore = entry.Score
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
