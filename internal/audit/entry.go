package audit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Entry is one line in the hash-chained JSONL decision log. All fields
// are scalars and slices (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
//
// Hash covers the JSON encoding of the entry with Hash itself empty.
// PrevHash is the Hash of the preceding entry, or GenesisHash for the
// first line.
type Entry struct {
	Timestamp  string   `json:"ts"`
	EventID    string   `json:"event_id"`
	Stage      string   `json:"stage"`
	SourceHash string   `json:"source_hash"`
	Level      string   `json:"level"`
	Decision   string   `json:"decision"`
	Reason     string   `json:"reason,omitempty"`
	Score      float64  `json:"score,omitempty"`
	IssueCodes []string `json:"issue_codes,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	PrevHash   string   `json:"prev_hash"`
	Hash       string   `json:"hash"`
}

// NewEventID generates a random identifier for one pipeline evaluation.
func NewEventID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return fmt.Sprintf("e-%x", time.Now().UnixNano())
	}
	return "e-" + hex.EncodeToString(b)
}
