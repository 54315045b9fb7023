// Package history persists pipeline evaluations in a local SQLite
// database so past decisions can be listed, searched, and exported.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one pipeline evaluation stored in the history database.
type Record struct {
	ID         int64     `json:"id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	SourceHash string    `json:"source_hash"`
	Stage      string    `json:"stage"`
	Decision   string    `json:"decision"`
	Score      float64   `json:"score,omitempty"`
	IssueCount int       `json:"issue_count"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// Store persists evaluation records in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates (or opens) the evaluation database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS evaluations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT,
		source_hash TEXT,
		stage TEXT,
		decision TEXT,
		score REAL,
		issue_count INTEGER,
		error_kind TEXT,
		duration_ms INTEGER
	);`)
	return err
}

// Save inserts a new record. A zero Timestamp is filled with the
// current UTC time.
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO evaluations
		(created_at, source_hash, stage, decision, score, issue_count, error_kind, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.Format(time.RFC3339),
		rec.SourceHash,
		rec.Stage,
		rec.Decision,
		rec.Score,
		rec.IssueCount,
		rec.ErrorKind,
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	return nil
}

// Recent returns the most recent records, newest first.
// limit <= 0 returns everything.
func (s *Store) Recent(limit int) ([]Record, error) {
	return s.records(limit, "")
}

// Search returns records whose source hash, stage, decision, or error
// kind contains term, newest first. limit <= 0 returns all matches.
func (s *Store) Search(term string, limit int) ([]Record, error) {
	return s.records(limit, term)
}

func (s *Store) records(limit int, term string) ([]Record, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT id, created_at, source_hash, stage, decision, score, issue_count, error_kind, duration_ms FROM evaluations")
	var args []any
	if term != "" {
		builder.WriteString(" WHERE source_hash LIKE ? OR stage LIKE ? OR decision LIKE ? OR error_kind LIKE ?")
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}
	builder.WriteString(" ORDER BY id DESC")
	if limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := s.db.Query(builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var ts string
		if err := rows.Scan(&rec.ID, &ts, &rec.SourceHash, &rec.Stage, &rec.Decision, &rec.Score, &rec.IssueCount, &rec.ErrorKind, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.Timestamp = t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return records, nil
}

// Clear deletes all records.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM evaluations"); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// ExportJSON writes the evaluation table to a JSONL file, newest first.
func (s *Store) ExportJSON(dest string) error {
	records, err := s.records(0, "")
	if err != nil {
		return err
	}
	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("history: create export: %w", err)
	}
	defer file.Close()

	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("history: marshal record: %w", err)
		}
		if _, err := file.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("history: write export: %w", err)
		}
	}
	return nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
