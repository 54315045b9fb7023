// Package sidecar implements the reference-passing memory model for the
// sandbox boundary. Values at or above the extraction threshold live in a
// per-run Store while the script holds only opaque "ref:<id>" tokens;
// the real bytes are resolved at the tool-call boundary after a predictive
// size check.
package sidecar

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
)

// validToken matches a complete reference token and nothing else.
var validToken = regexp.MustCompile(`^ref:[0-9a-f]{16}$`)

// IsToken reports whether s has the exact shape of a reference token.
// Shape alone does not prove membership in a store; resolution checks that.
func IsToken(s string) bool {
	return validToken.MatchString(s)
}

// PartKind discriminates composite members.
type PartKind string

const (
	PartRef PartKind = "ref"
	PartLit PartKind = "lit"
)

// Part is one segment of a composite: a reference to another stored entry
// or an inline literal.
type Part struct {
	Kind PartKind `json:"kind"`
	Ref  string   `json:"ref,omitempty"`
	Lit  string   `json:"lit,omitempty"`
}

// Composite records the recipe for a concatenated string without
// materializing it. Resolution happens at the tool-call boundary once the
// predictive size check has passed.
type Composite struct {
	Parts []Part `json:"parts"`
}

// Store owns every value extracted during a single sandbox run. Tokens
// issued by one store are meaningless to any other store and to later runs
// of the same enclave.
type Store struct {
	mu         sync.Mutex
	values     map[string]any
	composites map[string]*Composite
	order      []string
	seq        uint64
}

// NewStore creates an empty reference store.
func NewStore() *Store {
	return &Store{
		values:     make(map[string]any),
		composites: make(map[string]*Composite),
	}
}

// newTokenLocked issues a token unique within this store.
func (s *Store) newTokenLocked() string {
	for {
		var id string
		b := make([]byte, 8)
		if _, err := rand.Read(b); err != nil {
			// Sequence fallback keeps the token shape if crypto/rand fails.
			s.seq++
			id = fmt.Sprintf("%016x", s.seq)
		} else {
			id = hex.EncodeToString(b)
		}
		tok := "ref:" + id
		if !s.containsLocked(tok) {
			return tok
		}
	}
}

// Put stores a raw value and returns its token.
func (s *Store) Put(value any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := s.newTokenLocked()
	s.values[tok] = value
	s.order = append(s.order, tok)
	return tok
}

// PutComposite stores an unresolved concatenation and returns its token.
// Referenced tokens must already exist in this store, which keeps the
// reference graph acyclic.
func (s *Store) PutComposite(parts []Part) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range parts {
		switch p.Kind {
		case PartLit:
		case PartRef:
			if !s.containsLocked(p.Ref) {
				return "", fmt.Errorf("composite references unknown token %s", p.Ref)
			}
		default:
			return "", fmt.Errorf("invalid composite part kind %q", p.Kind)
		}
	}
	tok := s.newTokenLocked()
	s.composites[tok] = &Composite{Parts: append([]Part(nil), parts...)}
	s.order = append(s.order, tok)
	return tok, nil
}

func (s *Store) containsLocked(token string) bool {
	if _, ok := s.values[token]; ok {
		return true
	}
	_, ok := s.composites[token]
	return ok
}

// Contains reports whether token was issued by this store.
func (s *Store) Contains(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containsLocked(token)
}

// Get returns the raw value stored under token. Composites are not raw
// values; use Resolve for those.
func (s *Store) Get(token string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[token]
	return v, ok
}

// Len returns the number of stored entries, composites included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values) + len(s.composites)
}

// Tokens returns every issued token in insertion order.
func (s *Store) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Clear drops every entry. Outstanding tokens become invalid.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any)
	s.composites = make(map[string]*Composite)
	s.order = nil
}

// storeRecord is the serialized form of a Store, used by session records.
type storeRecord struct {
	Values     map[string]any        `json:"values,omitempty"`
	Composites map[string]*Composite `json:"composites,omitempty"`
	Order      []string              `json:"order,omitempty"`
}

// MarshalJSON serializes the store contents.
func (s *Store) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(storeRecord{
		Values:     s.values,
		Composites: s.composites,
		Order:      s.order,
	})
}

// UnmarshalJSON replaces the store contents with the serialized record.
// Records are not trusted: resolution re-validates the reference graph.
func (s *Store) UnmarshalJSON(data []byte) error {
	var rec storeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode store record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = rec.Values
	s.composites = rec.Composites
	s.order = rec.Order
	if s.values == nil {
		s.values = make(map[string]any)
	}
	if s.composites == nil {
		s.composites = make(map[string]*Composite)
	}
	return nil
}
