// Package session holds the per-conversation entity state that makes
// redaction consistent: one store per process, one lockable session per
// conversation, entities keyed by (type, canonical key) inside it.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
)

// ErrSessionNotFound is returned when an operation names a session id the
// store has never seen or has already expired.
var ErrSessionNotFound = errors.New("session not found")

// Entity is one real-world sensitive value seen within a session. Created on
// first encounter of a canonical key; the mask is assigned once and frozen.
// Only OccurrenceCount changes afterwards.
type Entity struct {
	ID              string
	Type            detect.EntityType
	CanonicalKey    string
	RawValue        string
	DisplayMask     string
	FirstSeenAt     time.Time
	OccurrenceCount int
}

// EntitySummary is the reportable view of an entity. It never carries the
// raw value, so results and snapshots are safe to serialize.
type EntitySummary struct {
	Type            detect.EntityType `json:"type"`
	Mask            string            `json:"mask"`
	OccurrenceCount int               `json:"occurrence_count"`
}

type entityKey struct {
	typ detect.EntityType
	key string
}

// Session is the scope within which entity consistency is guaranteed. All
// access to its entities goes through Store.WithSession, which holds the
// session mutex for the duration of the callback.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	entities   map[entityKey]*Entity
	order      []*Entity // insertion order, for stable snapshots
	labelNext  int
	lastActive time.Time
	expired    bool // set by Expire under mu; holders of a stale pointer must re-fetch
}

// Lookup returns the entity for (typ, canonicalKey), or nil. Caller must be
// inside WithSession.
func (s *Session) Lookup(typ detect.EntityType, canonicalKey string) *Entity {
	return s.entities[entityKey{typ, canonicalKey}]
}

// EntitiesOfType returns all entities of the given type in insertion order.
// Used by fuzzy name matching. Caller must be inside WithSession.
func (s *Session) EntitiesOfType(typ detect.EntityType) []*Entity {
	var out []*Entity
	for _, e := range s.order {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Create inserts a new entity for (typ, canonicalKey) with the given mask
// and returns it. Caller must be inside WithSession and must have checked
// Lookup first.
func (s *Session) Create(typ detect.EntityType, canonicalKey, rawValue, mask string) *Entity {
	e := &Entity{
		ID:              uuid.NewString(),
		Type:            typ,
		CanonicalKey:    canonicalKey,
		RawValue:        rawValue,
		DisplayMask:     mask,
		FirstSeenAt:     time.Now(),
		OccurrenceCount: 1,
	}
	s.entities[entityKey{typ, canonicalKey}] = e
	s.order = append(s.order, e)
	return e
}

// NextPersonLabel returns the next unused person label for this session:
// A, B, ... Z, AA, AB, ... The counter is monotonic and never reused, and it
// lives inside the session so two sessions always start from A independently.
func (s *Session) NextPersonLabel() string {
	n := s.labelNext
	s.labelNext++

	label := ""
	for {
		label = string(rune('A'+n%26)) + label
		n = n/26 - 1
		if n < 0 {
			return label
		}
	}
}

// Summary returns the entity summaries in first-seen order. Caller must be
// inside WithSession; Snapshot is the locked variant.
func (s *Session) Summary() []EntitySummary {
	out := make([]EntitySummary, 0, len(s.order))
	for _, e := range s.order {
		out = append(out, EntitySummary{
			Type:            e.Type,
			Mask:            e.DisplayMask,
			OccurrenceCount: e.OccurrenceCount,
		})
	}
	return out
}

// Store is the process-wide session registry. Sessions are created on first
// use and removed by explicit Expire or the idle sweep.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
}

// NewStore creates a store whose sessions expire after idleTimeout of
// inactivity (checked by SweepIdle, not enforced inline).
func NewStore(idleTimeout time.Duration) *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
	}
}

func (st *Store) getOrCreate(id string) *Session {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	now := time.Now()
	s = &Session{
		ID:         id,
		CreatedAt:  now,
		entities:   make(map[entityKey]*Entity),
		lastActive: now,
	}
	st.sessions[id] = s
	return s
}

// WithSession runs fn with the session's mutex held, creating the session if
// it does not exist. This is the only critical region: lookup, creation, and
// label assignment for a whole request happen inside one callback, so two
// concurrent requests can never mint two entities for the same value.
//
// Expire can win the window between getOrCreate returning a pointer and the
// lock being taken, so after locking the session is re-checked: an expired
// one is released and fetched again, which creates a fresh session under the
// same id.
func (st *Store) WithSession(id string, fn func(*Session) error) error {
	for {
		s := st.getOrCreate(id)
		s.mu.Lock()
		if s.expired {
			s.mu.Unlock()
			continue
		}
		defer s.mu.Unlock()
		s.lastActive = time.Now()
		return fn(s)
	}
}

// Snapshot returns the entity summaries for an existing session in first-seen
// order. Returns ErrSessionNotFound for unknown ids; it never creates.
func (st *Store) Snapshot(id string) ([]EntitySummary, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired {
		return nil, ErrSessionNotFound
	}
	return s.Summary(), nil
}

// Expire removes a session and all its entities. It acquires the session
// mutex before tearing state down, so an in-flight WithSession callback
// finishes first; the expired flag tells any caller that fetched the pointer
// before removal to re-fetch instead of touching the torn-down maps.
func (st *Store) Expire(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(st.sessions, id)
	st.mu.Unlock()

	s.mu.Lock()
	s.expired = true
	s.entities = nil
	s.order = nil
	s.mu.Unlock()
	return nil
}

// SweepIdle expires every session idle longer than the store's timeout and
// returns how many were removed.
func (st *Store) SweepIdle(now time.Time) int {
	st.mu.RLock()
	var stale []string
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastActive)
		s.mu.Unlock()
		if idle > st.idleTimeout {
			stale = append(stale, id)
		}
	}
	st.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if err := st.Expire(id); err == nil {
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs returns the live session ids, sorted. Diagnostic use only.
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
