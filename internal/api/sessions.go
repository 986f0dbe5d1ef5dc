package api

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notepad/internal/editor"
)

var errUnknownSession = errors.New("unknown session")

type sessionEntry struct {
	mu      sync.Mutex
	ed      *editor.Editor
	touched time.Time
}

// Sessions holds the editor sessions opened over HTTP. Each entry has its own
// lock so a session is driven by one request at a time while different
// sessions proceed in parallel.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	now     func() time.Time
}

// NewSessions returns an empty registry.
func NewSessions() *Sessions {
	return &Sessions{entries: make(map[string]*sessionEntry), now: time.Now}
}

// Add registers ed and returns its handle.
func (s *Sessions) Add(ed *editor.Editor) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.entries[id] = &sessionEntry{ed: ed, touched: s.now()}
	s.mu.Unlock()
	return id
}

// With runs fn on session id while holding its lock. A session that is
// closed once fn returns is dropped from the registry.
func (s *Sessions) With(id string, fn func(*editor.Editor) error) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return errUnknownSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ed == nil {
		// Dropped while we waited for the lock.
		return errUnknownSession
	}
	err := fn(e.ed)
	e.touched = s.now()
	if e.ed.Session().Closed() {
		s.mu.Lock()
		delete(s.entries, id)
		s.mu.Unlock()
		e.ed = nil
	}
	return err
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stale returns handles idle for longer than maxIdle.
func (s *Sessions) Stale(maxIdle time.Duration) []string {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	entries := make(map[string]*sessionEntry, len(s.entries))
	for id, e := range s.entries {
		entries[id] = e
	}
	s.mu.Unlock()

	var out []string
	for id, e := range entries {
		e.mu.Lock()
		if e.ed != nil && e.touched.Before(cutoff) {
			out = append(out, id)
		}
		e.mu.Unlock()
	}
	return out
}
