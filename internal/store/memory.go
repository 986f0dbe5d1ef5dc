package store

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/starford/notepad/internal/apperr"
	"github.com/starford/notepad/internal/models"
)

// Memory is a process-local Store. It is used in tests and when the
// configured driver is "memory".
type Memory struct {
	mu     sync.RWMutex
	notes  map[int64]models.Note
	nextID int64
	opts   options
	mark   watermark
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		notes: make(map[int64]models.Note),
		opts:  buildOptions(opts),
	}
}

func (m *Memory) Insert(fields models.Fields) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.opts.stamp(fields.ModifiedAt)
	m.nextID++
	m.notes[m.nextID] = models.Note{
		ID:         m.nextID,
		Title:      deref(fields.Title),
		Body:       deref(fields.Body),
		CreatedAt:  ts,
		ModifiedAt: ts,
	}
	m.mark.bump(ts)
	return m.nextID, nil
}

func (m *Memory) Get(id int64) (*models.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notes[id]
	if !ok {
		return nil, fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	return &n, nil
}

func (m *Memory) Update(id int64, fields models.Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notes[id]
	if !ok {
		return fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	if fields.Title != nil {
		n.Title = *fields.Title
	}
	if fields.Body != nil {
		n.Body = *fields.Body
	}
	n.ModifiedAt = max(n.ModifiedAt, m.opts.stamp(fields.ModifiedAt))
	m.notes[id] = n
	m.mark.bump(n.ModifiedAt)
	return nil
}

func (m *Memory) Delete(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notes[id]; ok {
		delete(m.notes, id)
		m.mark.bump(m.opts.now().UnixMilli())
	}
	return nil
}

// Query snapshots matching rows when ranged over, so each pass sees the
// store as of its start.
func (m *Memory) Query(filter models.SearchFilter) iter.Seq2[models.Note, error] {
	return func(yield func(models.Note, error) bool) {
		m.mu.RLock()
		out := make([]models.Note, 0, len(m.notes))
		for _, n := range m.notes {
			if m.matches(n.Title, filter.Pattern) {
				out = append(out, n)
			}
		}
		m.mu.RUnlock()

		sort.Slice(out, func(i, j int) bool {
			if out[i].ModifiedAt != out[j].ModifiedAt {
				return out[i].ModifiedAt > out[j].ModifiedAt
			}
			return out[i].ID > out[j].ID
		})
		for _, n := range out {
			if !yield(n, nil) {
				return
			}
		}
	}
}

func (m *Memory) matches(title, pattern string) bool {
	if pattern == "" {
		return true
	}
	if m.opts.caseSensitive {
		return strings.Contains(title, pattern)
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(pattern))
}

func (m *Memory) LastModified() int64 {
	return m.mark.load()
}

func (m *Memory) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
