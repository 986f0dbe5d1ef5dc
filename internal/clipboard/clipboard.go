// Package clipboard carries note references or plain text between the note
// list and the editor.
package clipboard

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// Kind distinguishes clip payloads.
type Kind string

const (
	KindNoteRef Kind = "note-ref"
	KindText    Kind = "text"
)

// RefPrefix starts the textual form of a note reference.
const RefPrefix = "note://notes/"

// Clip is a single clipboard payload.
type Clip struct {
	Kind   Kind   `json:"kind"`
	NoteID int64  `json:"id,omitempty"`
	Value  string `json:"value,omitempty"`
}

// NoteRef returns a clip referring to note id.
func NoteRef(id int64) Clip {
	return Clip{Kind: KindNoteRef, NoteID: id}
}

// Text returns a plain-text clip.
func Text(s string) Clip {
	return Clip{Kind: KindText, Value: s}
}

// String is the clip's plain-text representation. A note reference coerces
// to its reference URI.
func (c Clip) String() string {
	if c.Kind == KindNoteRef {
		return FormatRef(c.NoteID)
	}
	return c.Value
}

// FormatRef renders a note reference URI.
func FormatRef(id int64) string {
	return RefPrefix + strconv.FormatInt(id, 10)
}

// ParseRef extracts the note id from a reference URI.
func ParseRef(s string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), RefPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Channel is the shared clipboard. Read reports false when nothing is held.
type Channel interface {
	Write(ctx context.Context, c Clip) error
	Read(ctx context.Context) (Clip, bool, error)
}

// Memory is an in-process Channel.
type Memory struct {
	mu   sync.Mutex
	clip Clip
	has  bool
}

// NewMemory returns an empty in-process clipboard.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Write(_ context.Context, c Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clip, m.has = c, true
	return nil
}

func (m *Memory) Read(_ context.Context) (Clip, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clip, m.has, nil
}
