// Package models defines the domain types for the notepad.
package models

// Note is the persisted entity. ModifiedAt is epoch milliseconds.
type Note struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	CreatedAt  int64  `json:"created_at"`
	ModifiedAt int64  `json:"modified_at"`
}

// Summary returns the lightweight list representation of n.
func (n Note) Summary() NoteSummary {
	return NoteSummary{ID: n.ID, Title: n.Title, ModifiedAt: n.ModifiedAt}
}

// NoteSummary is a lightweight representation returned by list operations.
type NoteSummary struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	ModifiedAt int64  `json:"modified_at"`
}

// Fields is a partial note used for inserts and updates. Nil pointers are
// left untouched; a zero ModifiedAt lets the store stamp its own clock.
type Fields struct {
	Title      *string
	Body       *string
	ModifiedAt int64
}

// SearchFilter restricts a query to notes whose title contains Pattern.
// An empty Pattern matches every note.
type SearchFilter struct {
	Pattern string
}

// Mode tags an editor session.
type Mode int

const (
	ModeEdit Mode = iota
	ModeInsert
)

func (m Mode) String() string {
	if m == ModeInsert {
		return "insert"
	}
	return "edit"
}

// Ptr returns a pointer to s.
func Ptr(s string) *string {
	return &s
}
