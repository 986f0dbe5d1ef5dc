// Package store provides the keyed record store that persists notes.
//
// Every backend assigns identifiers on insert, stamps modification times,
// resolves missing identifiers to apperr.ErrNotFound and treats deletes as
// idempotent. Single-row operations are atomic with respect to each other.
package store

import (
	"iter"
	"sync/atomic"
	"time"

	"github.com/starford/notepad/internal/models"
)

// Store defines the record access contract the repository relies on.
// Consumers should depend on this interface rather than a concrete backend.
type Store interface {
	// Insert creates a row and returns its new identifier. Unset fields default to "".
	Insert(fields models.Fields) (int64, error)
	// Get returns the note with the given id or apperr.ErrNotFound.
	Get(id int64) (*models.Note, error)
	// Update merges fields into an existing row and refreshes its modification time.
	Update(id int64, fields models.Fields) error
	// Delete removes a row. Deleting a missing id is not an error.
	Delete(id int64) error
	// Query returns a restartable lazy sequence ordered by modification time, newest first.
	Query(filter models.SearchFilter) iter.Seq2[models.Note, error]
	// LastModified is the watermark of the most recent mutation, in epoch millis.
	LastModified() int64
	Close() error
}

// Verify the backends satisfy Store at compile time.
var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)

// Option configures a store backend.
type Option func(*options)

type options struct {
	now           func() time.Time
	caseSensitive bool
}

func defaultOptions() options {
	return options{now: time.Now, caseSensitive: true}
}

// WithClock overrides the clock used to stamp rows when the caller gives no time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithCaseSensitive controls whether title filters match case-sensitively.
func WithCaseSensitive(v bool) Option {
	return func(o *options) {
		o.caseSensitive = v
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stamp picks the modification time for a write: the caller's value when set,
// else the store clock.
func (o options) stamp(given int64) int64 {
	if given != 0 {
		return given
	}
	return o.now().UnixMilli()
}

// watermark tracks the most recent mutation time and never moves backwards.
type watermark struct {
	v atomic.Int64
}

func (w *watermark) bump(ts int64) {
	for {
		cur := w.v.Load()
		if ts <= cur || w.v.CompareAndSwap(cur, ts) {
			return
		}
	}
}

func (w *watermark) load() int64 {
	return w.v.Load()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
