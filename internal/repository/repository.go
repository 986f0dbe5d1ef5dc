// Package repository is the typed note façade over the record store. It owns
// title derivation and modification-time stamping.
package repository

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/starford/notepad/internal/models"
	"github.com/starford/notepad/internal/store"
)

// Change kinds passed to a Notifier.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Notifier is called after each successful mutation.
type Notifier func(kind string, id int64)

// Repository translates note operations into store calls.
type Repository struct {
	store  store.Store
	now    func() time.Time
	logger *slog.Logger
	notify Notifier
}

// Option is a functional option for configuring the repository.
type Option func(*Repository)

// WithClock overrides the clock used to stamp modification times.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// WithLogger sets the repository logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

// WithNotifier registers a callback for note mutations.
func WithNotifier(n Notifier) Option {
	return func(r *Repository) {
		r.notify = n
	}
}

// New creates a repository over s.
func New(s store.Store, opts ...Option) *Repository {
	r := &Repository{
		store:  s,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InsertEmpty creates a blank note so a new editor session has an id to address.
func (r *Repository) InsertEmpty(_ context.Context) (int64, error) {
	id, err := r.store.Insert(models.Fields{ModifiedAt: r.stamp()})
	if err != nil {
		return 0, err
	}
	r.logger.Debug("repository: inserted", slog.Int64("id", id))
	r.emit(ChangeCreated, id)
	return id, nil
}

// Get returns the note with the given id. Store errors pass through unchanged.
func (r *Repository) Get(_ context.Context, id int64) (*models.Note, error) {
	return r.store.Get(id)
}

// Save writes body to note id. An explicit title always wins, even when empty;
// otherwise an insert-mode save derives the title from body and an edit-mode
// save leaves the title alone.
func (r *Repository) Save(_ context.Context, id int64, body string, explicitTitle *string, mode models.Mode) error {
	fields := models.Fields{Body: &body, ModifiedAt: r.stamp()}
	switch {
	case explicitTitle != nil:
		fields.Title = explicitTitle
	case mode == models.ModeInsert:
		fields.Title = models.Ptr(DeriveTitle(body))
	}
	if err := r.store.Update(id, fields); err != nil {
		return err
	}
	r.logger.Debug("repository: saved",
		slog.Int64("id", id),
		slog.String("mode", mode.String()),
		slog.Bool("title_stamped", fields.Title != nil))
	r.emit(ChangeUpdated, id)
	return nil
}

// Restore puts body back on note id without touching its title.
func (r *Repository) Restore(_ context.Context, id int64, body string) error {
	if err := r.store.Update(id, models.Fields{Body: &body, ModifiedAt: r.stamp()}); err != nil {
		return err
	}
	r.logger.Debug("repository: restored", slog.Int64("id", id))
	r.emit(ChangeUpdated, id)
	return nil
}

// Remove deletes note id. Removing a missing note is not an error.
func (r *Repository) Remove(_ context.Context, id int64) error {
	if err := r.store.Delete(id); err != nil {
		return err
	}
	r.logger.Debug("repository: removed", slog.Int64("id", id))
	r.emit(ChangeDeleted, id)
	return nil
}

// Query returns the store's lazy, restartable sequence for filter.
func (r *Repository) Query(_ context.Context, filter models.SearchFilter) iter.Seq2[models.Note, error] {
	return r.store.Query(filter)
}

// List collects summaries for filter, newest first.
func (r *Repository) List(ctx context.Context, filter models.SearchFilter) ([]models.NoteSummary, error) {
	out := []models.NoteSummary{}
	for n, err := range r.Query(ctx, filter) {
		if err != nil {
			return nil, err
		}
		out = append(out, n.Summary())
	}
	return out, nil
}

// LastModified exposes the store watermark for display freshness.
func (r *Repository) LastModified() int64 {
	return r.store.LastModified()
}

func (r *Repository) stamp() int64 {
	return r.now().UnixMilli()
}

func (r *Repository) emit(kind string, id int64) {
	if r.notify != nil {
		r.notify(kind, id)
	}
}
