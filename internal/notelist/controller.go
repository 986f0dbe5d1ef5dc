// Package notelist drives the note list: enumeration, search, session
// start-up and clipboard copy.
package notelist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/notepad/internal/apperr"
	"github.com/starford/notepad/internal/clipboard"
	"github.com/starford/notepad/internal/editor"
	"github.com/starford/notepad/internal/models"
)

// Notes is the repository surface the controller needs.
type Notes interface {
	editor.Notes
	List(ctx context.Context, filter models.SearchFilter) ([]models.NoteSummary, error)
	LastModified() int64
}

// Controller serves list views. It holds no per-view state; callers
// re-enumerate after any mutation.
type Controller struct {
	notes      Notes
	clip       clipboard.Channel
	logger     *slog.Logger
	editorOpts []editor.Option
}

// Option is a functional option for configuring the controller.
type Option func(*Controller)

// WithLogger sets the controller logger. Editors started by the controller
// log through it too.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// New creates a controller over notes and the shared clipboard channel.
func New(notes Notes, clip clipboard.Channel, opts ...Option) *Controller {
	c := &Controller{
		notes:  notes,
		clip:   clip,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.editorOpts = []editor.Option{editor.WithLogger(c.logger)}
	return c
}

// List returns note summaries matching filter, most recently modified first.
func (c *Controller) List(ctx context.Context, filter models.SearchFilter) ([]models.NoteSummary, error) {
	return c.notes.List(ctx, filter)
}

// Search lists notes whose title contains pattern. A blank pattern is
// rejected rather than treated as "match all".
func (c *Controller) Search(ctx context.Context, pattern string) ([]models.NoteSummary, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("notelist: search pattern: %w", apperr.ErrEmptyInput)
	}
	return c.notes.List(ctx, models.SearchFilter{Pattern: pattern})
}

// LastModified reports the store watermark so views can tell when to refresh.
func (c *Controller) LastModified() int64 {
	return c.notes.LastModified()
}

// Get returns note id in full.
func (c *Controller) Get(ctx context.Context, id int64) (*models.Note, error) {
	return c.notes.Get(ctx, id)
}

// StartInsertSession creates a blank note and returns an insert-mode editor on it.
func (c *Controller) StartInsertSession(ctx context.Context) (*editor.Editor, error) {
	return editor.OpenForInsert(ctx, c.notes, c.editorOpts...)
}

// StartEditSession opens an edit-mode editor on note id. It fails with
// apperr.ErrNotFound when the note has gone; the caller should refresh.
func (c *Controller) StartEditSession(ctx context.Context, id int64) (*editor.Editor, error) {
	return editor.OpenForEdit(ctx, c.notes, id, c.editorOpts...)
}

// PasteAsNew starts an insert session seeded from the clipboard.
func (c *Controller) PasteAsNew(ctx context.Context) (*editor.Editor, error) {
	return editor.PasteAsNew(ctx, c.notes, c.clip, c.editorOpts...)
}

// CanPaste reports whether the clipboard currently holds anything to paste.
func (c *Controller) CanPaste(ctx context.Context) (bool, error) {
	_, ok, err := c.clip.Read(ctx)
	return ok, err
}

// CopyReference places a reference to note id on the clipboard. The note
// must exist at copy time.
func (c *Controller) CopyReference(ctx context.Context, id int64) error {
	if _, err := c.notes.Get(ctx, id); err != nil {
		return err
	}
	if err := c.clip.Write(ctx, clipboard.NoteRef(id)); err != nil {
		return fmt.Errorf("notelist: copy reference %d: %w", id, err)
	}
	c.logger.Debug("notelist: reference copied", slog.Int64("id", id))
	return nil
}

// Pick returns the reference string for note id without opening it, for
// callers that embed a note link elsewhere.
func (c *Controller) Pick(ctx context.Context, id int64) (string, error) {
	if _, err := c.notes.Get(ctx, id); err != nil {
		return "", err
	}
	return clipboard.FormatRef(id), nil
}

// Delete removes note id. Deleting a missing note is not an error.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	return c.notes.Remove(ctx, id)
}
