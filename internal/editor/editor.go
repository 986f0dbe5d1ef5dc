package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/notepad/internal/apperr"
	"github.com/starford/notepad/internal/clipboard"
	"github.com/starford/notepad/internal/models"
)

// Notes is the repository surface the editor needs.
type Notes interface {
	InsertEmpty(ctx context.Context) (int64, error)
	Get(ctx context.Context, id int64) (*models.Note, error)
	Save(ctx context.Context, id int64, body string, explicitTitle *string, mode models.Mode) error
	Restore(ctx context.Context, id int64, body string) error
	Remove(ctx context.Context, id int64) error
}

// Editor drives one Session against the repository. It is not safe for
// concurrent use; a session has a single caller at a time.
type Editor struct {
	notes   Notes
	logger  *slog.Logger
	session Session
}

// Option is a functional option for configuring an Editor.
type Option func(*Editor)

// WithLogger sets the editor logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) {
		e.logger = l
	}
}

func newEditor(notes Notes, s Session, opts []Option) *Editor {
	e := &Editor{notes: notes, logger: slog.Default(), session: s}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenForEdit starts an edit session on note id. A missing note yields
// apperr.ErrNotFound and no session.
func OpenForEdit(ctx context.Context, notes Notes, id int64, opts ...Option) (*Editor, error) {
	n, err := notes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return newEditor(notes, NewEdit(*n), opts), nil
}

// OpenForInsert creates an empty note and starts an insert session on it.
func OpenForInsert(ctx context.Context, notes Notes, opts ...Option) (*Editor, error) {
	id, err := notes.InsertEmpty(ctx)
	if err != nil {
		return nil, err
	}
	return newEditor(notes, NewInsert(id), opts), nil
}

// PasteAsNew starts an insert session seeded from the clipboard. A note
// reference copies that note's body and title; anything else, including a
// reference that no longer resolves, pastes as plain text. An empty
// clipboard leaves the new note blank.
func PasteAsNew(ctx context.Context, notes Notes, clip clipboard.Channel, opts ...Option) (*Editor, error) {
	c, ok, err := clip.Read(ctx)
	if err != nil {
		return nil, err
	}
	e, err := OpenForInsert(ctx, notes, opts...)
	if err != nil {
		return nil, err
	}
	if ok {
		e.session = ApplyPaste(e.session, e.resolvePaste(ctx, c))
	}
	return e, nil
}

func (e *Editor) resolvePaste(ctx context.Context, c clipboard.Clip) Paste {
	if c.Kind == clipboard.KindNoteRef {
		src, err := e.notes.Get(ctx, c.NoteID)
		if err == nil {
			title := src.Title
			return Paste{Body: src.Body, Title: &title}
		}
		e.logger.Warn("editor: paste reference lookup failed",
			slog.Int64("ref", c.NoteID),
			slog.String("error", err.Error()))
	}
	return Paste{Body: c.String()}
}

// Session returns a copy of the current session state.
func (e *Editor) Session() Session {
	return e.session
}

// NoteID returns the id of the note being edited.
func (e *Editor) NoteID() int64 {
	return e.session.NoteID
}

// IsDirty reports whether revert is available.
func (e *Editor) IsDirty() bool {
	return e.session.IsDirty()
}

// SetText records a text change without writing to storage.
func (e *Editor) SetText(body string) {
	e.session = SetText(e.session, body)
}

// Suspend saves the working text while keeping the session open.
func (e *Editor) Suspend(ctx context.Context) error {
	_, err := e.apply(ctx, Suspend(e.session))
	return err
}

// Exit runs the final checkpoint and closes the session.
func (e *Editor) Exit(ctx context.Context) (Outcome, error) {
	return e.apply(ctx, Exit(e.session))
}

// SaveAndClose commits the working text and closes the session.
func (e *Editor) SaveAndClose(ctx context.Context) (Outcome, error) {
	tr, err := Commit(e.session)
	if err != nil {
		return e.session.Outcome, err
	}
	return e.apply(ctx, tr)
}

// Revert restores the note to its state at session start and closes the session.
func (e *Editor) Revert(ctx context.Context) (Outcome, error) {
	tr, err := Revert(e.session)
	if err != nil {
		return e.session.Outcome, err
	}
	return e.apply(ctx, tr)
}

// Delete removes the note and closes the session.
func (e *Editor) Delete(ctx context.Context) (Outcome, error) {
	tr, err := Delete(e.session)
	if err != nil {
		return e.session.Outcome, err
	}
	return e.apply(ctx, tr)
}

// Export writes the working text to sink under name.
func (e *Editor) Export(_ context.Context, sink Sink, name string) (ExportResult, error) {
	return Export(e.session, sink, name)
}

// apply runs tr's effects in order and adopts tr's session once they all
// succeed. If the note has disappeared the session ends as self-deleted and
// the not-found error is returned; other failures leave the session as it was.
func (e *Editor) apply(ctx context.Context, tr Transition) (Outcome, error) {
	for _, eff := range tr.Effects {
		if err := e.run(ctx, eff); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				e.session.Outcome = OutcomeSelfDeleted
				e.logger.Info("editor: note deleted underneath session", slog.Int64("id", e.session.NoteID))
			} else {
				e.logger.Error("editor: effect failed",
					slog.Int64("id", e.session.NoteID),
					slog.String("error", err.Error()))
			}
			return e.session.Outcome, err
		}
	}
	e.session = tr.Session
	if e.session.Closed() {
		e.logger.Debug("editor: session closed",
			slog.Int64("id", e.session.NoteID),
			slog.String("outcome", e.session.Outcome.String()))
	}
	return e.session.Outcome, nil
}

func (e *Editor) run(ctx context.Context, eff Effect) error {
	switch eff := eff.(type) {
	case SaveEffect:
		return e.notes.Save(ctx, eff.NoteID, eff.Body, eff.Title, eff.Mode)
	case RestoreEffect:
		return e.notes.Restore(ctx, eff.NoteID, eff.Body)
	case DeleteEffect:
		return e.notes.Remove(ctx, eff.NoteID)
	default:
		return fmt.Errorf("editor: unknown effect %T", eff)
	}
}
