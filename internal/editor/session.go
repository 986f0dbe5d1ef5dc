// Package editor implements the lifecycle of a single note being viewed or
// edited.
//
// Session is a plain value. The transition functions never touch storage:
// they return the next Session together with the store effects to run, so
// the state machine can be exercised without any host runtime. Editor wraps
// a Session and executes those effects through the repository.
package editor

import (
	"github.com/starford/notepad/internal/apperr"
	"github.com/starford/notepad/internal/models"
)

// Outcome reports how a session ended. OutcomeOpen means it has not.
type Outcome int

const (
	OutcomeOpen Outcome = iota
	OutcomeSaved
	OutcomeCancelled
	OutcomeReverted
	OutcomeDeleted
	// OutcomeSelfDeleted means the note vanished underneath the session,
	// typically deleted by another session.
	OutcomeSelfDeleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOpen:
		return "open"
	case OutcomeSaved:
		return "saved"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeReverted:
		return "reverted"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeSelfDeleted:
		return "self_deleted"
	default:
		return "unknown"
	}
}

// Session is the editor state for one note.
type Session struct {
	Mode         models.Mode
	NoteID       int64
	OriginalBody string
	WorkingBody  string
	// ExplicitTitle is set by a note-reference paste and wins over title
	// derivation at the first insert-mode commit.
	ExplicitTitle *string
	Outcome       Outcome
}

// NewInsert starts an insert session on a freshly created empty note.
func NewInsert(id int64) Session {
	return Session{Mode: models.ModeInsert, NoteID: id}
}

// NewEdit starts an edit session on an existing note.
func NewEdit(n models.Note) Session {
	return Session{
		Mode:         models.ModeEdit,
		NoteID:       n.ID,
		OriginalBody: n.Body,
		WorkingBody:  n.Body,
	}
}

// Closed reports whether the session has ended.
func (s Session) Closed() bool {
	return s.Outcome != OutcomeOpen
}

// IsDirty reports whether the working text differs from the text the session
// started with. Revert is only offered while dirty.
func (s Session) IsDirty() bool {
	return s.WorkingBody != s.OriginalBody
}

// Paste is resolved clipboard content ready to merge into a new note.
type Paste struct {
	Body  string
	Title *string
}

// Effect is a store side effect produced by a transition.
type Effect interface {
	effect()
}

// SaveEffect writes Body to the note. Title, when set, is stamped verbatim;
// otherwise Mode decides whether a title is derived.
type SaveEffect struct {
	NoteID int64
	Body   string
	Title  *string
	Mode   models.Mode
}

// RestoreEffect puts the session's original body back in storage.
type RestoreEffect struct {
	NoteID int64
	Body   string
}

// DeleteEffect removes the note.
type DeleteEffect struct {
	NoteID int64
}

func (SaveEffect) effect()    {}
func (RestoreEffect) effect() {}
func (DeleteEffect) effect()  {}

// Transition is the result of applying an action to a Session.
type Transition struct {
	Session Session
	Effects []Effect
}

// ApplyPaste merges clipboard content into a new note. Only insert sessions
// accept a paste; others are returned unchanged.
func ApplyPaste(s Session, p Paste) Session {
	if s.Closed() || s.Mode != models.ModeInsert {
		return s
	}
	s.WorkingBody = p.Body
	s.ExplicitTitle = p.Title
	return s
}

// SetText replaces the working text. Nothing is written to storage.
func SetText(s Session, body string) Session {
	if s.Closed() {
		return s
	}
	s.WorkingBody = body
	return s
}

// Suspend is the checkpoint for a session going to the background. The
// working text is saved and the session stays open; an insert session
// settles into edit mode so later checkpoints keep its title.
func Suspend(s Session) Transition {
	return checkpoint(s, false)
}

// Exit is the checkpoint for leaving the editor for good. A blank note is
// deleted and reported cancelled, whatever the mode.
func Exit(s Session) Transition {
	return checkpoint(s, true)
}

func checkpoint(s Session, exiting bool) Transition {
	if s.Closed() {
		return Transition{Session: s}
	}
	if exiting && s.WorkingBody == "" {
		s.Outcome = OutcomeCancelled
		return Transition{Session: s, Effects: []Effect{DeleteEffect{NoteID: s.NoteID}}}
	}
	save := saveEffect(s)
	s = settle(s)
	if exiting {
		s.Outcome = OutcomeSaved
	}
	return Transition{Session: s, Effects: []Effect{save}}
}

// Commit is the explicit save action: the working text is written and the
// session closes. A blank body is handled as on exit.
func Commit(s Session) (Transition, error) {
	if s.Closed() {
		return Transition{Session: s}, apperr.ErrSessionClosed
	}
	return checkpoint(s, true), nil
}

// Revert abandons the edits. An edit session restores the stored body to
// the value it had when the session started; an insert session deletes the
// note, which the user never committed.
func Revert(s Session) (Transition, error) {
	if s.Closed() {
		return Transition{Session: s}, apperr.ErrSessionClosed
	}
	if !s.IsDirty() {
		return Transition{Session: s}, apperr.ErrNotDirty
	}
	if s.Mode == models.ModeInsert {
		s.Outcome = OutcomeCancelled
		return Transition{Session: s, Effects: []Effect{DeleteEffect{NoteID: s.NoteID}}}, nil
	}
	s.WorkingBody = s.OriginalBody
	s.Outcome = OutcomeReverted
	return Transition{Session: s, Effects: []Effect{RestoreEffect{NoteID: s.NoteID, Body: s.OriginalBody}}}, nil
}

// Delete removes the note regardless of mode or content.
func Delete(s Session) (Transition, error) {
	if s.Closed() {
		return Transition{Session: s}, apperr.ErrSessionClosed
	}
	s.Outcome = OutcomeDeleted
	return Transition{Session: s, Effects: []Effect{DeleteEffect{NoteID: s.NoteID}}}, nil
}

func saveEffect(s Session) SaveEffect {
	e := SaveEffect{NoteID: s.NoteID, Body: s.WorkingBody, Mode: s.Mode}
	if s.Mode == models.ModeInsert {
		e.Title = s.ExplicitTitle
	}
	return e
}

// settle moves an insert session to edit mode after its first save.
func settle(s Session) Session {
	s.Mode = models.ModeEdit
	s.ExplicitTitle = nil
	return s
}
