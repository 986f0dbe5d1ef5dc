package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notepad/internal/clipboard"
	"github.com/starford/notepad/internal/editor"
	"github.com/starford/notepad/internal/models"
)

// Session start actions.
const (
	ActionInsert = "insert"
	ActionEdit   = "edit"
	ActionPaste  = "paste"
)

// StartSessionRequest is the body of POST /sessions.
type StartSessionRequest struct {
	Action string `json:"action" example:"edit" validate:"required"`
	ID     int64  `json:"id,omitempty" example:"7"`
}

// Validate checks the action and that edit carries a note id.
func (r StartSessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Action, validation.Required, validation.In(ActionInsert, ActionEdit, ActionPaste)),
		validation.Field(&r.ID, validation.When(r.Action == ActionEdit, validation.Required, validation.Min(int64(1)))),
	)
}

// SetBodyRequest is the body of PUT /sessions/{sid}/body. An empty string is
// a valid body; a missing field is not.
type SetBodyRequest struct {
	Body *string `json:"body" validate:"required"`
}

// Validate checks that body is present.
func (r SetBodyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Body, validation.NotNil),
	)
}

// ExportRequest is the body of POST /sessions/{sid}/export. A blank name is
// reported by the export itself.
type ExportRequest struct {
	Name string `json:"name" example:"meeting" validate:"required"`
}

// ClipboardRequest is the body of PUT /clipboard.
type ClipboardRequest struct {
	Kind  string `json:"kind" example:"note-ref" validate:"required"`
	ID    int64  `json:"id,omitempty" example:"7"`
	Value string `json:"value,omitempty"`
}

// Validate checks the clip kind and that a reference carries an id.
func (r ClipboardRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required,
			validation.In(string(clipboard.KindNoteRef), string(clipboard.KindText))),
		validation.Field(&r.ID, validation.When(r.Kind == string(clipboard.KindNoteRef), validation.Required, validation.Min(int64(1)))),
	)
}

// Clip converts the request into a clipboard payload.
func (r ClipboardRequest) Clip() clipboard.Clip {
	if r.Kind == string(clipboard.KindNoteRef) {
		return clipboard.NoteRef(r.ID)
	}
	return clipboard.Text(r.Value)
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes        []models.NoteSummary `json:"notes" validate:"required"`
	Total        int                  `json:"total" example:"42" validate:"required"`
	LastModified int64                `json:"last_modified" example:"1700000000000"`
}

// ClipboardResponse reports the clipboard content.
type ClipboardResponse struct {
	Empty bool            `json:"empty"`
	Clip  *clipboard.Clip `json:"clip,omitempty"`
}

// RefResponse carries a note reference string.
type RefResponse struct {
	Ref string `json:"ref" example:"note://notes/7" validate:"required"`
}

// SessionView is the externally visible state of an editor session.
type SessionView struct {
	ID       string `json:"id" validate:"required"`
	NoteID   int64  `json:"note_id" validate:"required"`
	Mode     string `json:"mode" example:"insert"`
	Body     string `json:"body"`
	Original string `json:"original_body"`
	Dirty    bool   `json:"dirty"`
	Closed   bool   `json:"closed"`
	Outcome  string `json:"outcome" example:"open"`
}

func viewOf(id string, s editor.Session) SessionView {
	return SessionView{
		ID:       id,
		NoteID:   s.NoteID,
		Mode:     s.Mode.String(),
		Body:     s.WorkingBody,
		Original: s.OriginalBody,
		Dirty:    s.IsDirty(),
		Closed:   s.Closed(),
		Outcome:  s.Outcome.String(),
	}
}

// ExportResponse reports a completed export.
type ExportResponse = editor.ExportResult
