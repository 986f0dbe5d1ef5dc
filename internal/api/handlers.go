package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notepad/internal/apperr"
	"github.com/starford/notepad/internal/checksum"
	"github.com/starford/notepad/internal/clipboard"
	"github.com/starford/notepad/internal/editor"
	"github.com/starford/notepad/internal/export"
	"github.com/starford/notepad/internal/models"
	"github.com/starford/notepad/internal/notelist"
)

const maxBodyBytes = 10 << 20

// Exports is the export directory surface the API needs.
type Exports interface {
	editor.Sink
	List() ([]export.File, error)
}

// Handler holds API route handlers.
type Handler struct {
	list     *notelist.Controller
	clip     clipboard.Channel
	exports  Exports
	sessions *Sessions
	logger   *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(list *notelist.Controller, clip clipboard.Channel, exports Exports, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		list:     list,
		clip:     clip,
		exports:  exports,
		sessions: NewSessions(),
		logger:   logger,
	}
}

// Sessions exposes the session registry.
func (h *Handler) Sessions() *Sessions {
	return h.sessions
}

// writeError reports err with its mapped status. Unexpected errors are
// logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == 0 {
		h.logger.Error("api: "+op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func noteID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into v and runs its Validate method if it has one.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if val, ok := v.(interface{ Validate() error }); ok {
		if err := val.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return false
		}
	}
	return true
}

// ListNotes handles GET /notes. A q parameter turns the listing into a
// title search; a blank q is rejected.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	var (
		items []models.NoteSummary
		err   error
	)
	if q := r.URL.Query(); q.Has("q") {
		items, err = h.list.Search(r.Context(), q.Get("q"))
	} else {
		items, err = h.list.List(r.Context(), models.SearchFilter{})
	}
	if err != nil {
		h.writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{
		Notes:        items,
		Total:        len(items),
		LastModified: h.list.LastModified(),
	})
}

// GetNote handles GET /notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	note, err := h.list.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get note", err)
		return
	}
	etag := `"` + checksum.NoteETag(note.ID, note.ModifiedAt) + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /notes/{id}. Deleting a missing note succeeds.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	if err := h.list.Delete(r.Context(), id); err != nil {
		h.writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CopyNote handles POST /notes/{id}/copy.
func (h *Handler) CopyNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	if err := h.list.CopyReference(r.Context(), id); err != nil {
		h.writeError(w, "copy note", err)
		return
	}
	writeJSON(w, http.StatusOK, RefResponse{Ref: clipboard.FormatRef(id)})
}

// PickNote handles GET /notes/{id}/pick.
func (h *Handler) PickNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	ref, err := h.list.Pick(r.Context(), id)
	if err != nil {
		h.writeError(w, "pick note", err)
		return
	}
	writeJSON(w, http.StatusOK, RefResponse{Ref: ref})
}

// StartSession handles POST /sessions.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !decode(w, r, &req) {
		return
	}
	var (
		ed  *editor.Editor
		err error
	)
	switch req.Action {
	case ActionInsert:
		ed, err = h.list.StartInsertSession(r.Context())
	case ActionEdit:
		ed, err = h.list.StartEditSession(r.Context(), req.ID)
	case ActionPaste:
		ed, err = h.list.PasteAsNew(r.Context())
	}
	if err != nil {
		h.writeError(w, "start session", err)
		return
	}
	sid := h.sessions.Add(ed)
	h.logger.Debug("api: session started",
		slog.String("session", sid),
		slog.String("action", req.Action),
		slog.Int64("note", ed.NoteID()))
	writeJSON(w, http.StatusCreated, viewOf(sid, ed.Session()))
}

// GetSession handles GET /sessions/{sid}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "get session", func(*editor.Editor) error { return nil })
}

// SetBody handles PUT /sessions/{sid}/body.
func (h *Handler) SetBody(w http.ResponseWriter, r *http.Request) {
	var req SetBodyRequest
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, "set body", func(ed *editor.Editor) error {
		ed.SetText(*req.Body)
		return nil
	})
}

// Suspend handles POST /sessions/{sid}/suspend.
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "suspend", func(ed *editor.Editor) error {
		return ed.Suspend(r.Context())
	})
}

// Exit handles POST /sessions/{sid}/exit.
func (h *Handler) Exit(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "exit", outcomeOnly(r.Context(), (*editor.Editor).Exit))
}

// Save handles POST /sessions/{sid}/save.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "save", outcomeOnly(r.Context(), (*editor.Editor).SaveAndClose))
}

// Revert handles POST /sessions/{sid}/revert.
func (h *Handler) Revert(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "revert", outcomeOnly(r.Context(), (*editor.Editor).Revert))
}

// DeleteSessionNote handles POST /sessions/{sid}/delete.
func (h *Handler) DeleteSessionNote(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "delete", outcomeOnly(r.Context(), (*editor.Editor).Delete))
}

func outcomeOnly(ctx context.Context, action func(*editor.Editor, context.Context) (editor.Outcome, error)) func(*editor.Editor) error {
	return func(ed *editor.Editor) error {
		_, err := action(ed, ctx)
		return err
	}
}

// withSession runs fn on the session named in the URL and writes the
// resulting session view. The view is written even when fn fails with
// not-found so the caller sees the self-deleted outcome.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, op string, fn func(*editor.Editor) error) {
	sid := chi.URLParam(r, "sid")
	var view SessionView
	err := h.sessions.With(sid, func(ed *editor.Editor) error {
		err := fn(ed)
		view = viewOf(sid, ed.Session())
		return err
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, view)
	case errors.Is(err, apperr.ErrNotFound) && view.ID != "":
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   err.Error(),
			"session": view,
		})
	default:
		h.writeError(w, op, err)
	}
}

// ExportSession handles POST /sessions/{sid}/export.
func (h *Handler) ExportSession(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decode(w, r, &req) {
		return
	}
	var res editor.ExportResult
	err := h.sessions.With(chi.URLParam(r, "sid"), func(ed *editor.Editor) error {
		var err error
		res, err = ed.Export(r.Context(), h.exports, req.Name)
		return err
	})
	if err != nil {
		h.writeError(w, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListExports handles GET /exports.
func (h *Handler) ListExports(w http.ResponseWriter, r *http.Request) {
	files, err := h.exports.List()
	if err != nil {
		h.writeError(w, "list exports", err)
		return
	}
	if files == nil {
		files = []export.File{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// GetClipboard handles GET /clipboard.
func (h *Handler) GetClipboard(w http.ResponseWriter, r *http.Request) {
	c, ok, err := h.clip.Read(r.Context())
	if err != nil {
		h.writeError(w, "read clipboard", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, ClipboardResponse{Empty: true})
		return
	}
	writeJSON(w, http.StatusOK, ClipboardResponse{Clip: &c})
}

// PutClipboard handles PUT /clipboard.
func (h *Handler) PutClipboard(w http.ResponseWriter, r *http.Request) {
	var req ClipboardRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.clip.Write(r.Context(), req.Clip()); err != nil {
		h.writeError(w, "write clipboard", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExitIdle runs the exit checkpoint on sessions idle longer than maxIdle,
// as a navigate-away would. It returns the number of sessions closed.
func (h *Handler) ExitIdle(ctx context.Context, maxIdle time.Duration) int {
	closed := 0
	for _, sid := range h.sessions.Stale(maxIdle) {
		err := h.sessions.With(sid, func(ed *editor.Editor) error {
			_, err := ed.Exit(ctx)
			return err
		})
		switch {
		case err == nil, errors.Is(err, apperr.ErrNotFound):
			closed++
		case errors.Is(err, errUnknownSession):
		default:
			h.logger.Warn("api: idle session exit failed",
				slog.String("session", sid),
				slog.String("error", err.Error()))
		}
	}
	if closed > 0 {
		h.logger.Info("api: idle sessions closed", slog.Int("count", closed))
	}
	return closed
}
