package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/notepad/internal/clipboard"
	"github.com/starford/notepad/internal/export"
	"github.com/starford/notepad/internal/notelist"
	"github.com/starford/notepad/internal/repository"
	"github.com/starford/notepad/internal/testutil"
)

type testEnv struct {
	repo    *repository.Repository
	clip    *clipboard.Memory
	handler *Handler
	router  http.Handler
}

// newTestEnv sets up a temp SQLite store, clipboard, export dir and router.
// A non-empty authToken enables token mode.
func newTestEnv(t *testing.T, authToken string) *testEnv {
	t.Helper()
	return newTestEnvWithSSE(t, authToken, nil)
}

func newTestEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) *testEnv {
	t.Helper()
	repo, _ := testutil.TestRepo(t)
	clip := clipboard.NewMemory()
	sink, err := export.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	h := NewHandler(notelist.New(repo, clip), clip, sink, nil)
	return &testEnv{
		repo:    repo,
		clip:    clip,
		handler: h,
		router:  NewRouter(h, authToken != "", authToken, sseHandler),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) SessionView {
	t.Helper()
	var v SessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode session: %v (%s)", err, w.Body.String())
	}
	return v
}

// createNote drives an insert session to completion and returns the note id.
func (e *testEnv) createNote(t *testing.T, body string) int64 {
	t.Helper()
	w := e.do(t, http.MethodPost, "/sessions", map[string]any{"action": "insert"})
	if w.Code != http.StatusCreated {
		t.Fatalf("start insert = %d, body = %s", w.Code, w.Body.String())
	}
	v := decodeView(t, w)
	if w := e.do(t, http.MethodPut, "/sessions/"+v.ID+"/body", map[string]any{"body": body}); w.Code != http.StatusOK {
		t.Fatalf("set body = %d", w.Code)
	}
	w = e.do(t, http.MethodPost, "/sessions/"+v.ID+"/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	return v.NoteID
}

func notePath(id int64) string {
	return "/notes/" + strconv.FormatInt(id, 10)
}

func TestInsertSessionLifecycle(t *testing.T) {
	e := newTestEnv(t, "")
	id := e.createNote(t, "the quick brown fox jumps over the lazy dog")

	w := e.do(t, http.MethodGet, notePath(id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	var note struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Title != "the quick brown fox jumps" {
		t.Errorf("title = %q", note.Title)
	}
	if w.Header().Get("ETag") == "" {
		t.Error("missing ETag")
	}
	if e.handler.Sessions().Len() != 0 {
		t.Errorf("closed session still registered")
	}
}

func TestGetNoteNotModified(t *testing.T) {
	e := newTestEnv(t, "")
	id := e.createNote(t, "etag me")

	w := e.do(t, http.MethodGet, notePath(id), nil)
	etag := w.Header().Get("ETag")
	w = e.do(t, http.MethodGet, notePath(id), nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}
}

func TestAbandonedInsertLeavesNothing(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodPost, "/sessions", map[string]any{"action": "insert"})
	v := decodeView(t, w)
	w = e.do(t, http.MethodPost, "/sessions/"+v.ID+"/exit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("exit = %d", w.Code)
	}
	if got := decodeView(t, w); got.Outcome != "cancelled" || !got.Closed {
		t.Errorf("outcome = %q closed = %v", got.Outcome, got.Closed)
	}

	w = e.do(t, http.MethodGet, notePath(v.NoteID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get abandoned note = %d, want 404", w.Code)
	}
}

func TestEditRevert(t *testing.T) {
	e := newTestEnv(t, "")
	id := e.createNote(t, "A")

	w := e.do(t, http.MethodPost, "/sessions", map[string]any{"action": "edit", "id": id})
	if w.Code != http.StatusCreated {
		t.Fatalf("start edit = %d, body = %s", w.Code, w.Body.String())
	}
	v := decodeView(t, w)

	// Nothing to revert yet.
	if w := e.do(t, http.MethodPost, "/sessions/"+v.ID+"/revert", nil); w.Code != http.StatusConflict {
		t.Errorf("clean revert = %d, want 409", w.Code)
	}

	e.do(t, http.MethodPut, "/sessions/"+v.ID+"/body", map[string]any{"body": "B"})
	if w := e.do(t, http.MethodPost, "/sessions/"+v.ID+"/suspend", nil); w.Code != http.StatusOK {
		t.Fatalf("suspend = %d", w.Code)
	}
	w = e.do(t, http.MethodPost, "/sessions/"+v.ID+"/revert", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("revert = %d, body = %s", w.Code, w.Body.String())
	}

	n, err := e.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if n.Body != "A" {
		t.Errorf("body after revert = %q, want A", n.Body)
	}

	// The session is gone once closed.
	if w := e.do(t, http.MethodGet, "/sessions/"+v.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("closed session = %d, want 404", w.Code)
	}
}

func TestEditMissingNote(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.do(t, http.MethodPost, "/sessions", map[string]any{"action": "edit", "id": 99})
	if w.Code != http.StatusNotFound {
		t.Errorf("edit missing = %d, want 404", w.Code)
	}
}

func TestStartSessionValidation(t *testing.T) {
	e := newTestEnv(t, "")
	for _, body := range []map[string]any{
		{},
		{"action": "open"},
		{"action": "edit"},
	} {
		if w := e.do(t, http.MethodPost, "/sessions", body); w.Code != http.StatusBadRequest {
			t.Errorf("start %v = %d, want 400", body, w.Code)
		}
	}
	if w := e.do(t, http.MethodPut, "/sessions/x/body", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing body = %d, want 400", w.Code)
	}
}

func TestConcurrentDeleteSelfDeletes(t *testing.T) {
	e := newTestEnv(t, "")
	id := e.createNote(t, "shared")

	w := e.do(t, http.MethodPost, "/sessions", map[string]any{"action": "edit", "id": id})
	v := decodeView(t, w)

	if w := e.do(t, http.MethodDelete, notePath(id), nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}

	e.do(t, http.MethodPut, "/sessions/"+v.ID+"/body", map[string]any{"body": "late edit"})
	w = e.do(t, http.MethodPost, "/sessions/"+v.ID+"/save", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("save after delete = %d, want 404", w.Code)
	}
	var resp struct {
		Session SessionView `json:"session"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Session.Outcome != "self_deleted" {
		t.Errorf("outcome = %q, want self_deleted", resp.Session.Outcome)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	e := newTestEnv(t, "")
	id := e.createNote(t, "bye")
	for i := 0; i < 2; i++ {
		if w := e.do(t, http.MethodDelete, notePath(id), nil); w.Code != http.StatusNoContent {
			t.Errorf("delete #%d = %d, want 204", i+1, w.Code)
		}
	}
	if w := e.do(t, http.MethodGet, notePath(id), nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestListAndSearch(t *testing.T) {
	e := newTestEnv(t, "")
	for _, body := range []string{"Alpha", "Beta", "Gamma"} {
		e.createNote(t, body)
	}

	w := e.do(t, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 || resp.Notes[0].Title != "Gamma" {
		t.Errorf("list = %+v", resp)
	}
	if resp.LastModified != resp.Notes[0].ModifiedAt {
		t.Errorf("last_modified = %d, want %d", resp.LastModified, resp.Notes[0].ModifiedAt)
	}

	w = e.do(t, http.MethodGet, "/notes?q=mm", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Notes[0].Title != "Gamma" {
		t.Errorf("search = %+v", resp)
	}

	if w := e.do(t, http.MethodGet, "/notes?q=", nil); w.Code != http.StatusBadRequest {
		t.Errorf("blank search = %d, want 400", w.Code)
	}
}

func TestCopyPickAndPaste(t *testing.T) {
	e := newTestEnv(t, "")
	id := e.createNote(t, "source body")

	w := e.do(t, http.MethodPost, notePath(id)+"/copy", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("copy = %d", w.Code)
	}

	w = e.do(t, http.MethodGet, "/clipboard", nil)
	var cb ClipboardResponse
	_ = json.Unmarshal(w.Body.Bytes(), &cb)
	if cb.Empty || cb.Clip == nil || cb.Clip.NoteID != id {
		t.Fatalf("clipboard = %s", w.Body.String())
	}

	w = e.do(t, http.MethodGet, notePath(id)+"/pick", nil)
	var ref RefResponse
	_ = json.Unmarshal(w.Body.Bytes(), &ref)
	if got, ok := clipboard.ParseRef(ref.Ref); !ok || got != id {
		t.Errorf("pick = %q", ref.Ref)
	}

	w = e.do(t, http.MethodPost, "/sessions", map[string]any{"action": "paste"})
	if w.Code != http.StatusCreated {
		t.Fatalf("paste = %d", w.Code)
	}
	v := decodeView(t, w)
	if v.Body != "source body" || v.NoteID == id || !v.Dirty {
		t.Errorf("pasted session = %+v", v)
	}

	if w := e.do(t, http.MethodPost, "/notes/12345/copy", nil); w.Code != http.StatusNotFound {
		t.Errorf("copy missing = %d, want 404", w.Code)
	}
}

func TestClipboardPutText(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodGet, "/clipboard", nil)
	var cb ClipboardResponse
	_ = json.Unmarshal(w.Body.Bytes(), &cb)
	if !cb.Empty {
		t.Errorf("fresh clipboard not empty")
	}

	if w := e.do(t, http.MethodPut, "/clipboard", map[string]any{"kind": "text", "value": "hi"}); w.Code != http.StatusNoContent {
		t.Fatalf("put = %d", w.Code)
	}
	if w := e.do(t, http.MethodPut, "/clipboard", map[string]any{"kind": "note-ref"}); w.Code != http.StatusBadRequest {
		t.Errorf("ref without id = %d, want 400", w.Code)
	}
	c, ok, _ := e.clip.Read(context.Background())
	if !ok || c.Value != "hi" {
		t.Errorf("clip = %+v", c)
	}
}

func TestExport(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodPost, "/sessions", map[string]any{"action": "insert"})
	v := decodeView(t, w)
	e.do(t, http.MethodPut, "/sessions/"+v.ID+"/body", map[string]any{"body": "export me"})

	if w := e.do(t, http.MethodPost, "/sessions/"+v.ID+"/export", map[string]any{"name": "  "}); w.Code != http.StatusBadRequest {
		t.Errorf("blank name = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/sessions/"+v.ID+"/export", map[string]any{"name": "../escape"}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("escaping name = %d, want 422", w.Code)
	}

	w = e.do(t, http.MethodPost, "/sessions/"+v.ID+"/export", map[string]any{"name": "memo"})
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d, body = %s", w.Code, w.Body.String())
	}
	var res ExportResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Name != "memo.txt" || res.Bytes != len("export me") || res.Checksum == "" {
		t.Errorf("export result = %+v", res)
	}

	w = e.do(t, http.MethodGet, "/exports", nil)
	var files struct {
		Files []export.File `json:"files"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &files)
	if len(files.Files) != 1 || files.Files[0].Name != "memo.txt" {
		t.Errorf("exports = %s", w.Body.String())
	}

	// Export leaves the session open and dirty.
	if got := decodeView(t, e.do(t, http.MethodGet, "/sessions/"+v.ID, nil)); got.Closed || got.Body != "export me" {
		t.Errorf("session after export = %+v", got)
	}
}

func TestExitIdle(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodPost, "/sessions", map[string]any{"action": "insert"})
	blank := decodeView(t, w)
	w = e.do(t, http.MethodPost, "/sessions", map[string]any{"action": "insert"})
	kept := decodeView(t, w)
	e.do(t, http.MethodPut, "/sessions/"+kept.ID+"/body", map[string]any{"body": "keep me"})

	if n := e.handler.ExitIdle(context.Background(), -time.Second); n != 2 {
		t.Errorf("closed = %d, want 2", n)
	}
	if _, err := e.repo.Get(context.Background(), blank.NoteID); err == nil {
		t.Error("blank note survived idle exit")
	}
	n, err := e.repo.Get(context.Background(), kept.NoteID)
	if err != nil || n.Body != "keep me" {
		t.Errorf("kept note = %+v, %v", n, err)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := newTestEnv(t, "secret123")
	w := e.do(t, http.MethodGet, "/notes", nil, "Authorization", "Bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := newTestEnv(t, "secret123")
	if w := e.do(t, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := newTestEnv(t, "secret123")
	if w := e.do(t, http.MethodGet, "/notes", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestGetNote_BadID(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodGet, "/notes/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", w.Code)
	}
}

// stubSSE writes headers and blocks until the request context ends.
var stubSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := newTestEnvWithSSE(t, "secret", stubSSE)
	if w := e.do(t, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := newTestEnvWithSSE(t, "tok", stubSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSSEEvents_QueryToken(t *testing.T) {
	e := newTestEnvWithSSE(t, "tok", stubSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?token=tok", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with token query parameter should not 401")
	}

	if w := e.do(t, http.MethodGet, "/events?token=nope", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE wrong query token = %d, want 401", w.Code)
	}
}

func TestQueryTokenRejectedOutsideEvents(t *testing.T) {
	e := newTestEnvWithSSE(t, "tok", stubSSE)
	if w := e.do(t, http.MethodGet, "/notes?token=tok", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("list with query token = %d, want 401", w.Code)
	}
}

func TestAccessLogOmitsQueryToken(t *testing.T) {
	e := newTestEnvWithSSE(t, "s3cr3t-tok", stubSSE)

	var logs bytes.Buffer
	r := chi.NewRouter()
	r.Use(StripQueryToken)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.New(&logs, "", 0),
		NoColor: true,
	}))
	r.Mount("/api", e.router)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events?token=s3cr3t-tok&since=1", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Fatal("SSE with token query parameter should not 401")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/notes?token=s3cr3t-tok", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("list with query token = %d, want 401", w.Code)
	}

	out := logs.String()
	if !strings.Contains(out, "/api/events?since=1") {
		t.Errorf("access log missing events request: %q", out)
	}
	if strings.Contains(out, "s3cr3t-tok") {
		t.Errorf("access log leaked token: %q", out)
	}
}
