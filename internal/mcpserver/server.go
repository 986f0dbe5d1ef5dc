// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notepad tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notepad/internal/apperr"
	"github.com/starford/notepad/internal/clipboard"
	"github.com/starford/notepad/internal/editor"
	"github.com/starford/notepad/internal/models"
	"github.com/starford/notepad/internal/notelist"
)

// Server wraps the MCP server with notepad tools.
type Server struct {
	mcp     *server.MCPServer
	list    *notelist.Controller
	exports editor.Sink
	logger  *slog.Logger
}

// New creates a new MCP server with all notepad tools registered. exports
// may be nil, in which case export_note is not offered.
func New(list *notelist.Controller, exports editor.Sink, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{list: list, exports: exports, logger: logger}

	s.mcp = server.NewMCPServer(
		"Notepad",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, most recently modified first."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("List notes whose title contains the given text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for in note titles")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note's title and body."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id, or a note://notes/<id> reference")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. The title is taken from the start of the body."),
		mcp.WithString("body", mcp.Required(), mcp.Description("Note text")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace a note's body. The title is left unchanged."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("body", mcp.Required(), mcp.Description("New note text")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note. Deleting a missing note is not an error."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("copy_note_reference",
		mcp.WithDescription("Put a reference to a note on the clipboard for paste_as_new_note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.copyNoteReference)

	s.mcp.AddTool(mcp.NewTool("paste_as_new_note",
		mcp.WithDescription("Create a note from the clipboard. A note reference copies that note's title and body."),
	), s.pasteAsNewNote)

	if exports != nil {
		s.mcp.AddTool(mcp.NewTool("export_note",
			mcp.WithDescription("Write a note's body to a text file in the export directory."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
			mcp.WithString("name", mcp.Required(), mcp.Description("File name; .txt is added when there is no extension")),
		), s.exportNote)
	}

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(clipboard.RefPrefix+"{id}", "Note",
			mcp.WithTemplateDescription("Body of a single note."),
			mcp.WithTemplateMIMEType("text/plain"),
		),
		s.readNoteResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// parseID accepts a bare id or a note reference.
func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if id, ok := clipboard.ParseRef(raw); ok {
		return id, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid note id: %q", raw)
	}
	return id, nil
}

func requireID(req mcp.CallToolRequest) (int64, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return 0, err
	}
	return parseID(raw)
}

func (s *Server) toolError(op string, err error) *mcp.CallToolResult {
	if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrEmptyInput) {
		s.logger.Error("mcp: "+op+" failed", slog.String("error", err.Error()))
	}
	return mcp.NewToolResultError(err.Error())
}

// discard drops the note of an insert session whose save failed, so no
// empty row outlives the tool call.
func (s *Server) discard(ctx context.Context, ed *editor.Editor) {
	if _, err := ed.Delete(ctx); err != nil && !errors.Is(err, apperr.ErrSessionClosed) {
		s.logger.Warn("mcp: discard unsaved note failed",
			slog.Int64("id", ed.NoteID()),
			slog.String("error", err.Error()))
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.list.List(ctx, models.SearchFilter{})
	if err != nil {
		return s.toolError("list_notes", err), nil
	}
	return jsonResult(items), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.list.Search(ctx, query)
	if err != nil {
		return s.toolError("search_notes", err), nil
	}
	return jsonResult(items), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.list.Get(ctx, id)
	if err != nil {
		return s.toolError("read_note", err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(body) == "" {
		return mcp.NewToolResultError("body must not be blank"), nil
	}
	ed, err := s.list.StartInsertSession(ctx)
	if err != nil {
		return s.toolError("create_note", err), nil
	}
	ed.SetText(body)
	if _, err := ed.SaveAndClose(ctx); err != nil {
		s.discard(ctx, ed)
		return s.toolError("create_note", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d", ed.NoteID())), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ed, err := s.list.StartEditSession(ctx, id)
	if err != nil {
		return s.toolError("update_note", err), nil
	}
	ed.SetText(body)
	out, err := ed.SaveAndClose(ctx)
	if err != nil {
		return s.toolError("update_note", err), nil
	}
	// An empty body removes the note, as leaving an editor blank does.
	if out == editor.OutcomeCancelled {
		return mcp.NewToolResultText(fmt.Sprintf("deleted: %d (empty body)", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %d", id)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.list.Delete(ctx, id); err != nil {
		return s.toolError("delete_note", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %d", id)), nil
}

func (s *Server) copyNoteReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.list.CopyReference(ctx, id); err != nil {
		return s.toolError("copy_note_reference", err), nil
	}
	return mcp.NewToolResultText(clipboard.FormatRef(id)), nil
}

func (s *Server) pasteAsNewNote(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ok, err := s.list.CanPaste(ctx)
	if err != nil {
		return s.toolError("paste_as_new_note", err), nil
	}
	if !ok {
		return mcp.NewToolResultError("clipboard is empty"), nil
	}
	ed, err := s.list.PasteAsNew(ctx)
	if err != nil {
		return s.toolError("paste_as_new_note", err), nil
	}
	out, err := ed.SaveAndClose(ctx)
	if err != nil {
		s.discard(ctx, ed)
		return s.toolError("paste_as_new_note", err), nil
	}
	if out == editor.OutcomeCancelled {
		return mcp.NewToolResultError("clipboard held no text"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d", ed.NoteID())), nil
}

func (s *Server) exportNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	// The session is only read from and never closed, so nothing is saved.
	ed, err := s.list.StartEditSession(ctx, id)
	if err != nil {
		return s.toolError("export_note", err), nil
	}
	res, err := ed.Export(ctx, s.exports, name)
	if err != nil {
		return s.toolError("export_note", err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) readNoteResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, ok := clipboard.ParseRef(req.Params.URI)
	if !ok {
		return nil, fmt.Errorf("invalid note reference: %q", req.Params.URI)
	}
	n, err := s.list.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     n.Body,
		},
	}, nil
}
