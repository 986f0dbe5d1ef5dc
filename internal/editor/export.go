package editor

import (
	"fmt"
	"io"
	"strings"

	"github.com/starford/notepad/internal/apperr"
	"github.com/starford/notepad/internal/checksum"
)

// Sink opens named byte sinks for export.
type Sink interface {
	OpenForWrite(name string) (io.WriteCloser, error)
}

// NamingSink is a Sink that stores exports under a normalized name, such as
// one with a default extension appended.
type NamingSink interface {
	Sink
	ResolveName(name string) (string, error)
}

// ExportResult describes a completed export.
type ExportResult struct {
	Name     string `json:"name"`
	Bytes    int    `json:"bytes"`
	Checksum string `json:"checksum"`
}

// Export writes the session's working text as UTF-8 bytes to sink under
// name. It never changes the session or storage. The result carries the name
// the sink stored the text under.
func Export(s Session, sink Sink, name string) (ExportResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ExportResult{}, fmt.Errorf("export: file name: %w", apperr.ErrEmptyInput)
	}
	stored := name
	if ns, ok := sink.(NamingSink); ok {
		resolved, err := ns.ResolveName(name)
		if err != nil {
			return ExportResult{}, fmt.Errorf("export: open %q: %w: %v", name, apperr.ErrSinkUnwritable, err)
		}
		stored = resolved
	}
	w, err := sink.OpenForWrite(name)
	if err != nil {
		return ExportResult{}, fmt.Errorf("export: open %q: %w: %v", name, apperr.ErrSinkUnwritable, err)
	}
	data := []byte(s.WorkingBody)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return ExportResult{}, fmt.Errorf("export: write %q: %w: %v", name, apperr.ErrSinkUnwritable, err)
	}
	if err := w.Close(); err != nil {
		return ExportResult{}, fmt.Errorf("export: close %q: %w: %v", name, apperr.ErrSinkUnwritable, err)
	}
	return ExportResult{Name: stored, Bytes: len(data), Checksum: checksum.Sum(data)}, nil
}
