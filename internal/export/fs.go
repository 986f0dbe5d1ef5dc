// Package export writes note bodies to files in an export directory.
package export

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultExt is appended to export names that carry no extension.
const DefaultExt = ".txt"

// File describes one exported file.
type File struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FS is an export sink rooted at a directory.
type FS struct {
	root string // absolute path to export directory
}

// NewFS creates an export sink rooted at dir, creating the directory if needed.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("export: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("export: mkdir root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("export: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("export: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute export directory.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves name against the export root and rejects any result
// that escapes it.
func (f *FS) safePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("export: empty name")
	}
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("export: absolute paths not allowed: %s", name)
	}
	if filepath.Ext(cleaned) == "" {
		cleaned += DefaultExt
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("export: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("export: path escapes export root: %s", name)
	}
	return abs, nil
}

// ResolveName returns the name an export of name is stored and listed under.
func (f *FS) ResolveName(name string) (string, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return "", err
	}
	return f.relName(abs), nil
}

func (f *FS) relName(abs string) string {
	rel, _ := filepath.Rel(f.root, abs)
	return filepath.ToSlash(rel)
}

// OpenForWrite opens name for writing. Content becomes visible atomically
// when the returned writer is closed: tmp file → fsync → rename.
func (f *FS) OpenForWrite(name string) (io.WriteCloser, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".notepad-tmp-*")
	if err != nil {
		return nil, fmt.Errorf("export: create temp: %w", err)
	}
	return &atomicFile{tmp: tmp, dest: abs}, nil
}

// List returns every exported file, sorted by name.
func (f *FS) List() ([]File, error) {
	var out []File
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".notepad-tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, File{Name: f.relName(p), Size: info.Size(), UpdatedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// atomicFile buffers writes in a temp file and renames it into place on Close.
type atomicFile struct {
	tmp    *os.File
	dest   string
	failed bool
	closed bool
}

func (a *atomicFile) Write(p []byte) (int, error) {
	n, err := a.tmp.Write(p)
	if err != nil {
		a.failed = true
		return n, fmt.Errorf("export: write temp: %w", err)
	}
	return n, nil
}

func (a *atomicFile) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	tmpName := a.tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = a.tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if a.failed {
		return fmt.Errorf("export: discarded after failed write")
	}
	if err := a.tmp.Sync(); err != nil {
		return fmt.Errorf("export: fsync: %w", err)
	}
	if err := a.tmp.Close(); err != nil {
		return fmt.Errorf("export: close temp: %w", err)
	}
	if err := os.Rename(tmpName, a.dest); err != nil {
		return fmt.Errorf("export: rename: %w", err)
	}
	success = true
	return nil
}
