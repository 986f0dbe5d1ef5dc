package clipboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no system clipboard utility is available.
var ErrUnsupported = errors.New("clipboard: system clipboard unsupported")

// System is a Channel over the desktop clipboard. Note references travel
// as their reference URI so other applications see plain text.
type System struct{}

// NewSystem returns the system clipboard channel.
func NewSystem() (*System, error) {
	if clipboard.Unsupported {
		return nil, ErrUnsupported
	}
	return &System{}, nil
}

func (s *System) Write(_ context.Context, c Clip) error {
	if err := clipboard.WriteAll(c.String()); err != nil {
		return fmt.Errorf("clipboard: write: %w", err)
	}
	return nil
}

func (s *System) Read(_ context.Context) (Clip, bool, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return Clip{}, false, fmt.Errorf("clipboard: read: %w", err)
	}
	if text == "" {
		return Clip{}, false, nil
	}
	if id, ok := ParseRef(text); ok {
		return NoteRef(id), true, nil
	}
	return Text(text), true, nil
}
