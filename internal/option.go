package internal

import (
	"io"

	"github.com/starford/notepad/internal/clipboard"
	"github.com/starford/notepad/internal/store"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	store     store.Store
	clipboard clipboard.Channel
	logOut    io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithStore supplies an already opened record store instead of opening the
// configured one. The caller keeps ownership and closes it.
func WithStore(s store.Store) Option {
	return func(a *application) {
		a.store = s
	}
}

// WithClipboard overrides the configured clipboard backend.
func WithClipboard(c clipboard.Channel) Option {
	return func(a *application) {
		a.clipboard = c
	}
}

// WithLogOutput redirects the JSON log stream. The MCP server uses stderr
// because stdout carries the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}
