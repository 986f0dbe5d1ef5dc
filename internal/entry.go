// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notepad/internal/api"
	"github.com/starford/notepad/internal/clipboard"
	"github.com/starford/notepad/internal/export"
	"github.com/starford/notepad/internal/mcpserver"
	"github.com/starford/notepad/internal/models"
	"github.com/starford/notepad/internal/notelist"
	"github.com/starford/notepad/internal/repository"
	"github.com/starford/notepad/internal/sse"
	"github.com/starford/notepad/internal/store"
)

// core is the wired notepad without any presentation layer.
type core struct {
	store   store.Store
	repo    *repository.Repository
	clip    clipboard.Channel
	exports *export.FS
	list    *notelist.Controller
	close   func()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// openStore opens the record store selected by cfg.
func openStore(cfg StoreConfig) (store.Store, error) {
	opts := []store.Option{store.WithCaseSensitive(cfg.CaseSensitive)}
	switch cfg.Driver {
	case DriverSQLite:
		return store.OpenSQLite(cfg.Path, opts...)
	case DriverPostgres:
		return store.OpenPostgres(cfg.DSN, opts...)
	case DriverMemory:
		return store.NewMemory(opts...), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openClipboard(cfg ClipboardConfig, logger *slog.Logger) clipboard.Channel {
	if cfg.Backend == ClipboardSystem {
		sys, err := clipboard.NewSystem()
		if err == nil {
			return sys
		}
		logger.Warn("system clipboard unavailable, using in-process clipboard",
			slog.String("error", err.Error()))
	}
	return clipboard.NewMemory()
}

// build wires store, repository, clipboard, export sink and list controller.
// notify, when non-nil, receives every note mutation.
func (app *application) build(logger *slog.Logger, notify repository.Notifier) (*core, error) {
	cfg := app.config
	c := &core{close: func() {}}

	c.store = app.store
	if c.store == nil {
		s, err := openStore(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		c.store = s
		c.close = func() {
			if err := s.Close(); err != nil {
				logger.Error("store close failed", slog.String("error", err.Error()))
			}
		}
	}

	exports, err := export.NewFS(cfg.Export.Dir)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("init export dir: %w", err)
	}
	c.exports = exports

	c.clip = app.clipboard
	if c.clip == nil {
		c.clip = openClipboard(cfg.Clipboard, logger)
	}

	repoOpts := []repository.Option{repository.WithLogger(logger)}
	if notify != nil {
		repoOpts = append(repoOpts, repository.WithNotifier(notify))
	}
	c.repo = repository.New(c.store, repoOpts...)
	c.list = notelist.New(c.repo, c.clip, notelist.WithLogger(logger))
	return c, nil
}

func newLogger(app *application) *slog.Logger {
	return slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(app)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("export_dir", cfg.Export.Dir),
		slog.String("clipboard", cfg.Clipboard.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	c, err := app.build(logger, broker.PublishNoteEvent)
	if err != nil {
		return err
	}
	defer c.close()

	handler := api.NewHandler(c.list, c.clip, c.exports, logger)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.StripQueryToken)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		for _, err := range c.repo.Query(req.Context(), models.SearchFilter{}) {
			if err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
			break
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the database file for writes by other processes.
	if sq, ok := c.store.(*store.SQLite); ok && cfg.Store.Watch {
		g.Go(func() error {
			err := store.Watch(gCtx, sq.Path(), logger, func() {
				if err := sq.Reload(); err != nil {
					logger.Warn("watermark reload failed", slog.String("error", err.Error()))
				}
				broker.PublishRefresh("watcher")
			})
			if err != nil {
				logger.Warn("store watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Close editor sessions left idle, as if the user navigated away.
	if idle := time.Duration(cfg.App.HTTP.SessionIdleMinutes) * time.Minute; idle > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(idle / 2)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					handler.ExitIdle(gCtx, idle)
				}
			}
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Open sessions get their exit checkpoint so blank inserts leave no rows.
		if n := handler.ExitIdle(shutdownCtx, -time.Second); n > 0 {
			logger.Info("Closed open editor sessions", slog.Int("count", n))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown ends the errgroup once the server has been shut down, so the
// watcher and idle-session loops stop too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the notepad tools over MCP on stdin/stdout. Logs go to the
// configured log output, which must not be stdout.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := newLogger(app)
	slog.SetDefault(logger)

	c, err := app.build(logger, nil)
	if err != nil {
		return err
	}
	defer c.close()

	logger.Info("MCP server starting",
		slog.String("store_driver", app.config.Store.Driver),
		slog.String("export_dir", app.config.Export.Dir))
	return mcpserver.New(c.list, c.exports, logger).ServeStdio()
}
