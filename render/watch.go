package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-renders the site whenever the template file changes and
// serves the site root for local preview.
type Watcher struct {
	cfg  Config
	root string
	addr string
}

// NewWatcher prepares watch mode for cfg. cfg.TemplatePath must point at a
// real file; there is nothing to watch with the embedded template.
func NewWatcher(cfg Config, root, addr string) (*Watcher, error) {
	if cfg.TemplatePath == "" {
		return nil, fmt.Errorf("watch mode needs a template file")
	}
	return &Watcher{cfg: cfg, root: root, addr: addr}, nil
}

// Run renders once, then blocks re-rendering on template changes until ctx
// is done.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := RenderSite(w.cfg); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory rather than the file: editors replace files on
	// save, which drops per-file watches.
	if err := fsw.Add(filepath.Dir(w.cfg.TemplatePath)); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.TemplatePath, err)
	}

	server := &http.Server{Addr: w.addr, Handler: http.FileServer(http.Dir(w.root))}
	go func() {
		slog.Info("serving site", slog.String("addr", w.addr), slog.String("root", w.root))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("dev server failed", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	target, err := filepath.Abs(w.cfg.TemplatePath)
	if err != nil {
		return fmt.Errorf("resolve template path: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			changed, err := filepath.Abs(event.Name)
			if err != nil || changed != target {
				continue
			}
			slog.Info("template changed, re-rendering", slog.String("file", event.Name))
			if pages, err := RenderSite(w.cfg); err != nil {
				slog.Error("re-render failed", slog.Any("error", err))
			} else {
				slog.Info("re-rendered", slog.Int("pages", pages))
			}
		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch error", slog.Any("error", watchErr))
		}
	}
}
