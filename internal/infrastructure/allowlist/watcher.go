package allowlist

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the allow-list when its file changes on disk.
type Watcher struct {
	path     string
	reloader *Reloader
	debounce time.Duration
	fsw      *fsnotify.Watcher
	log      zerolog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the file must stay quiet before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher starts watching the directory holding path. Watching the
// directory rather than the file survives editors and config management
// tools that replace the file by rename.
func NewWatcher(path string, reloader *Reloader, log zerolog.Logger, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		reloader: reloader,
		debounce: defaultDebounce,
		log:      log,
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("allowlist: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("allowlist: watch dir %s: %w", dir, err)
	}
	w.fsw = fsw
	return w, nil
}

// Run handles file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	base := filepath.Base(w.path)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	w.log.Info().Str("file", w.path).Msg("allow-list watcher started")

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("allow-list file changed")
			timer.Reset(w.debounce)

		case <-timer.C:
			if err := w.reloader.Reload(ctx, TriggerWatch); err != nil {
				w.log.Error().Err(err).Str("file", w.path).Msg("allow-list reload after change failed")
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Str("file", w.path).Msg("allow-list watcher error")
		}
	}
}
