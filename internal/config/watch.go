package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// Settle is how long the file must stay quiet before it is reloaded,
	// so an editor's burst of writes produces one reload.
	Settle time.Duration
	// Ready, if set, is called once the watch is in place.
	Ready  func()
	Logger *slog.Logger
}

// Watch calls onChange with the freshly loaded config after every settled
// modification of path. The parent directory is watched so saves that
// replace the file by rename are seen. A file that fails to load is logged
// and skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, opts WatchOptions, onChange func(*Config)) error {
	if opts.Settle <= 0 {
		opts.Settle = 300 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	if opts.Ready != nil {
		opts.Ready()
	}

	target := filepath.Clean(path)
	debounced := debounce.New(opts.Settle)
	reload := func() {
		if ctx.Err() != nil {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			logger.Warn("config: reload failed, keeping previous", "path", path, "err", err)
			return
		}
		logger.Info("config: reloaded", "path", path)
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return ctx.Err()
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			logger.Debug("config: change detected", "path", path, "op", ev.Op.String())
			debounced(reload)
		case err, ok := <-w.Errors:
			if !ok {
				return ctx.Err()
			}
			logger.Warn("config: watch error", "path", path, "err", err)
		}
	}
}
