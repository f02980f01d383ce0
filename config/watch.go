package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the settings file whenever it is written and passes the
// parsed result to fn. Invalid files are logged and skipped. The watcher
// stops when ctx is done.
func Watch(ctx context.Context, path string, logger zerolog.Logger, fn func(Settings)) error {
	clean := filepath.Clean(path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := w.Add(filepath.Dir(clean)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(clean), err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != clean {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				s, err := Load(clean, logger)
				if err != nil {
					logger.Warn().Err(err).Str("file", clean).Msg("settings reload failed")
					continue
				}
				logger.Info().Str("file", clean).Msg("settings reloaded")
				fn(s)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("settings watcher error")
			}
		}
	}()
	return nil
}
