package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"cloudpico-humidity/internal/flow"
)

// WatchNodes reloads the nodes file on every write and passes the new
// definitions to onChange. It runs until ctx is cancelled. A file that fails
// to load is logged and skipped, so the running nodes stay in place.
func WatchNodes(ctx context.Context, path string, onChange func([]flow.Definition)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file on save, which drops a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	slog.Info("config: watching nodes file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			defs, err := LoadNodes(path)
			if err != nil {
				slog.Error("config: nodes reload failed, keeping running nodes", "path", path, "err", err)
				continue
			}

			slog.Info("config: nodes reloaded", "path", path, "count", len(defs))
			onChange(defs)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
