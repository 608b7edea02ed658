package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 500 * time.Millisecond

// Watch reloads path when it changes and passes the new Config to onChange.
// The parent directory is watched so atomic renames over the file are
// seen. A file that fails to load, or whose content is unchanged, does not
// reach onChange. Watch returns when ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()

	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	slog.Info("config: watching for changes", "path", path)

	last := digest(path)
	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(reloadDelay)

		case <-timer.C:
			sum := digest(path)
			if sum == last {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping current config", "path", path, "err", err)
				continue
			}
			last = sum
			slog.Info("config: reloaded", "path", path, "station", cfg.Station.Name,
				"measurements", len(cfg.Measurements))
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

func digest(path string) [sha256.Size]byte {
	b, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(b)
}
