package offers

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gridpack/gridpack/core/infra/logging"
)

const watchDebounce = 500 * time.Millisecond

// Watch reloads the handle whenever the catalog changes on disk. Events are
// debounced so an unpack touching many files triggers one reload. Blocks
// until ctx is done.
func (h *Handle) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, dir := range watchDirs(h.root) {
		if err := watcher.Add(dir); err != nil {
			logging.Warn("offers", "watch add failed", "dir", dir, "error", err.Error())
		}
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				fire = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("offers", "watch error", "error", err.Error())
		case <-fire:
			timer = nil
			fire = nil
			if err := h.Reload(ctx); err != nil {
				logging.Warn("offers", "reload after change failed", "error", err.Error())
			}
		}
	}
}

// watchDirs lists the catalog directories worth watching: packs/ and every
// provider domain directory that exists right now.
func watchDirs(root string) []string {
	dirs := []string{filepath.Join(root, "packs")}
	providers := filepath.Join(root, "providers")
	dirs = append(dirs, providers)
	entries, err := os.ReadDir(providers)
	if err != nil {
		return dirs
	}
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(providers, entry.Name()))
		}
	}
	return dirs
}
