package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nfrund/questy/internal/loading"
)

// Watch loads dir and keeps the catalog in sync with it: changes to files
// any loader is interested in trigger a debounced reload. Watching runs in
// the background until ctx is cancelled.
func (c *Catalog) Watch(ctx context.Context, dir string) error {
	if dir == "" {
		return ErrNoDirectory
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if _, err := c.reload(ctx, dir); err != nil {
		watcher.Close()
		return err
	}

	go c.watchFiles(ctx, watcher, dir)

	slog.Info("Watching quest directory", "dir", dir, "formats", c.Formats())
	return nil
}

func (c *Catalog) watchFiles(ctx context.Context, watcher *fsnotify.Watcher, dir string) {
	defer func() {
		watcher.Close()
		slog.Info("Quest directory watcher stopped", "dir", dir)
	}()

	debounce := c.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !c.relevant(event) {
				continue
			}
			slog.Debug("Quest file event", "event", event.Op.String(), "path", event.Name)
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Quest directory watcher error", "dir", dir, "error", err)

		case <-timer.C:
			if _, err := c.reload(ctx, dir); err != nil {
				slog.Warn("Quest catalog reload failed", "dir", dir, "error", err)
			}
		}
	}
}

// relevant reports whether event touches a file some loader would read.
// Chmod alone never changes content.
func (c *Catalog) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	for _, l := range c.loaders {
		s, ok := l.(loading.Suffixed)
		if !ok {
			return true
		}
		if loading.MatchesAny(event.Name, s.Suffixes()) {
			return true
		}
	}
	return false
}
