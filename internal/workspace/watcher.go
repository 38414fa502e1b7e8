package workspace

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval is the delay after an fsnotify event before re-reading the
// seed file, letting atomic write+rename sequences settle.
const debounceInterval = 200 * time.Millisecond

// Watcher re-applies the seed file when it changes on disk. It watches the
// parent directory so editors and tools that replace the file via rename are
// caught.
type Watcher struct {
	path   string
	seeder *Seeder
	logger *slog.Logger

	lastHash [sha256.Size]byte
}

func NewWatcher(path string, seeder *Seeder, logger *slog.Logger) *Watcher {
	return &Watcher{path: path, seeder: seeder, logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.lastHash, _ = hashFile(w.path)
	fileName := filepath.Base(w.path)
	w.logger.Info("watching seed file", slog.String("path", w.path))

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != fileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceInterval, func() {
				w.reload(ctx)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("seed watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	newHash, err := hashFile(w.path)
	if err != nil {
		w.logger.Warn("failed to hash seed file", slog.String("error", err.Error()))
		return
	}
	if newHash == w.lastHash {
		return
	}
	w.lastHash = newHash

	seed, err := ParseSeed(w.path)
	if err != nil {
		w.logger.Error("seed reload failed", slog.String("error", err.Error()))
		return
	}
	if err := w.seeder.Apply(ctx, seed); err != nil {
		w.logger.Error("seed apply failed", slog.String("error", err.Error()))
		return
	}
	w.logger.Info("seed file reloaded", slog.String("path", w.path))
}

func hashFile(path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}
