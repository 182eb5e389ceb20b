package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/serisow/sagefemme/services/rag_service"
)

// IngestFunc stores the file at path.
type IngestFunc func(ctx context.Context, path string) error

// Watcher ingests documents dropped into a folder. Each file is ingested
// once it has stopped changing for the settle delay.
type Watcher struct {
	ingest IngestFunc
	settle time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func New(ingest IngestFunc, settle time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		ingest:  ingest,
		settle:  settle,
		logger:  logger,
		pending: make(map[string]*time.Timer),
	}
}

// Run watches dir until ctx is cancelled. Supported files already present
// are queued as well, so a restart picks up what was dropped while down.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Info("Watching folder for new documents", slog.String("dir", dir))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && accepted(entry.Name()) {
			w.schedule(ctx, filepath.Join(dir, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.stop()
			w.wg.Wait()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				w.stop()
				w.wg.Wait()
				return nil
			}
			if path, ok := w.handleEvent(event); ok {
				w.schedule(ctx, path)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				continue
			}
			w.logger.Warn("File watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent returns the path to ingest for creations and writes of
// supported, visible, regular files.
func (w *Watcher) handleEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if !accepted(filepath.Base(event.Name)) {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return event.Name, true
}

func accepted(name string) bool {
	return !strings.HasPrefix(name, ".") && !strings.HasPrefix(name, "~$") && rag_service.IsSupportedFile(name)
}

// schedule (re)starts the settle timer of path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.settle)
		return
	}

	var t *time.Timer
	w.wg.Add(1)
	t = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.run(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) run(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := w.ingest(ctx, path); err != nil {
		w.logger.Error("Failed to ingest watched file",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	w.logger.Info("Watched file ingested",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))
}

// stop cancels timers that have not fired yet.
func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}
