package console

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MaxymDv/CloudDrive-System/internal/logging"
)

// DropWatcher polls a drop folder and emits the path of every new file
// once its size has settled, so a file still being copied in is not
// uploaded half-written. Files present when the watcher starts are not
// emitted; only later arrivals count.
type DropWatcher struct {
	dir      string
	interval time.Duration

	mu      sync.Mutex
	known   map[string]int64 // name -> size at last scan
	pending map[string]int64 // new files waiting for a stable size
	drops   chan string
	done    chan struct{}
}

// NewDropWatcher creates a watcher over dir.
func NewDropWatcher(dir string, interval time.Duration) *DropWatcher {
	if interval == 0 {
		interval = 2 * time.Second
	}
	return &DropWatcher{
		dir:      dir,
		interval: interval,
		known:    make(map[string]int64),
		pending:  make(map[string]int64),
		drops:    make(chan string, 16),
		done:     make(chan struct{}),
	}
}

// Drops returns the channel of settled file paths.
func (w *DropWatcher) Drops() <-chan string {
	return w.drops
}

// Start snapshots the current directory contents and begins polling.
func (w *DropWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	for _, e := range entries {
		if info, err := e.Info(); err == nil && !e.IsDir() {
			w.known[e.Name()] = info.Size()
		}
	}
	w.mu.Unlock()

	go w.loop(ctx)
	return nil
}

// Stop terminates the polling loop.
func (w *DropWatcher) Stop() {
	close(w.done)
}

func (w *DropWatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.scan()
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *DropWatcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.Warn("drop folder scan failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		name := e.Name()
		seen[name] = true

		if _, ok := w.known[name]; ok {
			continue
		}

		prev, waiting := w.pending[name]
		if waiting && prev == info.Size() {
			// Size held steady for a full interval: emit.
			delete(w.pending, name)
			w.known[name] = info.Size()
			select {
			case w.drops <- filepath.Join(w.dir, name):
			default:
				logging.Warn("drop queue full, skipping", zap.String("file", name))
			}
		} else {
			w.pending[name] = info.Size()
		}
	}

	// Forget files that were removed from the folder.
	for name := range w.known {
		if !seen[name] {
			delete(w.known, name)
		}
	}
	for name := range w.pending {
		if !seen[name] {
			delete(w.pending, name)
		}
	}
}
