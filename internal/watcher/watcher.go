// Package watcher feeds files dropped into a directory to a handler once
// they have stopped changing. It backs the CLI watch command.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dverbin/mediavault/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet before it is
// considered fully written. Drops are usually copies, which arrive as a
// Create followed by a burst of Writes.
const DefaultDebounce = 2 * time.Second

// Handler receives the path of a stable file.
type Handler func(ctx context.Context, path string)

type Watcher struct {
	dir      string
	debounce time.Duration
	handler  Handler
	log      logging.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(dir string, debounce time.Duration, handler Handler, log logging.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		handler:  handler,
		log:      log,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches the drop directory until the context is cancelled. Each
// Create/Write event restarts the file's debounce timer; the handler
// fires once per quiet file.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.Info(ctx, "watching drop directory", "dir", w.dir, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.touch(ctx, event.Name)
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.forget(event.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(ctx, "watch error", "error", err)
		}
	}
}

// touch (re)starts the debounce timer for a path.
func (w *Watcher) touch(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.fire(ctx, path)
	})
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) fire(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	w.log.Info(ctx, "stable file detected", "file", filepath.Base(path), "size", info.Size())
	w.handler(ctx, path)
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
