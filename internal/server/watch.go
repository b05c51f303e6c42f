package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/matsen/citeparse/internal/logger"
	"github.com/matsen/citeparse/internal/modelstore"
)

// DefaultDebounce is how long a model file must be quiet before it is
// reloaded. Writers usually touch a file several times per save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads store slots when their model files change on disk.
type Watcher struct {
	store    *modelstore.Store
	fsw      *fsnotify.Watcher
	files    map[string]string // cleaned path -> slot
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	// OnReload, if set, is called after each reload attempt.
	OnReload func(slot string, err error)
}

// NewWatcher watches the file each loaded slot came from. Directories are
// watched rather than files so that atomic rename-over saves are seen.
func NewWatcher(store *modelstore.Store, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		store:    store,
		fsw:      fsw,
		files:    make(map[string]string),
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
	}
	dirs := make(map[string]bool)
	for _, slot := range []string{modelstore.SlotDefault, modelstore.SlotCJK} {
		p := store.Path(slot)
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		w.files[filepath.Clean(abs)] = slot
		dirs[filepath.Dir(abs)] = true
	}
	if len(w.files) == 0 {
		fsw.Close()
		return nil, fmt.Errorf("no model files to watch")
	}
	for d := range dirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", d, err)
		}
	}
	return w, nil
}

// Run handles file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				abs = ev.Name
			}
			slot, ok := w.files[filepath.Clean(abs)]
			if !ok {
				continue
			}
			w.schedule(ctx, slot, abs)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("model watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, slot, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[slot]; ok {
		t.Stop()
	}
	w.timers[slot] = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		logger.Debug("model file changed", "slot", slot, "path", path)
		err := w.store.ReloadSlot(ctx, slot, path)
		if w.OnReload != nil {
			w.OnReload(slot, err)
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	w.fsw.Close()
}
