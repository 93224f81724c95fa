package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called with the workspace-relative paths that
// changed since the last debounce window
type ChangeCallback func(changed []string)

// Watcher monitors the workspace for file changes and reports them in
// debounced batches. The web layer forwards batches to event
// subscribers so clients see the workspace move while a plan runs.
type Watcher struct {
	ws       *Workspace
	watcher  *fsnotify.Watcher
	callback ChangeCallback
	debounce time.Duration

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	done chan struct{}
}

// NewWatcher creates a watcher over the workspace root
func NewWatcher(ws *Workspace, callback ChangeCallback) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		ws:       ws,
		watcher:  fsw,
		callback: callback,
		debounce: 500 * time.Millisecond, // batch rapid plan output
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	// Watch the root and all existing subdirectories
	err = filepath.WalkDir(ws.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// Start begins processing events until Stop is called
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories must be added to the watch set to see files
	// created inside them later
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watcher.Add(event.Name)
			return
		}
	}

	rel, err := filepath.Rel(w.ws.Root(), event.Name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[filepath.ToSlash(rel)] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for path := range w.pending {
		changed = append(changed, path)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(changed) > 0 && w.callback != nil {
		w.callback(changed)
	}
}

// Stop shuts the watcher down
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}
