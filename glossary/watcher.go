package glossary

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent reports the outcome of an automatic reload.
type ReloadEvent struct {
	Path  string
	Terms int
	Err   error
}

// Watcher reloads active glossary files when they change on disk.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	dirs  map[string]bool
	files map[string]bool
}

// NewWatcher creates a watcher over store's files.
func NewWatcher(store *Store) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		store:   store,
		watcher: w,
		dirs:    make(map[string]bool),
		files:   make(map[string]bool),
	}, nil
}

// Add starts watching path. The parent directory is watched so that editors
// that replace files by renaming are handled.
func (w *Watcher) Add(path string) error {
	path = normalize(path)
	dir := filepath.Dir(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[path] = true
	return nil
}

// Remove stops reloading path. The directory stays watched.
func (w *Watcher) Remove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.files, normalize(path))
}

func (w *Watcher) watching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[path]
}

// Watch delivers one ReloadEvent per reload of an added file until ctx is
// done or the watcher is closed. A reload that fails leaves the file
// unloaded until the next successful write.
func (w *Watcher) Watch(ctx context.Context) <-chan ReloadEvent {
	events := make(chan ReloadEvent, 16)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				path := normalize(event.Name)
				if !w.watching(path) {
					continue
				}
				n, err := w.store.Load(path)
				select {
				case events <- ReloadEvent{Path: path, Terms: n, Err: err}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				select {
				case events <- ReloadEvent{Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
