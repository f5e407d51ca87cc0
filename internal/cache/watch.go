package cache

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/TigerSong/OAP/internal/logging"
)

// Watcher invalidates cached handles when their local files change.
// Parent directories are watched rather than the files themselves, so
// atomic replace-by-rename is seen as well.
type Watcher struct {
	cache  *Cache
	logger *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
	dirs    map[string]struct{}
	paths   map[string][]string // cleaned path -> paths as given to Watch
}

// NewWatcher starts watching for changes on behalf of c.
func NewWatcher(c *Cache, logger *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start file watcher: %w", err)
	}
	w := &Watcher{
		cache:   c,
		logger:  logging.Component(logger, "handle-watcher"),
		watcher: watcher,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		dirs:    make(map[string]struct{}),
		paths:   make(map[string][]string),
	}
	go w.run()
	return w, nil
}

// Watch registers path. Changes to it invalidate every cached identity
// with that path.
func (w *Watcher) Watch(path string) error {
	clean := filepath.Clean(path)
	dir := filepath.Dir(clean)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; !ok {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = struct{}{}
	}
	for _, p := range w.paths[clean] {
		if p == path {
			return nil
		}
	}
	w.paths[clean] = append(w.paths[clean], path)
	return nil
}

// Watched returns the number of registered paths.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	close(w.stop)
	<-w.done
	return nil
}

func (w *Watcher) run() {
	defer close(w.done)
	defer w.watcher.Close()
	for {
		select {
		case <-w.stop:
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.changed(ev.Name)
		}
	}
}

func (w *Watcher) changed(name string) {
	w.mu.Lock()
	paths := w.paths[filepath.Clean(name)]
	w.mu.Unlock()
	for _, p := range paths {
		w.logger.Debug("file changed", "path", p)
		w.cache.InvalidatePath(p)
	}
}
