// Package watcher implements the file system watcher using fsnotify.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/brianly1003/changefeed/internal/domain"
	"github.com/brianly1003/changefeed/internal/domain/ports"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher implements the FileWatcher port interface. It feeds base names of
// created, modified and deleted files into a ChangeRecorder.
type Watcher struct {
	rootPath string
	recorder ports.ChangeRecorder

	mu             sync.RWMutex
	watcher        *fsnotify.Watcher
	ignorePatterns []string
	running        bool
	cancel         context.CancelFunc
	loopDone       chan struct{}
	notify         func()

	// Directories currently under watch. Remove and rename events carry no
	// type information, so this is how directory removals are told apart.
	// gone holds directories already forgotten, since a removed directory can
	// be reported both by its parent and by its own watch.
	dirs   map[string]struct{}
	gone   map[string]struct{}
	dirsMu sync.Mutex
}

// NewWatcher creates a new file system watcher for rootPath.
func NewWatcher(rootPath string, recorder ports.ChangeRecorder, ignorePatterns []string) *Watcher {
	return &Watcher{
		rootPath:       filepath.Clean(rootPath),
		recorder:       recorder,
		ignorePatterns: ignorePatterns,
		dirs:           make(map[string]struct{}),
		gone:           make(map[string]struct{}),
	}
}

// SetNotifier registers fn to be called after every recorded change.
// Must be called before Start.
func (w *Watcher) SetNotifier(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notify = fn
}

// Start begins watching the root directory and all of its subdirectories.
// Failing to watch the root itself is returned as a *domain.WatchError.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	info, err := os.Stat(w.rootPath)
	if err != nil {
		w.mu.Unlock()
		return domain.NewWatchError("stat", w.rootPath, err)
	}
	if !info.IsDir() {
		w.mu.Unlock()
		return domain.NewWatchError("stat", w.rootPath, domain.ErrRootNotDirectory)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return domain.NewWatchError("init", w.rootPath, err)
	}

	if err := fw.Add(w.rootPath); err != nil {
		_ = fw.Close()
		w.mu.Unlock()
		return domain.NewWatchError("add", w.rootPath, err)
	}
	w.trackDir(w.rootPath)

	w.watcher = fw
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.loopDone = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	w.addWatchRecursive(fw, w.rootPath, false)

	go w.eventLoop(watchCtx, fw, fw.Events, fw.Errors, w.loopDone)

	log.Info().
		Str("root", w.rootPath).
		Int("directories", w.dirCount()).
		Msg("file watcher started")

	return nil
}

// Stop terminates file watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false

	if w.cancel != nil {
		w.cancel()
	}

	fw := w.watcher
	w.watcher = nil
	loopDone := w.loopDone
	w.mu.Unlock()

	err := fw.Close()
	<-loopDone

	w.dirsMu.Lock()
	w.dirs = make(map[string]struct{})
	w.gone = make(map[string]struct{})
	w.dirsMu.Unlock()

	log.Info().Str("root", w.rootPath).Msg("file watcher stopped")
	return err
}

// IsRunning returns true if the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Root returns the watched root directory.
func (w *Watcher) Root() string {
	return w.rootPath
}

// addWatchRecursive adds watches to every directory below root. With
// report set, files already present are recorded as changed: they were
// created before their directory's watch existed, so no event will follow.
// Subdirectories that cannot be watched are logged and skipped.
func (w *Watcher) addWatchRecursive(fw *fsnotify.Watcher, root string, report bool) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}
		if path == w.rootPath {
			return nil
		}
		if !d.IsDir() {
			if report && !w.shouldIgnore(path) {
				w.clearGone(path)
				w.recordChanged(d.Name(), path)
			}
			return nil
		}
		if w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to add watch")
			return filepath.SkipDir
		}
		w.trackDir(path)
		return nil
	})
}

// eventLoop handles fsnotify events until ctx ends or either channel closes.
// Errors, overflow included, are logged and the loop carries on.
func (w *Watcher) eventLoop(ctx context.Context, fw *fsnotify.Watcher, events <-chan fsnotify.Event, errs <-chan error, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(fw, event)

		case err, ok := <-errs:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn().Err(err).Str("root", w.rootPath).Msg("event queue overflowed, some changes were not recorded")
				continue
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// handleEvent translates a single fsnotify event into a ledger insertion.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if w.shouldIgnore(path) {
		return
	}
	name := filepath.Base(path)

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			if err := fw.Add(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to add watch")
				return
			}
			w.trackDir(path)
			w.addWatchRecursive(fw, path, true)
			log.Debug().Str("path", path).Msg("directory added to watch")
			return
		}
		w.clearGone(path)
		w.recordChanged(name, path)

	case event.Has(fsnotify.Write):
		if w.isTrackedDir(path) {
			return
		}
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			return
		}
		w.recordChanged(name, path)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if w.forgetDir(path) {
			// A renamed directory keeps its inotify watch under the old name.
			_ = fw.Remove(path)
			log.Debug().Str("path", path).Msg("directory removed from watch")
			return
		}
		if w.wasDir(path) {
			return
		}
		w.recordDeleted(name, path)

	default:
		// Chmod carries no content change.
	}
}

func (w *Watcher) recordChanged(name, path string) {
	w.recorder.RecordChanged(name)
	log.Debug().Str("name", name).Str("path", path).Msg("file changed")
	w.fireNotify()
}

func (w *Watcher) recordDeleted(name, path string) {
	w.recorder.RecordDeleted(name)
	log.Debug().Str("name", name).Str("path", path).Msg("file deleted")
	w.fireNotify()
}

func (w *Watcher) fireNotify() {
	w.mu.RLock()
	fn := w.notify
	w.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (w *Watcher) trackDir(path string) {
	w.dirsMu.Lock()
	w.dirs[path] = struct{}{}
	delete(w.gone, path)
	w.dirsMu.Unlock()
}

func (w *Watcher) isTrackedDir(path string) bool {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	_, ok := w.dirs[path]
	return ok
}

// forgetDir drops path and everything below it from the tracked set.
// It reports whether path was a tracked directory.
func (w *Watcher) forgetDir(path string) bool {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()

	if _, ok := w.dirs[path]; !ok {
		return false
	}
	prefix := path + string(filepath.Separator)
	for dir := range w.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.dirs, dir)
			w.gone[dir] = struct{}{}
		}
	}
	return true
}

func (w *Watcher) clearGone(path string) {
	w.dirsMu.Lock()
	delete(w.gone, path)
	w.dirsMu.Unlock()
}

// wasDir reports, once, whether path is a directory that was already forgotten.
func (w *Watcher) wasDir(path string) bool {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()

	if _, ok := w.gone[path]; !ok {
		return false
	}
	delete(w.gone, path)
	return true
}

func (w *Watcher) dirCount() int {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	return len(w.dirs)
}

// shouldIgnore checks if any component of path below the root matches an
// ignore pattern.
func (w *Watcher) shouldIgnore(path string) bool {
	w.mu.RLock()
	patterns := w.ignorePatterns
	w.mu.RUnlock()

	if len(patterns) == 0 {
		return false
	}

	relPath, err := filepath.Rel(w.rootPath, path)
	if err != nil || relPath == "." {
		return false
	}

	for _, part := range strings.Split(relPath, string(filepath.Separator)) {
		for _, pattern := range patterns {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}
