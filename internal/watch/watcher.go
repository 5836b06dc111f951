// internal/watch/watcher.go
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes the working directory and accumulates the set of
// paths touched since the last Reset. It is purely advisory: a GUI or
// script can poll DirtyPaths instead of rescanning the tree, but commit
// never consults it. The reserved storage subtree is ignored.
type Watcher struct {
	root       string
	storageDir string
	fsw        *fsnotify.Watcher
	logger     *zap.Logger

	mu    sync.RWMutex
	dirty map[string]bool
}

// New starts watching root. storageDirName is the repository-local
// storage directory to exclude (e.g. ".arca").
func New(root, storageDirName string, logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:       abs,
		storageDir: filepath.Join(abs, storageDirName),
		fsw:        fsw,
		logger:     logger,
		dirty:      make(map[string]bool),
	}

	if err := w.addDirs(); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("registering directories: %w", err)
	}

	go w.loop()

	return w, nil
}

// addDirs registers every directory under root with the watcher.
func (w *Watcher) addDirs() error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path == w.storageDir {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.shouldIgnore(event.Name) {
		return
	}

	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		w.logger.Error("getting relative path", zap.Error(err))
		return
	}
	relPath = filepath.ToSlash(relPath)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		// New directories need their own watch.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Error("adding new directory to watcher", zap.Error(err))
			}
			return
		}
		w.dirty[relPath] = true

	case event.Op&fsnotify.Write == fsnotify.Write:
		w.dirty[relPath] = true

	case event.Op&fsnotify.Remove == fsnotify.Remove,
		event.Op&fsnotify.Rename == fsnotify.Rename:
		// A vanished file is still a change relative to the head commit.
		w.dirty[relPath] = true
	}
}

func (w *Watcher) shouldIgnore(path string) bool {
	return path == w.storageDir ||
		strings.HasPrefix(path, w.storageDir+string(filepath.Separator))
}

// DirtyPaths returns the sorted set of paths touched since the last
// Reset.
func (w *Watcher) DirtyPaths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	paths := make([]string, 0, len(w.dirty))
	for p := range w.dirty {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Reset clears the dirty set, typically right after a commit.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dirty = make(map[string]bool)
}

// Close cleans up resources
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
