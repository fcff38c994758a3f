package vecstore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lidco/lidco/pkg/logger"
)

const DefaultDebounce = 500 * time.Millisecond

// FileUpdater re-indexes a single file. *Retriever implements it.
type FileUpdater interface {
	UpdateFile(ctx context.Context, path string) (int, error)
}

// Watcher keeps an index fresh by re-indexing files shortly after they
// change on disk. Bursts of events for the same path collapse into one
// update.
type Watcher struct {
	updater  FileUpdater
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher watches root and every subdirectory not in SkipDirs.
func NewWatcher(root string, updater FileUpdater, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		updater:  updater,
		watcher:  fw,
		debounce: debounce,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && SkipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			logger.WarnCF("vecstore", "Cannot watch directory", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		}
		return nil
	})
}

// Run processes events until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.handle(event) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.WarnCF("vecstore", "Watcher error", map[string]any{"error": err.Error()})
		case <-timer.C:
			w.flush(ctx)
		}
	}
}

// handle records event and reports whether an update was queued.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == event.Op {
		return false
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !SkipDirs[filepath.Base(event.Name)] {
				_ = w.addTree(event.Name)
			}
			return false
		}
	}
	if LanguageFor(event.Name) == "" {
		return false
	}
	w.mu.Lock()
	w.pending[event.Name] = struct{}{}
	w.mu.Unlock()
	return true
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	w.mu.Unlock()

	for _, p := range paths {
		if _, err := w.updater.UpdateFile(ctx, p); err != nil {
			logger.WarnCF("vecstore", "Re-index failed", map[string]any{
				"path":  p,
				"error": err.Error(),
			})
		}
	}
}

// Close stops Run and releases the OS watches.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
