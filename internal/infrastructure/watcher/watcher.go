package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tbag/core/internal/infrastructure/logger"
)

// Filter decides which paths under the root are ignored
type Filter interface {
	Excluded(path string) bool
}

// Watcher watches a directory tree recursively and calls onChange once per
// burst of file system events
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	filter    Filter
	logger    *logger.Logger
	debouncer *Debouncer
}

// New registers every non-excluded directory below root
func New(root string, filter Filter, debounce time.Duration, onChange func(), log *logger.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		root:      root,
		filter:    filter,
		logger:    log.WithComponent("watcher"),
		debouncer: NewDebouncer(debounce, onChange),
	}

	if err := w.addTree(root); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

// Run processes events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	defer w.debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Watcher error", "error", err)
		}
	}
}

// Close stops the watcher and releases resources
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.excluded(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warnw("Failed to watch new directory", "path", event.Name, "error", err)
			}
		}
	}

	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.debouncer.Touch()
	}
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are picked up by the next scan instead.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			w.logger.Warnw("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) excluded(path string) bool {
	return w.filter != nil && w.filter.Excluded(path)
}

// Debouncer calls fn once after a quiet period following the last Touch
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet period
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Touch (re)starts the quiet period
func (d *Debouncer) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Stop cancels a pending call and ignores further touches
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
