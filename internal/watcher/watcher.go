// Package watcher keeps an index current while files in a workspace change.
//
// Events are debounced per path. When a path settles, the watcher looks at
// the file system rather than at the event that triggered it: a path that
// exists is re-indexed, a path that is gone is removed. Bursts such as
// write-rename-write from editors therefore collapse into one update.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/swanson/ruby-lsp/internal/parser"
)

// DefaultDebounce is used when Options.Debounce is zero
const DefaultDebounce = 200 * time.Millisecond

// Handler applies settled changes. *indexer.Indexer implements it.
type Handler interface {
	IndexFile(ctx context.Context, path string) (int, error)
	RemoveFile(ctx context.Context, path string) error
	RemoveTree(ctx context.Context, dir string) (int, error)
}

// Options configures a Watcher
type Options struct {
	Debounce time.Duration
	Include  []string // doublestar globs relative to the root; empty tracks every supported file
	Exclude  []string
	Logger   *log.Logger
}

// Watcher watches a directory tree and forwards changes to a Handler
type Watcher struct {
	root    string
	handler Handler
	opts    Options
	logger  *log.Logger
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time // path -> last event
	dirs    map[string]struct{}  // watched directories

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a watcher for root. Nothing is watched until Start.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to access root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", abs)
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		root:    abs,
		handler: handler,
		opts:    opts,
		logger:  logger,
		fsw:     fsw,
		pending: make(map[string]time.Time),
		dirs:    make(map[string]struct{}),
	}, nil
}

// Start adds watches for the tree and begins processing events until ctx
// is done or Close is called
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root, false); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", w.root, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.processPending(ctx)

	w.logger.Printf("Watching %s (%d directories)", w.root, w.watchedDirs())
	return nil
}

// Close stops the watcher and waits for its goroutines. It is safe to call
// more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) watchedDirs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

// addRecursive watches dir and every directory below it. With enqueue set,
// files already present are scheduled too; they may have been written
// before the watch existed.
func (w *Watcher) addRecursive(dir string, enqueue bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}

		if !d.IsDir() {
			if enqueue && d.Type().IsRegular() && w.tracked(path) {
				w.enqueue(path)
			}
			return nil
		}

		if path != w.root && w.ignoredDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Printf("Warning: failed to watch %s: %v", path, err)
			return nil
		}

		w.mu.Lock()
		w.dirs[path] = struct{}{}
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) ignoredDir(path string) bool {
	rel, ok := w.rel(path)
	if !ok {
		return true
	}
	return hidden(rel) || matchAny(w.opts.Exclude, rel)
}

// tracked reports whether a file path should reach the handler
func (w *Watcher) tracked(path string) bool {
	if !parser.Supported(path) {
		return false
	}
	rel, ok := w.rel(path)
	if !ok || hidden(rel) || matchAny(w.opts.Exclude, rel) {
		return false
	}
	return len(w.opts.Include) == 0 || matchAny(w.opts.Include, rel)
}

func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) isWatchedDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.dirs[path]
	return ok
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Warning: file watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.ignoredDir(path) {
				if err := w.addRecursive(path, true); err != nil {
					w.logger.Printf("Warning: failed to watch %s: %v", path, err)
				}
			}
			return
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if w.isWatchedDir(path) || w.tracked(path) {
			w.enqueue(path)
		}
		return
	}

	if (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) && w.tracked(path) {
		w.enqueue(path)
	}
}

func (w *Watcher) processPending(ctx context.Context) {
	defer w.wg.Done()

	interval := max(w.opts.Debounce/2, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range w.due(time.Now()) {
				if ctx.Err() != nil {
					return
				}
				w.apply(ctx, path)
			}
		}
	}
}

// due removes and returns the paths whose last event is older than the
// debounce interval
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.opts.Debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

func (w *Watcher) apply(ctx context.Context, path string) {
	info, err := os.Stat(path)
	switch {
	case err == nil && info.Mode().IsRegular():
		if _, err := w.handler.IndexFile(ctx, path); err != nil {
			w.logger.Printf("Warning: failed to index %s: %v", path, err)
		}

	case err == nil:
		// Replaced by a directory or something else; nothing to index

	case errors.Is(err, fs.ErrNotExist):
		w.mu.Lock()
		_, wasDir := w.dirs[path]
		delete(w.dirs, path)
		w.mu.Unlock()

		if wasDir {
			if _, err := w.handler.RemoveTree(ctx, path); err != nil {
				w.logger.Printf("Warning: failed to remove %s: %v", path, err)
			}
			return
		}
		if err := w.handler.RemoveFile(ctx, path); err != nil {
			w.logger.Printf("Warning: failed to remove %s: %v", path, err)
		}

	default:
		w.logger.Printf("Warning: failed to stat %s: %v", path, err)
	}
}
