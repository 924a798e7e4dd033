// Package watcher drives watch mode: filesystem events under the docs
// root are coalesced into refresh triggers. Change detection itself
// stays scan-based; an event only says "scan again soon", so missed or
// duplicate events cost nothing but latency.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docdex/docdex/internal/docs"
)

// DefaultDebounce is how long to coalesce events before triggering.
const DefaultDebounce = 2 * time.Second

// Watcher watches the docs root recursively and emits a trigger after
// the debounce window closes with no further relevant events.
type Watcher struct {
	root     string
	debounce time.Duration

	fsw      *fsnotify.Watcher
	triggers chan struct{}
	errs     chan error

	mu      sync.Mutex
	stopped bool
}

// New creates a watcher for the given docs root.
func New(root string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:     root,
		debounce: debounce,
		fsw:      fsw,
		triggers: make(chan struct{}, 1),
		errs:     make(chan error, 16),
	}, nil
}

// Start registers the directory tree and runs the event loop until the
// context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

// Triggers returns the refresh trigger channel. At most one trigger is
// pending at a time; a trigger consumed late still reflects every event
// before it because the consumer re-scans from scratch.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	return w.fsw.Close()
}

// loop coalesces raw events into debounced triggers.
func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			// New directories must be registered before their contents
			// produce events.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.reportErr(err)
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			select {
			case w.triggers <- struct{}{}:
			default:
				// A trigger is already pending; the next scan covers
				// this batch too.
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.reportErr(err)
		}
	}
}

// relevant filters events down to supported documents and directory
// changes. Everything else (editor temp files, lock files) is noise.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}

	// Directory events matter for tree registration and removals.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return true
	}
	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		// The path is gone; judge by extension alone.
		_, ok := docs.DetectFormat(event.Name)
		return ok
	}

	_, ok := docs.DetectFormat(event.Name)
	return ok
}

// addTree registers a directory and all its subdirectories.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		return nil
	})
}

// reportErr sends a non-fatal error without blocking.
func (w *Watcher) reportErr(err error) {
	select {
	case w.errs <- err:
	default:
		slog.Warn("watcher error dropped", slog.String("error", err.Error()))
	}
}
