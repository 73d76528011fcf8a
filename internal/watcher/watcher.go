// Package watcher debounces filesystem change notifications into
// auto-reload/files-changed signals, using fsnotify the same way the
// teacher's `bd list --watch` command does for its own debounced
// re-display loop.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the default coalescing window after the last
// observed change before a batch is emitted.
const DefaultDebounce = 500 * time.Millisecond

// Config configures a Watcher. Zero-value Paths/Extensions/Debounce
// fall back to the documented defaults.
type Config struct {
	// Paths are watched, relative to the project root. Default: ["lib"].
	Paths []string
	// Extensions are the file suffixes (without the dot) that count as
	// a relevant change. Default: ["dart"].
	Extensions []string
	// Debounce is the coalescing window. Default: 500ms.
	Debounce time.Duration
	// AutoReload selects which event a debounced batch produces.
	AutoReload bool
}

func (c Config) withDefaults() Config {
	if len(c.Paths) == 0 {
		c.Paths = []string{"lib"}
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{"dart"}
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	return c
}

// EventKind discriminates what a debounced batch produced.
type EventKind int

const (
	// EventAutoReloadTriggered fires when AutoReload is on.
	EventAutoReloadTriggered EventKind = iota
	// EventFilesChanged fires when AutoReload is off; Count is the
	// number of coalesced change notifications in the batch.
	EventFilesChanged
	// EventWatcherError is non-fatal; the watcher stays in
	// best-effort mode after emitting it.
	EventWatcherError
)

// Event is one item from a Watcher's event stream.
type Event struct {
	Kind    EventKind
	Count   int
	Message string
}

// Watcher debounces fsnotify change events under a configured set of
// project-relative paths into Event values.
type Watcher struct {
	cfg Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	fsw     *fsnotify.Watcher

	events chan Event
}

func New(cfg Config) *Watcher {
	return &Watcher{cfg: cfg.withDefaults(), events: make(chan Event, 16)}
}

// Events returns the channel of debounced change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching under projectRoot. Calling Start while already
// running returns an error — starting is idempotent-guarded.
func (w *Watcher) Start(ctx context.Context, projectRoot string) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher: already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("watcher: creating fsnotify watcher: %w", err)
	}

	for _, p := range w.cfg.Paths {
		root := filepath.Join(projectRoot, p)
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil || d == nil || !d.IsDir() {
				return nil
			}
			if err := fsw.Add(path); err != nil {
				log.Printf("watcher: failed to watch %s: %v", path, err)
			}
			return nil
		})
	}

	w.fsw = fsw
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	go w.loop(ctx, stopCh)
	return nil
}

// Stop signals the watcher to shut down. Safe to call when not
// running.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
}

func (w *Watcher) loop(ctx context.Context, stopCh chan struct{}) {
	var mu sync.Mutex
	pending := 0
	var timer *time.Timer

	flush := func() {
		mu.Lock()
		count := pending
		pending = 0
		mu.Unlock()
		if count == 0 {
			return
		}
		if w.cfg.AutoReload {
			w.emit(Event{Kind: EventAutoReloadTriggered})
		} else {
			w.emit(Event{Kind: EventFilesChanged, Count: count})
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			if !w.matchesExtension(evt.Name) {
				continue
			}
			mu.Lock()
			pending++
			mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.cfg.Debounce, flush)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emit(Event{Kind: EventWatcherError, Message: err.Error()})
		}
	}
}

func (w *Watcher) matchesExtension(name string) bool {
	for _, ext := range w.cfg.Extensions {
		if strings.HasSuffix(name, "."+ext) {
			return true
		}
	}
	return false
}

func (w *Watcher) emit(evt Event) {
	select {
	case w.events <- evt:
	default:
		log.Printf("watcher: event channel full, dropping %+v", evt)
	}
}
