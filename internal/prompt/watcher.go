package prompt

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codeprompt/internal/logging"
)

// Watcher reports changes to a template file. It watches the parent
// directory so editors that replace the file on save are still seen.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	path        string
	onChange    func(path string)
	pending     time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	closeOnce   sync.Once

	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	Events        int
	Reloads       int
	Errors        int
	LastEventTime time.Time
	LastEventType string
}

// NewWatcher creates a watcher for the template at path. onChange runs on
// the watcher goroutine once the file has been quiet for the debounce
// window.
func NewWatcher(path string, onChange func(path string)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     w,
		path:        abs,
		onChange:    onChange,
		debounceDur: 200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period before onChange fires.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDur = d
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Template("Watching template: %s", w.path)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher, waits for its goroutine to exit and releases the
// underlying fsnotify watcher. It is safe to call more than once, and
// without a successful Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	w.close()
}

func (w *Watcher) close() {
	w.closeOnce.Do(func() {
		if err := w.watcher.Close(); err != nil {
			logging.Get(logging.CategoryTemplate).Error("Watcher: error closing: %v", err)
		}
		logging.TemplateDebug("Watcher stopped: %s", w.path)
	})
}

// Done is closed when the watcher goroutine exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryTemplate).Error("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}

	logging.TemplateDebug("Watcher: %s event for %s", eventType, event.Name)

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventType = eventType
	w.pending = time.Now()
	w.mu.Unlock()
}

// flush fires onChange once the pending event has settled.
func (w *Watcher) flush() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.stats.Reloads++
	w.mu.Unlock()

	if w.onChange != nil {
		w.onChange(w.path)
	}
}

// Stats returns the current watcher statistics.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}
