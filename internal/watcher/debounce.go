package watcher

import (
	"sync"
	"time"
)

// debouncer implements a per-path tumbling window: the first event on a path
// passes and anchors the window; later events inside the window are dropped
// without moving the anchor, so a burst collapses to exactly one event and
// the next window opens only once the full interval has elapsed.
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	anchor map[string]time.Time
	now    func() time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window: window,
		anchor: make(map[string]time.Time),
		now:    time.Now,
	}
}

// pass reports whether an event on path should be emitted, updating the
// anchor only when it does.
func (d *debouncer) pass(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	last, ok := d.anchor[path]
	if ok && now.Sub(last) < d.window {
		return false
	}
	d.anchor[path] = now
	return true
}

// forget drops the anchor for path.
func (d *debouncer) forget(path string) {
	d.mu.Lock()
	delete(d.anchor, path)
	d.mu.Unlock()
}

// reset drops all anchors.
func (d *debouncer) reset() {
	d.mu.Lock()
	d.anchor = make(map[string]time.Time)
	d.mu.Unlock()
}
