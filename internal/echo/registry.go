// Package echo tracks paths recently written by this process so the change
// monitor can tell self-inflicted filesystem events from foreign edits.
package echo

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"
)

// Registry holds echo markers with a two-tier lifetime: a marker suppresses
// events inside the suppress window, stays inert between suppress and purge,
// and is dropped lazily on first access after the purge window.
type Registry struct {
	mu       sync.Mutex
	suppress time.Duration
	purge    time.Duration
	marks    map[string]time.Time
	log      pslog.Logger
	now      func() time.Time
}

// New constructs a Registry. The purge window must exceed the suppress window;
// callers are expected to validate via schema.NormalizeServiceConfig.
func New(suppress, purge time.Duration, logger pslog.Logger) *Registry {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Registry{
		suppress: suppress,
		purge:    purge,
		marks:    make(map[string]time.Time),
		log:      logger,
		now:      time.Now,
	}
}

// Mark records that path was just written by this process, overwriting any
// earlier marker.
func (r *Registry) Mark(path string) {
	if r == nil || path == "" {
		return
	}
	r.mu.Lock()
	r.marks[path] = r.now()
	count := len(r.marks)
	r.mu.Unlock()
	r.log.Trace("echo mark", "path", path, "markers", count)
}

// IsSuppressed reports whether a raw event on path should be dropped as an
// echo of our own write. Markers older than the purge window are removed on
// access; markers between the suppress and purge windows stay but no longer
// suppress.
func (r *Registry) IsSuppressed(path string) bool {
	if r == nil || path == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	writtenAt, ok := r.marks[path]
	if !ok {
		return false
	}
	age := r.now().Sub(writtenAt)
	if age > r.purge {
		delete(r.marks, path)
		return false
	}
	return age < r.suppress
}

// Forget removes the marker for path, if any.
func (r *Registry) Forget(path string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.marks, path)
	r.mu.Unlock()
}

// ReleaseAll drops every marker. Called when a workspace binding is torn down.
func (r *Registry) ReleaseAll() {
	if r == nil {
		return
	}
	r.mu.Lock()
	count := len(r.marks)
	r.marks = make(map[string]time.Time)
	r.mu.Unlock()
	if count > 0 {
		r.log.Debug("echo markers released", "count", count)
	}
}
