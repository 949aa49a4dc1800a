// Package watcher turns raw filesystem notifications on a workspace root
// into classified, debounced change events, dropping echoes of the
// process's own writes.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pkt.systems/atelier/internal/echo"
	"pkt.systems/atelier/schema"
	"pkt.systems/pslog"
)

// Sink receives change events that survive suppression and debouncing. The
// sink runs on the monitor's goroutine and must not block; delivery into the
// connection-serving context happens behind buffered channels downstream.
type Sink interface {
	OnFileChange(event schema.ChangeEvent)
}

// Monitor watches a workspace root recursively on its own goroutine.
// Filesystem notifications arrive on the fsnotify channel, which is a
// different execution context than the one serving observer connections;
// events are handed over through the sink. Until a sink is installed events
// are dropped, never queued.
type Monitor struct {
	debounce *debouncer
	echo     *echo.Registry
	log      pslog.Logger

	mu   sync.Mutex
	fsw  *fsnotify.Watcher
	root string
	done chan struct{}

	sinkMu sync.RWMutex
	sink   Sink
}

// New constructs a Monitor with the given debounce window.
func New(window time.Duration, registry *echo.Registry, logger pslog.Logger) *Monitor {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Monitor{
		debounce: newDebouncer(window),
		echo:     registry,
		log:      logger,
	}
}

// SetSink installs the delivery target for change events. Expected to be
// called once at server start, before any workspace is bound.
func (m *Monitor) SetSink(sink Sink) {
	m.sinkMu.Lock()
	m.sink = sink
	m.sinkMu.Unlock()
}

// Watch begins a recursive watch of root, replacing any previous watch.
func (m *Monitor) Watch(root string) error {
	if root == "" {
		return errors.New("watch root is required")
	}
	if err := m.Stop(); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addRecursive(fsw, root); err != nil {
		_ = fsw.Close()
		return err
	}
	done := make(chan struct{})
	m.mu.Lock()
	m.fsw = fsw
	m.root = root
	m.done = done
	m.mu.Unlock()
	go m.run(fsw, done)
	m.log.Info("monitor watch started", "root", root)
	return nil
}

// Stop tears down the current watch and releases debounce state and echo
// markers for the root.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	fsw := m.fsw
	done := m.done
	root := m.root
	m.fsw = nil
	m.done = nil
	m.root = ""
	m.mu.Unlock()
	if fsw == nil {
		return nil
	}
	err := fsw.Close()
	if done != nil {
		<-done
	}
	m.debounce.reset()
	m.echo.ReleaseAll()
	m.log.Info("monitor watch stopped", "root", root)
	return err
}

// Root returns the currently watched root, empty when no watch is active.
func (m *Monitor) Root() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

func (m *Monitor) run(fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			m.handle(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			m.log.Warn("monitor watch error", "err", err)
		}
	}
}

func (m *Monitor) handle(fsw *fsnotify.Watcher, event fsnotify.Event) {
	path := event.Name
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		kind := schema.ChangeDeleted
		if event.Has(fsnotify.Rename) {
			kind = schema.ChangeMoved
		}
		// A deleted file cannot be echoed; deletions bypass suppression
		// and debouncing, and clear any stale per-path state.
		m.debounce.forget(path)
		m.echo.Forget(path)
		m.emit(schema.ChangeEvent{Path: path, Kind: kind, Timestamp: time.Now()})
	case event.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err == nil && info.IsDir() {
			if err := fsw.Add(path); err != nil {
				m.log.Warn("monitor subdir watch failed", "path", path, "err", err)
			}
			return
		}
		m.pass(path, schema.ChangeCreated)
	case event.Has(fsnotify.Write):
		m.pass(path, schema.ChangeModified)
	}
}

func (m *Monitor) pass(path string, kind schema.ChangeKind) {
	if m.echo.IsSuppressed(path) {
		m.log.Trace("monitor event suppressed", "path", path, "kind", kind)
		return
	}
	if !m.debounce.pass(path) {
		m.log.Trace("monitor event debounced", "path", path, "kind", kind)
		return
	}
	m.emit(schema.ChangeEvent{Path: path, Kind: kind, Timestamp: time.Now()})
}

func (m *Monitor) emit(event schema.ChangeEvent) {
	m.sinkMu.RLock()
	sink := m.sink
	m.sinkMu.RUnlock()
	if sink == nil {
		m.log.Debug("monitor event dropped", "path", event.Path, "kind", event.Kind, "reason", "no sink")
		return
	}
	sink.OnFileChange(event)
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
}
