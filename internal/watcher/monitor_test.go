package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"pkt.systems/atelier/internal/echo"
	"pkt.systems/atelier/schema"
)

type captureSink struct {
	events chan schema.ChangeEvent
}

func newCaptureSink() *captureSink {
	return &captureSink{events: make(chan schema.ChangeEvent, 16)}
}

func (s *captureSink) OnFileChange(event schema.ChangeEvent) {
	s.events <- event
}

func (s *captureSink) wait(t *testing.T, timeout time.Duration) schema.ChangeEvent {
	t.Helper()
	select {
	case event := <-s.events:
		return event
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for change event")
		return schema.ChangeEvent{}
	}
}

func (s *captureSink) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case event := <-s.events:
		t.Fatalf("unexpected event: %+v", event)
	case <-time.After(wait):
	}
}

func TestHandleClassifiesOps(t *testing.T) {
	reg := echo.New(2*time.Second, 5*time.Second, nil)
	m := New(500*time.Millisecond, reg, nil)
	sink := newCaptureSink()
	m.SetSink(sink)

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m.handle(nil, fsnotify.Event{Name: path, Op: fsnotify.Create})
	if got := sink.wait(t, time.Second); got.Kind != schema.ChangeCreated {
		t.Fatalf("expected created, got %s", got.Kind)
	}
	m.handle(nil, fsnotify.Event{Name: path, Op: fsnotify.Remove})
	if got := sink.wait(t, time.Second); got.Kind != schema.ChangeDeleted {
		t.Fatalf("expected deleted, got %s", got.Kind)
	}
	m.handle(nil, fsnotify.Event{Name: path, Op: fsnotify.Rename})
	if got := sink.wait(t, time.Second); got.Kind != schema.ChangeMoved {
		t.Fatalf("expected moved, got %s", got.Kind)
	}
	m.handle(nil, fsnotify.Event{Name: path, Op: fsnotify.Chmod})
	sink.expectNone(t, 50*time.Millisecond)
}

func TestSuppressedWriteDropped(t *testing.T) {
	reg := echo.New(2*time.Second, 5*time.Second, nil)
	m := New(500*time.Millisecond, reg, nil)
	sink := newCaptureSink()
	m.SetSink(sink)

	reg.Mark("/proj/a.txt")
	m.handle(nil, fsnotify.Event{Name: "/proj/a.txt", Op: fsnotify.Write})
	sink.expectNone(t, 50*time.Millisecond)

	m.handle(nil, fsnotify.Event{Name: "/proj/b.txt", Op: fsnotify.Write})
	if got := sink.wait(t, time.Second); got.Path != "/proj/b.txt" {
		t.Fatalf("expected event for unmarked path, got %+v", got)
	}
}

func TestDeleteBypassesSuppression(t *testing.T) {
	reg := echo.New(2*time.Second, 5*time.Second, nil)
	m := New(500*time.Millisecond, reg, nil)
	sink := newCaptureSink()
	m.SetSink(sink)

	reg.Mark("/proj/a.txt")
	m.handle(nil, fsnotify.Event{Name: "/proj/a.txt", Op: fsnotify.Remove})
	if got := sink.wait(t, time.Second); got.Kind != schema.ChangeDeleted {
		t.Fatalf("expected delete to pass while suppressed, got %+v", got)
	}
}

func TestDebouncedWriteDropped(t *testing.T) {
	reg := echo.New(2*time.Second, 5*time.Second, nil)
	m := New(500*time.Millisecond, reg, nil)
	sink := newCaptureSink()
	m.SetSink(sink)

	base := time.Now()
	m.debounce.now = func() time.Time { return base }
	m.handle(nil, fsnotify.Event{Name: "/proj/a.txt", Op: fsnotify.Write})
	sink.wait(t, time.Second)
	m.handle(nil, fsnotify.Event{Name: "/proj/a.txt", Op: fsnotify.Write})
	sink.expectNone(t, 50*time.Millisecond)
}

func TestEventsBeforeSinkInstalledAreDropped(t *testing.T) {
	reg := echo.New(2*time.Second, 5*time.Second, nil)
	m := New(500*time.Millisecond, reg, nil)

	// No sink yet: the event must be discarded, not queued.
	m.handle(nil, fsnotify.Event{Name: "/proj/a.txt", Op: fsnotify.Write})

	sink := newCaptureSink()
	m.SetSink(sink)
	sink.expectNone(t, 50*time.Millisecond)
}

func TestWatchDeliversFilesystemEvents(t *testing.T) {
	reg := echo.New(2*time.Second, 5*time.Second, nil)
	m := New(500*time.Millisecond, reg, nil)
	sink := newCaptureSink()
	m.SetSink(sink)

	root := t.TempDir()
	if err := m.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer m.Stop()

	path := filepath.Join(root, "data.csv")
	if err := os.WriteFile(path, []byte("a,b\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := sink.wait(t, 2*time.Second)
	if got.Path != path {
		t.Fatalf("expected event for %s, got %+v", path, got)
	}
}

func TestWatchDetectsNewSubdirectories(t *testing.T) {
	reg := echo.New(2*time.Second, 5*time.Second, nil)
	m := New(500*time.Millisecond, reg, nil)
	sink := newCaptureSink()
	m.SetSink(sink)

	root := t.TempDir()
	if err := m.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer m.Stop()

	sub := filepath.Join(root, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Give the monitor a moment to pick up the new directory watch.
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(sub, "inner.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := sink.wait(t, 2*time.Second)
	if got.Path != path {
		t.Fatalf("expected event for %s, got %+v", path, got)
	}
}

func TestStopReleasesState(t *testing.T) {
	reg := echo.New(2*time.Second, 5*time.Second, nil)
	m := New(500*time.Millisecond, reg, nil)
	root := t.TempDir()
	if err := m.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}
	reg.Mark(filepath.Join(root, "a.txt"))
	if err := m.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.Root() != "" {
		t.Fatalf("expected no root after stop")
	}
	if reg.IsSuppressed(filepath.Join(root, "a.txt")) {
		t.Fatalf("expected echo markers released on stop")
	}
}
