package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"pkt.systems/atelier/core"
	"pkt.systems/atelier/internal/echo"
	"pkt.systems/atelier/internal/sandbox"
	"pkt.systems/atelier/schema"
)

type stubMonitor struct {
	mu   sync.Mutex
	root string
}

func (m *stubMonitor) Watch(root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = root
	return nil
}

func (m *stubMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = ""
	return nil
}

func (m *stubMonitor) Root() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

type stubRunner struct {
	res sandbox.Result
	err error
}

func (r *stubRunner) Run(ctx context.Context, code, workdir string, timeout time.Duration, onArtifact func(string)) (sandbox.Result, error) {
	return r.res, r.err
}

type testEnv struct {
	ts     *httptest.Server
	hub    *Hub
	runner *stubRunner
	root   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := echo.New(2*time.Second, 5*time.Second, nil)
	hub := NewHub(8, 30*time.Second, nil)
	runner := &stubRunner{}
	service, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{
		Monitor:   &stubMonitor{},
		Echo:      reg,
		Runner:    runner,
		EventSink: hub,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	srv := NewServer(Config{HeartbeatInterval: time.Minute}, service, hub)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, hub: hub, runner: runner, root: t.TempDir()}
}

func (e *testEnv) post(t *testing.T, path string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func (e *testEnv) open(t *testing.T) {
	t.Helper()
	resp, body := e.post(t, "/api/workspace/open", map[string]any{"path": e.root})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open status %d: %v", resp.StatusCode, body)
	}
}

func TestWorkspaceLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.open(t)

	resp, body := e.post(t, "/api/file", map[string]any{"path": "data/report.csv", "text": "a,b\n1,2\n"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("write status %d: %v", resp.StatusCode, body)
	}

	resp, body = e.get(t, "/api/file?path=data/report.csv")
	if resp.StatusCode != http.StatusOK || body["text"] != "a,b\n1,2\n" {
		t.Fatalf("read status %d: %v", resp.StatusCode, body)
	}

	resp, body = e.get(t, "/api/tree")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tree status %d: %v", resp.StatusCode, body)
	}

	resp, body = e.get(t, "/api/search?q=report")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status %d: %v", resp.StatusCode, body)
	}
	matches, ok := body["matches"].([]any)
	if !ok || len(matches) != 1 {
		t.Fatalf("search matches: %v", body)
	}

	resp, body = e.post(t, "/api/workspace/close", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %v", resp.StatusCode, body)
	}
}

func TestErrorsMapToStatusCodes(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.get(t, "/api/tree")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before open, got %d", resp.StatusCode)
	}

	e.open(t)

	resp, _ = e.get(t, "/api/file?path=nope.txt")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, _ = e.post(t, "/api/file", map[string]any{"path": "../escape.txt", "text": "x"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodDelete, e.ts.URL+"/api/tree", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	raw, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	raw.Body.Close()
	if raw.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", raw.StatusCode)
	}
}

func TestRunEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.open(t)
	e.runner.res = sandbox.Result{Stdout: "42\n"}

	resp, body := e.post(t, "/api/run", map[string]any{"code": "print(42)"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run status %d: %v", resp.StatusCode, body)
	}
	if body["success"] != true || body["stdout"] != "42\n" {
		t.Fatalf("unexpected run body: %v", body)
	}
}

func TestRunEndpointReportsTimeout(t *testing.T) {
	e := newTestEnv(t)
	e.open(t)
	e.runner.res = sandbox.Result{Stdout: "partial", TimedOut: true}
	e.runner.err = schema.ErrExecutionTimeout

	resp, body := e.post(t, "/api/run", map[string]any{"code": "while True: pass"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run status %d: %v", resp.StatusCode, body)
	}
	if body["success"] != false || body["error"] == "" || body["stdout"] != "partial" {
		t.Fatalf("unexpected run body: %v", body)
	}
}

type wsClient struct {
	conn net.Conn
	rw   io.ReadWriter
	id   schema.ConnID
}

func dialObserver(t *testing.T, baseURL string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/events"
	conn, br, _, err := ws.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	c := &wsClient{conn: conn, rw: conn}
	if br != nil {
		c.rw = struct {
			io.Reader
			io.Writer
		}{io.MultiReader(br, conn), conn}
	}
	hello := c.read(t, 2*time.Second)
	if hello.Type != schema.NotifyHello || hello.ConnID == "" {
		t.Fatalf("expected hello frame, got %+v", hello)
	}
	c.id = hello.ConnID
	return c
}

func (c *wsClient) read(t *testing.T, timeout time.Duration) schema.Notification {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	data, err := wsutil.ReadServerText(c.rw)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var note schema.Notification
	if err := json.Unmarshal(data, &note); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return note
}

func (c *wsClient) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	data, err := wsutil.ReadServerText(c.rw)
	if err == nil {
		t.Fatalf("unexpected frame: %s", data)
	}
	if nerr, ok := err.(net.Error); !ok || !nerr.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

func (c *wsClient) send(t *testing.T, note schema.Notification) {
	t.Helper()
	data, err := json.Marshal(note)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := wsutil.WriteClientMessage(c.rw, ws.OpText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestTwoObserversSelfWriteExcluded(t *testing.T) {
	e := newTestEnv(t)
	e.open(t)

	alice := dialObserver(t, e.ts.URL)
	bob := dialObserver(t, e.ts.URL)

	resp, body := e.post(t, "/api/file", map[string]any{
		"path":   "shared.txt",
		"text":   "hello",
		"origin": string(alice.id),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("write status %d: %v", resp.StatusCode, body)
	}

	note := bob.read(t, 2*time.Second)
	if note.Type != schema.NotifyFileChanged || !strings.HasSuffix(note.Path, "shared.txt") {
		t.Fatalf("unexpected notification for bob: %+v", note)
	}
	alice.expectNone(t, 300*time.Millisecond)
}

func TestObserverPingPong(t *testing.T) {
	e := newTestEnv(t)
	e.open(t)

	c := dialObserver(t, e.ts.URL)
	c.send(t, schema.Notification{Type: schema.NotifyPing})
	note := c.read(t, 2*time.Second)
	if note.Type != schema.NotifyPong {
		t.Fatalf("expected pong, got %+v", note)
	}
}

func TestObserverCapacity(t *testing.T) {
	reg := echo.New(2*time.Second, 5*time.Second, nil)
	hub := NewHub(1, 30*time.Second, nil)
	service, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{
		Monitor:   &stubMonitor{},
		Echo:      reg,
		Runner:    &stubRunner{},
		EventSink: hub,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ts := httptest.NewServer(NewServer(Config{HeartbeatInterval: time.Minute}, service, hub).Handler())
	defer ts.Close()

	dialObserver(t, ts.URL)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	_, _, _, err = ws.Dial(context.Background(), url)
	if err == nil {
		t.Fatalf("expected second dial to be rejected")
	}
}
