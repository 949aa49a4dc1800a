// Package sandbox executes untrusted Python analysis code in a separate OS
// process with its own process group, a wiped environment and an isolated
// interpreter (-I). The harness restricts the job's builtins, confines open()
// to the working directory and records every figure the job saves.
package sandbox

import (
	"bytes"
	"context"
	"os"
	"strings"

	"pkt.systems/pslog"

	"pkt.systems/atelier/schema"
)

// Config controls executor behaviour. Zero values fall back to defaults.
type Config struct {
	// PythonPath is the interpreter binary, default "python3".
	PythonPath string
	// MaxOutputBytes caps captured stdout and stderr, each.
	MaxOutputBytes int64
}

// Result carries the outcome of one job. Stdout, Stderr and Artifacts are
// populated on failure and timeout too, with whatever the job produced
// before it died.
type Result struct {
	Stdout    string
	Stderr    string
	Artifacts []string
	ExitCode  int
	TimedOut  bool
}

// Executor runs jobs. Safe for concurrent use.
type Executor struct {
	python    string
	maxOutput int64
	log       pslog.Logger
}

// New constructs an Executor.
func New(cfg Config, logger pslog.Logger) *Executor {
	if cfg.PythonPath == "" {
		cfg.PythonPath = "python3"
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = schema.DefaultMaxOutputBytes
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Executor{
		python:    cfg.PythonPath,
		maxOutput: cfg.MaxOutputBytes,
		log:       logger,
	}
}

// reportStream tails the harness report file: one absolute path per line,
// appended by the harness before the save itself runs. notify fires the
// moment a path appears, while the figure write is still in flight. Paths
// outside workdir are discarded and duplicates collapse to the first
// occurrence.
type reportStream struct {
	path   string
	prefix string
	offset int64
	seen   map[string]struct{}
	paths  []string
	notify func(path string)
}

func newReportStream(reportPath, workdir string, notify func(string)) *reportStream {
	return &reportStream{
		path:   reportPath,
		prefix: strings.TrimSuffix(workdir, "/") + "/",
		seen:   make(map[string]struct{}),
		notify: notify,
	}
}

// poll consumes the complete lines appended since the previous call. A line
// whose newline has not landed yet is left for the next poll.
func (s *reportStream) poll() {
	data, err := os.ReadFile(s.path)
	if err != nil || int64(len(data)) <= s.offset {
		return
	}
	chunk := data[s.offset:]
	last := bytes.LastIndexByte(chunk, '\n')
	if last < 0 {
		return
	}
	s.offset += int64(last) + 1
	for _, line := range strings.Split(string(chunk[:last]), "\n") {
		path := strings.TrimSpace(line)
		if path == "" || !strings.HasPrefix(path, s.prefix) {
			continue
		}
		if _, dup := s.seen[path]; dup {
			continue
		}
		s.seen[path] = struct{}{}
		s.paths = append(s.paths, path)
		if s.notify != nil {
			s.notify(path)
		}
	}
}

// artifacts returns the reported paths that exist on disk. A save that was
// reported and then raised never produced a file.
func (s *reportStream) artifacts() []string {
	var out []string
	for _, path := range s.paths {
		if _, err := os.Stat(path); err == nil {
			out = append(out, path)
		}
	}
	return out
}

// limitedBuffer captures at most max bytes and drops the rest.
type limitedBuffer struct {
	max       int64
	buf       strings.Builder
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	room := b.max - int64(b.buf.Len())
	if room <= 0 {
		b.truncated = true
		return n, nil
	}
	if int64(n) > room {
		p = p[:room]
		b.truncated = true
	}
	b.buf.Write(p)
	return n, nil
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
