package sandbox

import (
	"context"
	_ "embed"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"pkt.systems/atelier/schema"
)

//go:embed harness.py
var harnessSource []byte

// artifactPollInterval is how often the report file is checked while the job
// runs. Kept short so a saved figure is marked well inside the echo suppress
// window, before the watcher delivers the create event for it.
const artifactPollInterval = 25 * time.Millisecond

// Run executes code inside workdir, bounded by timeout. The job runs as a
// child process in its own process group; on timeout or context cancellation
// the whole group receives SIGKILL, so grandchildren die with it. onArtifact,
// when non-nil, is invoked for each artifact path as the job reports it,
// while the job is still running. Timeouts and non-zero exits are reported
// through schema.ErrExecutionTimeout and schema.ErrExecutionFailure alongside
// a populated Result.
func (e *Executor) Run(ctx context.Context, code, workdir string, timeout time.Duration, onArtifact func(path string)) (Result, error) {
	if strings.TrimSpace(code) == "" {
		return Result{}, schema.ErrEmptyCode
	}
	info, err := os.Stat(workdir)
	if err != nil || !info.IsDir() {
		return Result{}, schema.ErrInvalidWorkdir
	}

	jobDir, err := os.MkdirTemp("", "atelier-job-*")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(jobDir)

	jobPath := filepath.Join(jobDir, "job.py")
	if err := os.WriteFile(jobPath, []byte(code), 0o600); err != nil {
		return Result{}, err
	}
	harnessPath := filepath.Join(jobDir, "harness.py")
	if err := os.WriteFile(harnessPath, harnessSource, 0o600); err != nil {
		return Result{}, err
	}
	reportPath := filepath.Join(jobDir, "artifacts.txt")
	mplDir := filepath.Join(jobDir, "mpl")
	if err := os.Mkdir(mplDir, 0o700); err != nil {
		return Result{}, err
	}

	var stdout, stderr limitedBuffer
	stdout.max = e.maxOutput
	stderr.max = e.maxOutput

	cmd := exec.Command(e.python, "-I", "-B", harnessPath)
	cmd.Dir = workdir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = []string{
		"ATELIER_JOB_PATH=" + jobPath,
		"ATELIER_ARTIFACT_REPORT=" + reportPath,
		"MPLCONFIGDIR=" + mplDir,
		"HOME=" + workdir,
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"LANG=C.UTF-8",
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	stream := newReportStream(reportPath, workdir, onArtifact)
	streamStop := make(chan struct{})
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		ticker := time.NewTicker(artifactPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-streamStop:
				return
			case <-ticker.C:
				stream.poll()
			}
		}
	}()
	collect := func() []string {
		close(streamStop)
		<-streamDone
		stream.poll()
		return stream.artifacts()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		waitErr  error
		timedOut bool
	)
	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		e.killGroup(cmd)
		waitErr = <-done
	case <-ctx.Done():
		e.killGroup(cmd)
		<-done
		collect()
		return Result{}, ctx.Err()
	}

	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Artifacts: collect(),
		TimedOut:  timedOut,
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	elapsed := time.Since(start)
	switch {
	case timedOut:
		e.log.Warn("job killed on timeout", "workdir", workdir, "timeout", timeout)
		return res, schema.ErrExecutionTimeout
	case waitErr != nil:
		e.log.Debug("job failed", "workdir", workdir, "exitcode", res.ExitCode, "elapsed", elapsed)
		return res, schema.ErrExecutionFailure
	}
	e.log.Debug("job completed", "workdir", workdir, "artifacts", len(res.Artifacts), "elapsed", elapsed)
	return res, nil
}

// killGroup delivers SIGKILL to the job's process group. The negative pid
// addresses the group; with Setpgid the group id equals the child's pid.
func (e *Executor) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		e.log.Warn("kill process group failed", "pid", cmd.Process.Pid, "err", err)
	}
}
