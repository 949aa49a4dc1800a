package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"pkt.systems/atelier/internal/logx"
	"pkt.systems/atelier/schema"
)

func (s *service) RunCode(ctx context.Context, req schema.RunCodeRequest) (schema.RunCodeResponse, error) {
	if ctx == nil {
		return schema.RunCodeResponse{}, errors.New("missing context")
	}
	if strings.TrimSpace(req.Code) == "" {
		return schema.RunCodeResponse{}, schema.ErrEmptyCode
	}
	guard, err := s.currentGuard()
	if err != nil {
		return schema.RunCodeResponse{}, err
	}
	workdir := guard.Root()
	if req.Workdir != "" {
		resolved, err := guard.ResolveExisting(req.Workdir)
		if err != nil {
			if errors.Is(err, schema.ErrFileNotFound) {
				return schema.RunCodeResponse{}, schema.ErrInvalidWorkdir
			}
			return schema.RunCodeResponse{}, err
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.IsDir() {
			return schema.RunCodeResponse{}, schema.ErrInvalidWorkdir
		}
		workdir = resolved
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = s.cfg.DefaultExecTimeout
	}
	if timeout > s.cfg.MaxExecTimeout {
		timeout = s.cfg.MaxExecTimeout
	}

	log := logx.WithConn(ctx, req.Origin)
	log.Info("service run start", "workdir", workdir, "timeout", timeout)
	// Each artifact is echo-marked the moment the job reports it, while the
	// save is still in flight, so the watcher never treats the new file as a
	// foreign edit.
	res, err := s.runner.Run(ctx, req.Code, workdir, timeout, s.echo.Mark)

	// Artifacts are announced regardless of outcome; figures saved before a
	// crash or kill are real files the observers should see.
	s.announceArtifacts(res.Artifacts, req.Origin)

	resp := schema.RunCodeResponse{
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		Artifacts: res.Artifacts,
	}
	switch {
	case err == nil:
		resp.Success = true
		log.Info("service run done", "artifacts", len(res.Artifacts))
		return resp, nil
	case errors.Is(err, schema.ErrExecutionTimeout):
		resp.ErrorMessage = fmt.Sprintf("execution timed out after %s", timeout)
		log.Warn("service run timeout", "timeout", timeout)
		return resp, nil
	case errors.Is(err, schema.ErrExecutionFailure):
		resp.ErrorMessage = fmt.Sprintf("execution failed with exit code %d", res.ExitCode)
		log.Debug("service run failed", "exitcode", res.ExitCode)
		return resp, nil
	default:
		log.Warn("service run error", "err", err)
		return schema.RunCodeResponse{}, err
	}
}

func (s *service) announceArtifacts(artifacts []string, origin schema.ConnID) {
	for _, path := range artifacts {
		s.echo.Mark(path)
		s.sink.OnFileChange(schema.ChangeEvent{
			Path:      path,
			Kind:      schema.ChangeCreated,
			Origin:    origin,
			Timestamp: time.Now(),
		})
	}
}
