package core

import (
	"context"
	"time"

	"pkt.systems/atelier/internal/sandbox"
)

// Monitor is the recursive workspace watcher as the service sees it.
// internal/watcher provides the production implementation.
type Monitor interface {
	Watch(root string) error
	Stop() error
	Root() string
}

// Runner executes one job in isolation. onArtifact, when non-nil, is invoked
// for each artifact path as the job reports it, before Run returns.
// internal/sandbox provides the production implementation.
type Runner interface {
	Run(ctx context.Context, code, workdir string, timeout time.Duration, onArtifact func(path string)) (sandbox.Result, error)
}
