package direct

import (
	"context"
	"fmt"

	"github.com/hb-chen/skillgate/internal/skill"
)

// DirectExecutor runs validated skill invocations as local processes.
type DirectExecutor struct {
	runner   *ProcessRunner
	defaults Limits
}

// NewDirectExecutor creates a new direct executor. defaults.Timeout applies
// to skills that do not carry their own.
func NewDirectExecutor(defaults Limits) *DirectExecutor {
	return &DirectExecutor{
		runner:   NewProcessRunner(),
		defaults: defaults,
	}
}

// Execute runs inv and blocks until the process exits, times out, or ctx is
// cancelled.
func (e *DirectExecutor) Execute(ctx context.Context, inv *skill.Invocation) (*Result, error) {
	if inv == nil || inv.Binary == "" {
		return nil, fmt.Errorf("invocation has no binary")
	}

	limits := e.defaults
	if inv.Timeout > 0 {
		limits.Timeout = inv.Timeout
	}

	return e.runner.Run(ctx, inv.Binary, inv.Argv, limits)
}

// Limits returns the defaults applied to every run.
func (e *DirectExecutor) Limits() Limits {
	return e.defaults
}
