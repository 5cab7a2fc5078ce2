package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/hb-chen/skillgate/internal/skill"
	"github.com/hb-chen/skillgate/internal/skill/direct"
)

// Executor runs a validated invocation. *direct.DirectExecutor is the
// production implementation.
type Executor interface {
	Execute(ctx context.Context, inv *skill.Invocation) (*direct.Result, error)
}

var _ Executor = (*direct.DirectExecutor)(nil)

// describeFailure turns an executor outcome into the record's error text.
// It returns "" for a clean exit.
func describeFailure(inv *skill.Invocation, res *direct.Result, err error) string {
	var (
		spawnErr   *direct.SpawnError
		timeoutErr *direct.TimeoutError
		cancelled  *direct.CancelledError
	)

	switch {
	case err == nil && res != nil && res.ExitCode == 0:
		return ""
	case err == nil && res != nil:
		return fmt.Sprintf("exit status %d", res.ExitCode)
	case errors.As(err, &spawnErr):
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Sprintf("binary not found: %s", inv.Binary)
		}
		return spawnErr.Error()
	case errors.As(err, &timeoutErr):
		return timeoutErr.Error()
	case errors.As(err, &cancelled):
		return "execution cancelled"
	case err != nil:
		return err.Error()
	default:
		return "executor returned no result"
	}
}
