//go:build unix

package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb-chen/skillgate/internal/skill"
	"github.com/hb-chen/skillgate/internal/skill/direct"
	"github.com/hb-chen/skillgate/internal/storage"
)

func shellSkill(name, script string, timeout time.Duration) skill.Descriptor {
	// The target lands in $0, so it never reaches the script body.
	return skill.Descriptor{
		Name:    name,
		Binary:  "sh",
		Target:  skill.TargetHostname,
		Args:    []string{"-c", script, "{target}"},
		Timeout: timeout,
	}
}

func realPipeline(t *testing.T, descriptors ...skill.Descriptor) (*Pipeline, *storage.MemoryLedger) {
	ledger := storage.NewMemoryLedger(0)
	exec := direct.NewDirectExecutor(direct.Limits{Timeout: 10 * time.Second})
	return NewPipeline(testRegistry(t, descriptors...), exec, ledger, Options{MaxConcurrent: 2}), ledger
}

func TestRealExecution(t *testing.T) {
	p, _ := realPipeline(t,
		skill.Descriptor{Name: "echo_host", Binary: "echo", Target: skill.TargetHostname, Args: []string{"{target}"}},
		skill.Descriptor{Name: "ghost", Binary: "skillgate-missing-binary", Target: skill.TargetHostname, Args: []string{"{target}"}},
		shellSkill("exit_four", "echo out; exit 4", 0),
		shellSkill("slow", "sleep 10", 300*time.Millisecond),
	)
	ctx := context.Background()

	rec, err := p.Execute(ctx, Request{Module: "echo_host", Target: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSuccess, rec.Status)
	assert.Equal(t, "example.com\n", rec.Output)

	rec, err = p.Execute(ctx, Request{Module: "ghost", Target: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)
	assert.Equal(t, "binary not found: skillgate-missing-binary", rec.Error)

	rec, err = p.Execute(ctx, Request{Module: "exit_four", Target: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)
	assert.Equal(t, "exit status 4", rec.Error)
	assert.Equal(t, "out\n", rec.Output)

	start := time.Now()
	rec, err = p.Execute(ctx, Request{Module: "slow", Target: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestClientDisconnectStillFinalizes(t *testing.T) {
	p, ledger := realPipeline(t, shellSkill("slow", "sleep 10", 0))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	rec, err := p.Execute(ctx, Request{Module: "slow", Target: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)
	assert.Equal(t, "execution cancelled", rec.Error)

	stored, err := ledger.Get(context.Background(), rec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, stored.Status)
}
