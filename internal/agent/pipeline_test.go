package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb-chen/skillgate/internal/skill"
	"github.com/hb-chen/skillgate/internal/skill/direct"
	"github.com/hb-chen/skillgate/internal/storage"
	"github.com/hb-chen/skillgate/internal/tracer"
)

type fakeExecutor func(ctx context.Context, inv *skill.Invocation) (*direct.Result, error)

func (f fakeExecutor) Execute(ctx context.Context, inv *skill.Invocation) (*direct.Result, error) {
	return f(ctx, inv)
}

func okExecutor(stdout string) fakeExecutor {
	return func(ctx context.Context, inv *skill.Invocation) (*direct.Result, error) {
		return &direct.Result{Stdout: stdout, Duration: 5 * time.Millisecond}, nil
	}
}

type brokenLedger struct{ storage.Ledger }

func (brokenLedger) Append(ctx context.Context, rec storage.Record) error {
	return errors.New("disk full")
}

func testRegistry(t *testing.T, descriptors ...skill.Descriptor) *skill.Registry {
	t.Helper()
	if len(descriptors) == 0 {
		descriptors = []skill.Descriptor{{
			Name:   "echo_host",
			Binary: "echo",
			Target: skill.TargetHostname,
			Args:   []string{"{target}"},
			Parameters: []skill.ParamSpec{
				{Name: "verbose", Type: skill.ParamBool, Flag: "-v"},
			},
		}}
	}
	r, err := skill.NewRegistry(descriptors...)
	require.NoError(t, err)
	return r
}

func TestExecuteRecordsSuccess(t *testing.T) {
	ledger := storage.NewMemoryLedger(0)
	tr := tracer.NewMemoryTracer()
	p := NewPipeline(testRegistry(t), okExecutor("hello\n"), ledger, Options{Tracer: tr})

	rec, err := p.Execute(context.Background(), Request{
		Module:     "echo_host",
		Target:     " example.com ",
		Parameters: map[string]interface{}{"verbose": true},
	})
	require.NoError(t, err)

	assert.Equal(t, storage.StatusSuccess, rec.Status)
	assert.Equal(t, "example.com", rec.Target)
	assert.Equal(t, "hello\n", rec.Output)
	assert.Equal(t, map[string]interface{}{"verbose": true}, rec.Parameters)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 0, *rec.ExitCode)
	require.NotNil(t, rec.FinishedAt)
	assert.Empty(t, rec.Error)

	stored, err := p.Record(context.Background(), rec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, *rec, stored)

	assert.Equal(t, 1, tr.Count(tracer.TraceEventExecutionStart))
	assert.Equal(t, 1, tr.Count(tracer.TraceEventExecutionEnd))
}

func TestExecuteRejectionsAreNotRecorded(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		check func(t *testing.T, err error)
	}{
		{"unknown module", Request{Module: "exploit", Target: "example.com"}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, skill.ErrSkillNotFound)
		}},
		{"missing module", Request{Target: "example.com"}, func(t *testing.T, err error) {
			var ve *skill.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "module", ve.Field)
		}},
		{"bad target", Request{Module: "echo_host", Target: "example.com;id"}, func(t *testing.T, err error) {
			var ve *skill.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "target", ve.Field)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := storage.NewMemoryLedger(0)
			tr := tracer.NewMemoryTracer()
			var ran atomic.Bool
			exec := fakeExecutor(func(ctx context.Context, inv *skill.Invocation) (*direct.Result, error) {
				ran.Store(true)
				return &direct.Result{}, nil
			})
			p := NewPipeline(testRegistry(t), exec, ledger, Options{Tracer: tr})

			rec, err := p.Execute(context.Background(), tt.req)
			assert.Nil(t, rec)
			require.Error(t, err)
			assert.True(t, skill.IsRejection(err))
			tt.check(t, err)

			assert.False(t, ran.Load())
			assert.Equal(t, 0, ledger.Len())
			assert.Equal(t, 1, tr.Count(tracer.TraceEventRejected))
		})
	}
}

func TestExecuteClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		result   *direct.Result
		err      error
		contains string
		exitCode *int
	}{
		{
			name:     "missing binary",
			err:      &direct.SpawnError{Binary: "echo", Err: &os.PathError{Op: "exec", Path: "echo", Err: os.ErrNotExist}},
			contains: "failed to start echo",
		},
		{
			name:     "timeout",
			result:   &direct.Result{Stdout: "partial", ExitCode: -1},
			err:      &direct.TimeoutError{Timeout: time.Second},
			contains: "timed out after 1s",
		},
		{
			name:     "cancelled",
			result:   &direct.Result{ExitCode: -1},
			err:      &direct.CancelledError{Err: context.Canceled},
			contains: "execution cancelled",
		},
		{
			name:     "non-zero exit",
			result:   &direct.Result{Stderr: "boom", ExitCode: 3},
			contains: "exit status 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := fakeExecutor(func(ctx context.Context, inv *skill.Invocation) (*direct.Result, error) {
				return tt.result, tt.err
			})
			p := NewPipeline(testRegistry(t), exec, storage.NewMemoryLedger(0), Options{})

			rec, err := p.Execute(context.Background(), Request{Module: "echo_host", Target: "example.com"})
			require.NoError(t, err)
			assert.Equal(t, storage.StatusFailed, rec.Status)
			assert.Contains(t, rec.Error, tt.contains)
			if tt.result != nil {
				assert.Equal(t, tt.result.Stdout, rec.Output)
				assert.Equal(t, tt.result.Stderr, rec.Stderr)
			} else {
				assert.Nil(t, rec.ExitCode)
			}
		})
	}
}

func TestExecuteTruncatesRecordOutput(t *testing.T) {
	p := NewPipeline(testRegistry(t), okExecutor(strings.Repeat("x", 100)), storage.NewMemoryLedger(0),
		Options{MaxRecordOutput: 10})

	rec, err := p.Execute(context.Background(), Request{Module: "echo_host", Target: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 10)+storage.TruncationMarker, rec.Output)
}

func TestExecuteLedgerFailure(t *testing.T) {
	p := NewPipeline(testRegistry(t), okExecutor(""), brokenLedger{storage.NewMemoryLedger(0)}, Options{})

	rec, err := p.Execute(context.Background(), Request{Module: "echo_host", Target: "example.com"})
	assert.Nil(t, rec)
	var le *LedgerError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "append", le.Op)
	assert.False(t, skill.IsRejection(err))
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int64
	exec := fakeExecutor(func(ctx context.Context, inv *skill.Invocation) (*direct.Result, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return &direct.Result{}, nil
	})
	ledger := storage.NewMemoryLedger(0)
	p := NewPipeline(testRegistry(t), exec, ledger, Options{MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Execute(context.Background(), Request{Module: "echo_host", Target: "example.com"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Equal(t, 8, ledger.Len())
}

func TestExecuteCancelledWhileQueued(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	exec := fakeExecutor(func(ctx context.Context, inv *skill.Invocation) (*direct.Result, error) {
		entered <- struct{}{}
		<-release
		return &direct.Result{}, nil
	})
	ledger := storage.NewMemoryLedger(0)
	p := NewPipeline(testRegistry(t), exec, ledger, Options{MaxConcurrent: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Execute(context.Background(), Request{Module: "echo_host", Target: "busy.example.com"})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rec, err := p.Execute(ctx, Request{Module: "echo_host", Target: "queued.example.com"})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)
	assert.Equal(t, "execution cancelled", rec.Error)

	stored, err := ledger.Get(context.Background(), rec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, stored.Status)

	close(release)
	<-done
}

func TestExecuteWritesReport(t *testing.T) {
	dir := t.TempDir()
	audit := tracer.NewMemoryTracer()
	p := NewPipeline(testRegistry(t), okExecutor("80/tcp open\n"), storage.NewMemoryLedger(0),
		Options{Tracer: tracer.NewMultiTracer(audit, NewMarkdownReporter(dir, true))})

	rec, err := p.Execute(context.Background(), Request{Module: "echo_host", Target: "example.com"})
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "*-"+rec.ExecutionID+".md"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	body, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "80/tcp open")
	assert.Contains(t, string(body), "✅ Success")
	assert.Equal(t, 1, audit.Count(tracer.TraceEventExecutionEnd))
}

func TestExecuteReportFailureDoesNotFailExecution(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	p := NewPipeline(testRegistry(t), okExecutor("ok\n"), storage.NewMemoryLedger(0),
		Options{Tracer: tracer.NewMultiTracer(NewMarkdownReporter(file, true))})

	rec, err := p.Execute(context.Background(), Request{Module: "echo_host", Target: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSuccess, rec.Status)
}

func TestExecuteRetentionSparesRunningExecutions(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	exec := fakeExecutor(func(ctx context.Context, inv *skill.Invocation) (*direct.Result, error) {
		if inv.Target == "slow.example.com" {
			entered <- struct{}{}
			<-release
		}
		return &direct.Result{Stdout: inv.Target}, nil
	})
	ledger := storage.NewMemoryLedger(2)
	p := NewPipeline(testRegistry(t), exec, ledger, Options{MaxConcurrent: 2})

	type outcome struct {
		rec *storage.Record
		err error
	}
	slow := make(chan outcome, 1)
	go func() {
		rec, err := p.Execute(context.Background(), Request{Module: "echo_host", Target: "slow.example.com"})
		slow <- outcome{rec, err}
	}()
	<-entered

	for _, target := range []string{"a.example.com", "b.example.com"} {
		rec, err := p.Execute(context.Background(), Request{Module: "echo_host", Target: target})
		require.NoError(t, err)
		assert.Equal(t, storage.StatusSuccess, rec.Status)
	}

	close(release)
	got := <-slow
	require.NoError(t, got.err)
	assert.Equal(t, storage.StatusSuccess, got.rec.Status)

	history, err := p.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "slow.example.com", history[0].Target)
	assert.Equal(t, "b.example.com", history[1].Target)
}

func TestHistoryInInsertionOrder(t *testing.T) {
	p := NewPipeline(testRegistry(t), okExecutor(""), storage.NewMemoryLedger(0), Options{})

	var ids []string
	for _, target := range []string{"a.example.com", "b.example.com", "c.example.com"} {
		rec, err := p.Execute(context.Background(), Request{Module: "echo_host", Target: target})
		require.NoError(t, err)
		ids = append(ids, rec.ExecutionID)
	}

	history, err := p.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, rec := range history {
		assert.Equal(t, ids[i], rec.ExecutionID)
	}
}
