package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hb-chen/skillgate/internal/skill"
	"github.com/hb-chen/skillgate/internal/skill/direct"
	"github.com/hb-chen/skillgate/internal/storage"
	"github.com/hb-chen/skillgate/internal/tracer"
	"github.com/hb-chen/skillgate/pkg/logger"
)

// Request is one call to run a skill.
type Request struct {
	Module     string                 `json:"module"`
	Target     string                 `json:"target"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// LedgerError means the ledger refused a write. The execution may have run,
// but its record cannot be trusted.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Options tunes a Pipeline.
type Options struct {
	// MaxConcurrent bounds simultaneously running processes.
	MaxConcurrent int64
	// MaxRecordOutput caps output and stderr as stored in the ledger.
	MaxRecordOutput int
	// Tracer receives audit events; compose several with tracer.NewMultiTracer.
	Tracer tracer.ExecutionTracer
}

// Pipeline validates, records and runs skills.
type Pipeline struct {
	registry  *skill.Registry
	executor  Executor
	ledger    storage.Ledger
	tracer    tracer.ExecutionTracer
	slots     *semaphore.Weighted
	maxOutput int

	now   func() time.Time
	newID func() string
}

// NewPipeline creates a new pipeline
func NewPipeline(registry *skill.Registry, executor Executor, ledger storage.Ledger, opts Options) *Pipeline {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Tracer == nil {
		opts.Tracer = tracer.NewLogTracer(tracer.LevelStandard)
	}

	return &Pipeline{
		registry:  registry,
		executor:  executor,
		ledger:    ledger,
		tracer:    opts.Tracer,
		slots:     semaphore.NewWeighted(opts.MaxConcurrent),
		maxOutput: opts.MaxRecordOutput,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Registry returns the skills this pipeline can run
func (p *Pipeline) Registry() *skill.Registry {
	return p.registry
}

// Execute runs req to completion. A rejected request returns the validation
// error and leaves no trace in the ledger. Anything that gets past
// validation yields a terminal record, whatever happened to the process; the
// error is non-nil then only for a *LedgerError.
func (p *Pipeline) Execute(ctx context.Context, req Request) (*storage.Record, error) {
	inv, err := p.validate(req)
	if err != nil {
		_ = p.tracer.TraceRejected(ctx, req.Module, req.Target, err)
		return nil, err
	}

	params := inv.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	rec := storage.Record{
		ExecutionID: p.newID(),
		Module:      inv.Skill,
		Target:      inv.Target,
		Parameters:  params,
		Status:      storage.StatusPending,
		Timestamp:   p.now(),
	}
	if err := p.ledger.Append(ctx, rec); err != nil {
		_ = p.tracer.TraceError(ctx, rec.ExecutionID, "append", err)
		return nil, &LedgerError{Op: "append", Err: err}
	}
	_ = p.tracer.TraceExecutionStart(ctx, rec, inv.Argv)

	res, runErr := p.run(ctx, inv)

	// The client may be gone; the record still has to reach a terminal state.
	final := p.finalize(rec, inv, res, runErr)
	detached := context.WithoutCancel(ctx)
	if err := p.ledger.Update(detached, final); err != nil {
		_ = p.tracer.TraceError(detached, rec.ExecutionID, "update", err)
		return nil, &LedgerError{Op: "update", Err: err}
	}
	_ = p.tracer.TraceExecutionEnd(detached, final)

	return &final, nil
}

// History returns every record, oldest first
func (p *Pipeline) History(ctx context.Context) ([]storage.Record, error) {
	return p.ledger.List(ctx)
}

// Record returns one execution record
func (p *Pipeline) Record(ctx context.Context, id string) (storage.Record, error) {
	return p.ledger.Get(ctx, id)
}

func (p *Pipeline) validate(req Request) (*skill.Invocation, error) {
	if req.Module == "" {
		return nil, &skill.ValidationError{Field: "module", Reason: "is required"}
	}
	return p.registry.Validate(req.Module, req.Target, req.Parameters)
}

// run waits for a worker slot, then executes. Waiting honours ctx.
func (p *Pipeline) run(ctx context.Context, inv *skill.Invocation) (*direct.Result, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, &direct.CancelledError{Err: err}
	}
	defer p.slots.Release(1)

	return p.executor.Execute(ctx, inv)
}

func (p *Pipeline) finalize(rec storage.Record, inv *skill.Invocation, res *direct.Result, runErr error) storage.Record {
	finished := p.now()
	rec.FinishedAt = &finished
	rec.DurationMS = finished.Sub(rec.Timestamp).Milliseconds()

	if res != nil {
		code := res.ExitCode
		rec.ExitCode = &code
		rec.Output = storage.Truncate(res.Stdout, p.maxOutput)
		rec.Stderr = storage.Truncate(res.Stderr, p.maxOutput)
		rec.DurationMS = res.Duration.Milliseconds()
	}

	rec.Error = describeFailure(inv, res, runErr)
	if rec.Error == "" {
		rec.Status = storage.StatusSuccess
	} else {
		rec.Status = storage.StatusFailed
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Debugf("Execution %s of %s failed: %v", rec.ExecutionID, rec.Module, runErr)
	}
	return rec
}
