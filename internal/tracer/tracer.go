package tracer

import (
	"context"
	"fmt"
	"time"

	"github.com/hb-chen/skillgate/internal/storage"
	"github.com/hb-chen/skillgate/pkg/logger"
)

// ExecutionTracer interface for tracing execution events
type ExecutionTracer interface {
	// TraceRejected records a request refused before anything was spawned
	TraceRejected(ctx context.Context, module, target string, err error) error

	// TraceExecutionStart records a pending execution about to spawn argv
	TraceExecutionStart(ctx context.Context, rec storage.Record, argv []string) error

	// TraceExecutionEnd records the terminal record of an execution
	TraceExecutionEnd(ctx context.Context, rec storage.Record) error

	// TraceError records an internal failure at the named stage
	TraceError(ctx context.Context, executionID, stage string, err error) error

	// Close closes the tracer and flushes any pending data
	Close() error
}

// TraceEventType represents the type of trace event
type TraceEventType string

const (
	TraceEventRejected       TraceEventType = "Rejected"
	TraceEventExecutionStart TraceEventType = "ExecutionStart"
	TraceEventExecutionEnd   TraceEventType = "ExecutionEnd"
	TraceEventError          TraceEventType = "Error"
)

// TraceEvent represents a single trace event
type TraceEvent struct {
	Type        TraceEventType
	Timestamp   time.Time
	ExecutionID string
	Module      string
	Data        map[string]interface{}
}

// MultiTracer combines multiple tracers
type MultiTracer struct {
	tracers []ExecutionTracer
}

// NewMultiTracer creates a new multi-tracer that forwards events to all tracers
func NewMultiTracer(tracers ...ExecutionTracer) *MultiTracer {
	return &MultiTracer{tracers: tracers}
}

// each calls fn on every tracer, best effort, and returns the last failure.
func (m *MultiTracer) each(event TraceEventType, fn func(ExecutionTracer) error) error {
	var lastErr error
	for _, tracer := range m.tracers {
		if err := fn(tracer); err != nil {
			logger.Warnf("[MultiTracer] Failed to trace %s: tracer=%T, error=%v", event, tracer, err)
			lastErr = err
		}
	}
	return lastErr
}

func (m *MultiTracer) TraceRejected(ctx context.Context, module, target string, err error) error {
	return m.each(TraceEventRejected, func(t ExecutionTracer) error {
		return t.TraceRejected(ctx, module, target, err)
	})
}

func (m *MultiTracer) TraceExecutionStart(ctx context.Context, rec storage.Record, argv []string) error {
	return m.each(TraceEventExecutionStart, func(t ExecutionTracer) error {
		return t.TraceExecutionStart(ctx, rec, argv)
	})
}

func (m *MultiTracer) TraceExecutionEnd(ctx context.Context, rec storage.Record) error {
	return m.each(TraceEventExecutionEnd, func(t ExecutionTracer) error {
		return t.TraceExecutionEnd(ctx, rec)
	})
}

func (m *MultiTracer) TraceError(ctx context.Context, executionID, stage string, err error) error {
	return m.each(TraceEventError, func(t ExecutionTracer) error {
		return t.TraceError(ctx, executionID, stage, err)
	})
}

func (m *MultiTracer) Close() error {
	var errors []error
	for _, tracer := range m.tracers {
		if err := tracer.Close(); err != nil {
			logger.Warnf("[MultiTracer] Failed to close tracer: tracer=%T, error=%v", tracer, err)
			errors = append(errors, err)
		}
	}
	if len(errors) > 0 {
		return fmt.Errorf("failed to close %d tracer(s): %v", len(errors), errors)
	}
	return nil
}
