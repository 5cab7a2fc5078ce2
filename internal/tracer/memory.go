package tracer

import (
	"context"
	"sync"
	"time"

	"github.com/hb-chen/skillgate/internal/storage"
)

// MemoryTracer keeps every event in memory, newest last. It backs tests and
// any caller that wants to inspect the audit trail in process.
type MemoryTracer struct {
	mu     sync.Mutex
	events []TraceEvent
}

// NewMemoryTracer creates a new in-memory tracer
func NewMemoryTracer() *MemoryTracer {
	return &MemoryTracer{}
}

func (m *MemoryTracer) add(ev TraceEvent) {
	ev.Timestamp = time.Now()
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *MemoryTracer) TraceRejected(ctx context.Context, module, target string, err error) error {
	m.add(TraceEvent{
		Type:   TraceEventRejected,
		Module: module,
		Data:   map[string]interface{}{"target": target, "error": err.Error()},
	})
	return nil
}

func (m *MemoryTracer) TraceExecutionStart(ctx context.Context, rec storage.Record, argv []string) error {
	m.add(TraceEvent{
		Type:        TraceEventExecutionStart,
		ExecutionID: rec.ExecutionID,
		Module:      rec.Module,
		Data:        map[string]interface{}{"argv": append([]string(nil), argv...)},
	})
	return nil
}

func (m *MemoryTracer) TraceExecutionEnd(ctx context.Context, rec storage.Record) error {
	m.add(TraceEvent{
		Type:        TraceEventExecutionEnd,
		ExecutionID: rec.ExecutionID,
		Module:      rec.Module,
		Data:        map[string]interface{}{"status": string(rec.Status), "error": rec.Error},
	})
	return nil
}

func (m *MemoryTracer) TraceError(ctx context.Context, executionID, stage string, err error) error {
	m.add(TraceEvent{
		Type:        TraceEventError,
		ExecutionID: executionID,
		Data:        map[string]interface{}{"stage": stage, "error": err.Error()},
	})
	return nil
}

// Events returns a copy of the recorded events
func (m *MemoryTracer) Events() []TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TraceEvent(nil), m.events...)
}

// Count returns how many events of type t were recorded
func (m *MemoryTracer) Count(t TraceEventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (m *MemoryTracer) Close() error {
	return nil
}
