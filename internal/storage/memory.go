package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger keeps records in process memory, oldest first. With a positive
// capacity, appending past it evicts the oldest terminal records; pending
// records are never evicted, so the ledger may briefly hold more than
// capacity while executions are in flight. Capacity 0 keeps everything.
type MemoryLedger struct {
	mu       sync.RWMutex
	capacity int
	records  []Record
	index    map[string]int
	closed   bool
}

// NewMemoryLedger creates an in-memory ledger
func NewMemoryLedger(capacity int) *MemoryLedger {
	if capacity < 0 {
		capacity = 0
	}
	return &MemoryLedger{
		capacity: capacity,
		index:    make(map[string]int),
	}
}

func (l *MemoryLedger) Append(ctx context.Context, rec Record) error {
	if rec.ExecutionID == "" {
		return fmt.Errorf("record has no execution id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("ledger closed")
	}
	if _, exists := l.index[rec.ExecutionID]; exists {
		return fmt.Errorf("%w: %s", ErrExists, rec.ExecutionID)
	}

	l.records = append(l.records, rec.Clone())
	l.index[rec.ExecutionID] = len(l.records) - 1
	l.evict()
	return nil
}

// evict drops the oldest terminal records until the ledger fits its capacity
// or only pending records remain above it.
func (l *MemoryLedger) evict() {
	if l.capacity == 0 || len(l.records) <= l.capacity {
		return
	}

	excess := len(l.records) - l.capacity
	kept := l.records[:0]
	for _, rec := range l.records {
		if excess > 0 && rec.Status.Terminal() {
			delete(l.index, rec.ExecutionID)
			excess--
			continue
		}
		kept = append(kept, rec)
	}
	for i := len(kept); i < len(l.records); i++ {
		l.records[i] = Record{}
	}
	l.records = kept
	for i, rec := range l.records {
		l.index[rec.ExecutionID] = i
	}
}

func (l *MemoryLedger) Update(ctx context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, exists := l.index[rec.ExecutionID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ExecutionID)
	}
	if err := checkUpdate(l.records[slot], rec); err != nil {
		return fmt.Errorf("%w: %s", err, rec.ExecutionID)
	}

	l.records[slot] = rec.Clone()
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, id string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	slot, exists := l.index[id]
	if !exists {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return l.records[slot].Clone(), nil
}

func (l *MemoryLedger) List(ctx context.Context) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Len returns the number of records held
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *MemoryLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
