package storage

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned for an execution id the ledger does not hold.
	ErrNotFound = errors.New("execution not found")
	// ErrExists is returned when appending an id that is already recorded.
	ErrExists = errors.New("execution already recorded")
	// ErrFinalized is returned when updating a record that is already terminal.
	ErrFinalized = errors.New("execution already finalized")
	// ErrNotTerminal is returned when Update is given a non-terminal status.
	ErrNotTerminal = errors.New("update requires a terminal status")
)

// TruncationMarker is appended to output cut down to the ledger's cap.
const TruncationMarker = "\n[output truncated]"

// Status of an execution
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Record is one execution as kept in the ledger and returned by the API.
type Record struct {
	ExecutionID string                 `json:"execution_id"`
	Module      string                 `json:"module"`
	Target      string                 `json:"target"`
	Parameters  map[string]interface{} `json:"parameters"`
	Output      string                 `json:"output"`
	Stderr      string                 `json:"stderr"`
	Status      Status                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	ExitCode    *int                   `json:"exit_code,omitempty"`
	DurationMS  int64                  `json:"duration_ms"`
	Error       string                 `json:"error,omitempty"`
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	if r.Parameters != nil {
		params := make(map[string]interface{}, len(r.Parameters))
		for k, v := range r.Parameters {
			params[k] = v
		}
		r.Parameters = params
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		r.FinishedAt = &t
	}
	if r.ExitCode != nil {
		c := *r.ExitCode
		r.ExitCode = &c
	}
	return r
}

// Ledger is the append-only execution history. A record is appended once as
// pending and replaced exactly once by its terminal version; readers see one
// or the other, never a mix.
type Ledger interface {
	Append(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns records oldest first.
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Truncate cuts s to at most max bytes on a rune boundary and marks the cut.
// max <= 0 leaves s untouched.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker
}

func checkUpdate(current, next Record) error {
	if current.Status.Terminal() {
		return ErrFinalized
	}
	if !next.Status.Terminal() {
		return ErrNotTerminal
	}
	return nil
}
