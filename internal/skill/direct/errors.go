package direct

import (
	"fmt"
	"time"
)

// SpawnError means the process never started: the binary is missing, not
// executable, or the fork itself failed.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError means the process outlived its timeout and was killed.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.Timeout)
}

// CancelledError means the caller went away and the process was killed.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("execution cancelled: %v", e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }
