package skill

import (
	"errors"
	"fmt"
)

// ErrSkillNotFound is returned for names absent from the registry.
var ErrSkillNotFound = errors.New("skill not found")

// ValidationError rejects a request before anything is spawned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err means the request never reached a process.
func IsRejection(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrSkillNotFound) || errors.As(err, &ve)
}
