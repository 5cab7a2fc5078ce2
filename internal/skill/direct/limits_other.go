//go:build !linux

package direct

import (
	"errors"
	"runtime"
)

const limitsSupported = false

// ExecLimited is only available on linux.
func ExecLimited(args []string) error {
	return errors.New(LimitedExecCommand + " is not supported on " + runtime.GOOS)
}
