//go:build linux

package direct

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"
)

const limitsSupported = true

// ExecLimited sets the CPU and address-space limits named in args on the
// current process, then replaces it with the target program. args is
// "<cpu-seconds> <memory-bytes> <path> [argv...]"; a zero limit is left
// unset. Limits set here are inherited by everything the target forks.
func ExecLimited(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%s: want <cpu-seconds> <memory-bytes> <path> [args...], got %d args", LimitedExecCommand, len(args))
	}
	cpu, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%s: cpu seconds: %w", LimitedExecCommand, err)
	}
	mem, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%s: memory bytes: %w", LimitedExecCommand, err)
	}

	if cpu > 0 {
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: cpu, Max: cpu}); err != nil {
			return fmt.Errorf("%s: set RLIMIT_CPU: %w", LimitedExecCommand, err)
		}
	}
	if mem > 0 {
		if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: mem, Max: mem}); err != nil {
			return fmt.Errorf("%s: set RLIMIT_AS: %w", LimitedExecCommand, err)
		}
	}

	path := args[2]
	argv := append([]string{path}, args[3:]...)
	if err := unix.Exec(path, argv, unix.Environ()); err != nil {
		return fmt.Errorf("%s: exec %s: %w", LimitedExecCommand, path, err)
	}
	return nil
}
