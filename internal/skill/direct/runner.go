package direct

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/hb-chen/skillgate/pkg/logger"
)

const (
	// DefaultMaxOutputBytes caps each of stdout and stderr.
	DefaultMaxOutputBytes = 1 << 20

	// TruncationMarker is appended to a stream that hit its cap.
	TruncationMarker = "\n[output truncated]"

	// waitDelay bounds how long Wait blocks on pipes held open by grandchildren
	// after the process itself is gone.
	waitDelay = 2 * time.Second

	defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

	// LimitedExecCommand is the hidden subcommand the gateway binary runs
	// itself with to set rlimits between fork and exec. See ExecLimited.
	LimitedExecCommand = "__exec-limited"
)

// Limits bounds a single process run. Zero values mean "no limit", except
// MaxOutputBytes which falls back to DefaultMaxOutputBytes.
type Limits struct {
	Timeout        time.Duration
	MaxOutputBytes int
	CPUSeconds     uint64
	MemoryBytes    uint64
}

// Result is what a finished process left behind.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// ProcessRunner spawns a binary with an explicit argv. No shell is involved:
// every argv element reaches the child as exactly one argument.
//
// When CPU or memory limits are set the child is started through the
// running executable's LimitedExecCommand, which applies them before the
// target program's first instruction.
type ProcessRunner struct {
	self    string
	selfErr error
}

// NewProcessRunner creates a new process runner
func NewProcessRunner() *ProcessRunner {
	self, err := os.Executable()
	if err != nil {
		return &ProcessRunner{selfErr: err}
	}
	return &ProcessRunner{self: self}
}

// command resolves the program and argv to start for path, routing through
// the limits helper when needed.
func (r *ProcessRunner) command(path string, argv []string, limits Limits) (string, []string, error) {
	if limits.CPUSeconds == 0 && limits.MemoryBytes == 0 {
		return path, argv, nil
	}
	if !limitsSupported {
		logger.Debugf("Resource limits are not supported on this platform, %s runs unbounded", path)
		return path, argv, nil
	}
	if r.self == "" {
		err := r.selfErr
		if err == nil {
			err = errors.New("executable path unknown")
		}
		return "", nil, fmt.Errorf("resource limits need the gateway executable: %w", err)
	}

	args := make([]string, 0, len(argv)+4)
	args = append(args,
		LimitedExecCommand,
		strconv.FormatUint(limits.CPUSeconds, 10),
		strconv.FormatUint(limits.MemoryBytes, 10),
		path,
	)
	return r.self, append(args, argv...), nil
}

// Run executes binary with argv and waits for it. The returned Result is
// non-nil whenever the process was started, including on timeout and
// cancellation, so partial output is never lost.
func (r *ProcessRunner) Run(ctx context.Context, binary string, argv []string, limits Limits) (*Result, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, &SpawnError{Binary: binary, Err: err}
	}

	runCtx := ctx
	if limits.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	maxOutput := limits.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	stdout := &limitedBuffer{limit: maxOutput}
	stderr := &limitedBuffer{limit: maxOutput}

	name, args, err := r.command(path, argv, limits)
	if err != nil {
		return nil, &SpawnError{Binary: binary, Err: err}
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Env = minimalEnv()
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Binary: binary, Err: err}
	}
	logger.Debugf("Started %s pid=%d argc=%d", binary, cmd.Process.Pid, len(argv))

	err = cmd.Wait()
	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  0,
		Duration:  time.Since(start),
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil || (errors.Is(err, exec.ErrWaitDelay) && result.ExitCode == 0) {
		return result, nil
	}

	switch {
	case ctx.Err() != nil:
		result.ExitCode = -1
		return result, &CancelledError{Err: ctx.Err()}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.ExitCode = -1
		return result, &TimeoutError{Timeout: limits.Timeout}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	return result, fmt.Errorf("waiting for %s: %w", binary, err)
}

// minimalEnv hands the child only what it needs to locate helpers and
// render text; the gateway's own environment stays private.
func minimalEnv() []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = defaultPath
	}
	env := []string{"PATH=" + path}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	}
	lang := os.Getenv("LANG")
	if lang == "" {
		lang = "C"
	}
	return append(env, "LANG="+lang)
}

// limitedBuffer keeps the first limit bytes and silently drops the rest.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.limit - l.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			l.truncated = true
		}
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated = true
		_, _ = l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) Truncated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.truncated
}

func (l *limitedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.truncated {
		return l.buf.String() + TruncationMarker
	}
	return l.buf.String()
}
