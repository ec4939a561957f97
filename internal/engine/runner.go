package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// DefaultWaitDelay bounds how long Run waits for output pipes after the
// process exits or is killed.
const DefaultWaitDelay = 2 * time.Second

// Invocation is one function process to run.
type Invocation struct {
	Argv    []string
	Dir     string
	Env     []string
	Timeout time.Duration // Zero means no timeout
}

// Outcome is what a finished process left behind.
type Outcome struct {
	ExitCode int // -1 when the process never produced an exit status
	Stdout   []byte
	Stderr   []byte
	TimedOut bool
	Duration time.Duration
}

// Runner executes function processes.
// Implemented by ProcessRunner; tests substitute fakes.
type Runner interface {
	// Run starts inv and waits for it. A nonzero exit or a timeout is
	// reported in the Outcome, not as an error. The error is reserved for
	// processes that could not be started and for cancellation of ctx.
	Run(ctx context.Context, inv Invocation) (Outcome, error)
}

// ProcessRunner runs invocations as child processes.
//
// Each child gets its own process group. On timeout or cancellation the
// whole group is killed so grandchildren do not outlive the run.
type ProcessRunner struct {
	WaitDelay time.Duration
}

// Run implements Runner.
func (r ProcessRunner) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	out := Outcome{ExitCode: -1}
	if len(inv.Argv) == 0 {
		return out, errors.New("empty command")
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	isolate(cmd)

	start := time.Now()
	err := cmd.Run()
	out.Duration = time.Since(start)
	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		return out, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		out.TimedOut = true
		return out, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil, errors.As(err, &exitErr):
		return out, nil
	case errors.Is(err, exec.ErrWaitDelay):
		// The process exited but left its output pipes open.
		return out, nil
	default:
		return out, fmt.Errorf("start %s: %w", inv.Argv[0], err)
	}
}
