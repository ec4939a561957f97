package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/fgdb/internal/ir"
)

// stderrTail bounds how much captured stderr an error carries.
const stderrTail = 2048

// executionFailed builds the EXECUTION_FAILED error of run runID.
//
// The error carries the run ID, the exit code when the process ran, and the
// tail of its stderr so the caller can see why the function failed.
func executionFailed(runID string, out *Outcome, cause error, format string, args ...any) *ir.Error {
	e := ir.WrapError(ir.ErrCodeExecutionFailed, cause, format, args...)
	e.Details = map[string]string{"run_id": runID}
	if out == nil {
		return e
	}
	if out.ExitCode >= 0 {
		e.Details["exit_code"] = fmt.Sprintf("%d", out.ExitCode)
	}
	if out.TimedOut {
		e.Details["timed_out"] = "true"
	}
	if s := tail(out.Stderr, stderrTail); s != "" {
		e.Details["stderr"] = s
	}
	return e
}

// tail returns the last n bytes of b, trimmed, starting at a line boundary
// when one is available.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
		if i := strings.IndexByte(string(b), '\n'); i >= 0 && i < len(b)-1 {
			b = b[i+1:]
		}
	}
	return strings.TrimSpace(string(b))
}
