package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/fgdb/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation or scenario failure (execution failed, unknown block, etc.)
	ExitCommandError = 2 // Command error (bad flags, store missing or locked, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// exitCodeFor maps an error code to the process exit code. Problems with
// the store itself are command errors; everything an operation can run
// into is a failure.
func exitCodeFor(code ir.ErrorCode) int {
	switch code {
	case ir.ErrCodeStoreNotInitialized, ir.ErrCodeAlreadyInitialized,
		ir.ErrCodeStoreLocked, ir.ErrCodeIncompatibleSnapshotVersion:
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // ir.ErrorCode, or E_* for CLI-level failures
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
//
// In JSON mode the error is written to Writer as a CLIResponse. In text
// mode nothing is written: main prints the returned error once.
func (f *OutputFormatter) Fail(message string, err error) error {
	return f.FailWith(message, err, nil)
}

// FailWith is Fail with extra JSON details.
func (f *OutputFormatter) FailWith(message string, err error, extra map[string]any) error {
	code, details := describeError(err)
	if len(extra) > 0 {
		if details == nil {
			details = map[string]any{}
		}
		for k, v := range extra {
			details[k] = v
		}
	}
	exit := ExitCommandError
	var e *ir.Error
	if errors.As(err, &e) {
		exit = exitCodeFor(e.Code)
	}
	if f.Format == "json" {
		var d any
		if details != nil {
			d = details
		}
		if werr := f.Error(code, fmt.Sprintf("%s: %v", message, err), d); werr != nil {
			return werr
		}
	}
	return WrapExitError(exit, message, err)
}

// describeError extracts the code and details of an *ir.Error.
// Other errors are reported as E_COMMAND.
func describeError(err error) (string, map[string]any) {
	var e *ir.Error
	if !errors.As(err, &e) {
		return "E_COMMAND", nil
	}
	details := map[string]any{}
	if e.Ref != "" {
		details["ref"] = e.Ref
	}
	if len(e.Candidates) > 0 {
		details["candidates"] = e.Candidates
	}
	for k, v := range e.Details {
		details[k] = v
	}
	if len(details) == 0 {
		details = nil
	}
	return string(e.Code), details
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
