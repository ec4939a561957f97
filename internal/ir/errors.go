package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes FGDB errors.
type ErrorCode string

const (
	// ErrCodeStoreNotInitialized indicates no snapshot exists yet; run init first.
	ErrCodeStoreNotInitialized ErrorCode = "STORE_NOT_INITIALIZED"

	// ErrCodeAlreadyInitialized indicates init was requested on an existing store.
	ErrCodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"

	// ErrCodeBlockSourceMissing indicates the path given for registration does not exist.
	ErrCodeBlockSourceMissing ErrorCode = "BLOCK_SOURCE_MISSING"

	// ErrCodeBlockPayloadInvalid indicates kind-specific required content is absent.
	ErrCodeBlockPayloadInvalid ErrorCode = "BLOCK_PAYLOAD_INVALID"

	// ErrCodeMalformedExpression indicates an operation expression failed to parse.
	ErrCodeMalformedExpression ErrorCode = "MALFORMED_EXPRESSION"

	// ErrCodeUnknownBlock indicates a name or hash code matches no MG node.
	ErrCodeUnknownBlock ErrorCode = "UNKNOWN_BLOCK"

	// ErrCodeAmbiguousName indicates a name matches more than one MG node.
	ErrCodeAmbiguousName ErrorCode = "AMBIGUOUS_NAME"

	// ErrCodeTypeMismatch indicates a reference resolved to a block of the wrong kind.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeExecutionFailed indicates the function process did not produce a valid output.
	ErrCodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// ErrCodeIncompatibleSnapshotVersion indicates the persisted format is not supported.
	ErrCodeIncompatibleSnapshotVersion ErrorCode = "INCOMPATIBLE_SNAPSHOT_VERSION"

	// ErrCodeStoreLocked indicates another process holds the store lock.
	ErrCodeStoreLocked ErrorCode = "STORE_LOCKED"
)

// Error is the structured error surfaced by every FGDB component.
//
// Error carries enough context for the caller to act: the reference that
// failed, the candidate hash codes of an ambiguous name, and the cause.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Ref is the name, hash code or path the error is about.
	Ref string

	// Candidates lists matching hash codes (ambiguous names).
	Candidates []string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Ref != "" {
		fmt.Fprintf(&b, " (ref=%s)", e.Ref)
	}
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " candidates=[%s]", strings.Join(e.Candidates, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the error code from err.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) (ErrorCode, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return "", false
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// NewError creates an Error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error around an underlying cause.
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewUnknownBlockError creates an Error for a reference with no MG match.
func NewUnknownBlockError(ref string) *Error {
	return &Error{
		Code:    ErrCodeUnknownBlock,
		Message: "no registered block matches reference",
		Ref:     ref,
	}
}

// NewAmbiguousNameError creates an Error for a name shared by several blocks.
// The caller must re-issue the expression using one of the candidate hash codes.
func NewAmbiguousNameError(name string, candidates []string) *Error {
	return &Error{
		Code:       ErrCodeAmbiguousName,
		Message:    fmt.Sprintf("name matches %d blocks, use a hash code instead", len(candidates)),
		Ref:        name,
		Candidates: candidates,
	}
}

// NewTypeMismatchError creates an Error for a block of the wrong kind.
func NewTypeMismatchError(ref string, want, got Kind) *Error {
	return &Error{
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("expected %s block, got %s", want, got),
		Ref:     ref,
		Details: map[string]string{
			"want": string(want),
			"got":  string(got),
		},
	}
}

// NewIncompatibleVersionError creates an Error for an unsupported snapshot format.
func NewIncompatibleVersionError(found, supported int) *Error {
	return &Error{
		Code:    ErrCodeIncompatibleSnapshotVersion,
		Message: fmt.Sprintf("snapshot format version %d is not supported (want %d)", found, supported),
		Details: map[string]string{
			"found":     fmt.Sprintf("%d", found),
			"supported": fmt.Sprintf("%d", supported),
		},
	}
}
