package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies a failure so callers can decide how to surface it.
// Every error produced by the engine adapter, the sheet pipeline and the job
// runner carries exactly one Kind.
type Kind int

const (
	// KindInternal is an unexpected failure inside this process.
	KindInternal Kind = iota
	// KindConfiguration covers bad executable or library paths, unknown sheet
	// names, unknown report names and malformed sheet descriptors.
	KindConfiguration
	// KindScope covers a pid or sid that does not exist, or a result scenario
	// targeted for mutation.
	KindScope
	// KindProtocol is the single IO-failure kind: the external process exited
	// non-zero, could not be spawned, or printed output of an unexpected shape.
	KindProtocol
	// KindIntegrity covers name lookups that match zero or several definitions.
	KindIntegrity
	// KindValidation covers malformed job submissions.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindScope:
		return "scope"
	case KindProtocol:
		return "protocol"
	case KindIntegrity:
		return "integrity"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

var (
	// ErrInvalidScope is wrapped by errors raised when neither pid nor sid
	// identifies an existing scope, or when both are given.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrResultScenarioImmutable is wrapped when an import targets a result scenario.
	ErrResultScenarioImmutable = errors.New("result scenarios cannot be modified")
	// ErrNotFound is returned by stores when a lookup by id or key misses.
	ErrNotFound = errors.New("not found")
)

// BatchError is the error type shared by every package in this module.
// It records the module the error originated from, a short message, the
// wrapped cause and the failure Kind.
type BatchError struct {
	Module      string // e.g. "engine", "pipeline", "runjob", "config"
	Message     string
	OriginalErr error
	Kind        Kind
	isRetryable bool
	isSkippable bool
	StackTrace  string // debug only
}

// NewBatchError creates a BatchError of KindInternal.
func NewBatchError(module, message string, originalErr error, isRetryable, isSkippable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		Kind:        KindInternal,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf formats a message. When the last argument is an error it is
// used as the wrapped cause instead of being formatted.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok && strings.Count(format, "%") < n {
			originalErr = err
			a = a[:n-1]
		}
	}
	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, a...),
		OriginalErr: originalErr,
		Kind:        KindInternal,
		StackTrace:  captureStack(),
	}
}

// New creates a BatchError of the given kind.
func New(kind Kind, module, message string, originalErr error) *BatchError {
	e := NewBatchError(module, message, originalErr, false, false)
	e.Kind = kind
	return e
}

// Newf creates a BatchError of the given kind with a formatted message.
func Newf(kind Kind, module, format string, a ...interface{}) *BatchError {
	e := NewBatchErrorf(module, format, a...)
	e.Kind = kind
	return e
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error implements error.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable reports whether the error may succeed on retry.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable reports whether the failing item may be skipped.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// KindOf returns the Kind of the outermost BatchError in err's chain that is
// not KindInternal, or KindInternal when there is none.
func KindOf(err error) Kind {
	for err != nil {
		var be *BatchError
		if !errors.As(err, &be) {
			return KindInternal
		}
		if be.Kind != KindInternal {
			return be.Kind
		}
		err = be.OriginalErr
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var be *BatchError
		if !errors.As(err, &be) {
			return false
		}
		if be.Kind == kind {
			return true
		}
		err = be.OriginalErr
	}
	return false
}

// IsTemporary reports whether err looks transient.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused")
}
