package job

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind tags a stage failure as worth retrying or not.
type ErrorKind string

const (
	// KindFatal failures transition the job to failed immediately.
	KindFatal ErrorKind = "fatal"
	// KindRetryable failures are transient (rate limit, timeout, overload, unavailable).
	KindRetryable ErrorKind = "retryable"
)

// Reasons attached to retryable errors for logging and metrics.
const (
	ReasonRateLimited  = "rate_limited"
	ReasonTimeout      = "timeout"
	ReasonOverloaded   = "overloaded"
	ReasonUnavailable  = "unavailable"
	ReasonInvalidInput = "invalid_input"
)

// StageError wraps a collaborator failure with its classification.
type StageError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// Retryable wraps err as a transient failure.
func Retryable(reason string, err error) error {
	if err == nil {
		err = errors.New(reason)
	}
	return &StageError{Kind: KindRetryable, Reason: reason, Err: err}
}

// Fatal wraps err as a non-retryable failure.
func Fatal(reason string, err error) error {
	if err == nil {
		err = errors.New(reason)
	}
	return &StageError{Kind: KindFatal, Reason: reason, Err: err}
}

// Retryablef formats a transient failure.
func Retryablef(reason, format string, args ...any) error {
	return Retryable(reason, fmt.Errorf(format, args...))
}

// KindOf returns the tag carried by err. Deadline expiry and network timeouts
// are retryable; anything untagged is fatal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindFatal
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindRetryable
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindRetryable
	}
	return KindFatal
}

// IsRetryable reports whether err is tagged retryable.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}
