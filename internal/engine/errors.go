package engine

import (
	"errors"
	"fmt"
)

// Domain errors for the engine package.
var (
	// ErrDeviceFailed is returned when the action port reports failure for
	// a validated command.
	ErrDeviceFailed = errors.New("engine: device reported failure")

	// ErrInterrupted is returned when execution is cancelled while a
	// command is in flight. Instrument state is untouched, but the physical
	// action may have completed; callers should re-synchronise.
	ErrInterrupted = errors.New("engine: execution interrupted")

	// ErrBatchRejected is returned when batch validation fails; no element
	// of the batch was dispatched or applied.
	ErrBatchRejected = errors.New("engine: batch rejected")

	// ErrBatchLengthMismatch is returned when the ops and channels arrays
	// of a batch differ in length.
	ErrBatchLengthMismatch = errors.New("engine: ops and channels length mismatch")

	// ErrBusy is returned when an execution is requested while another is
	// already running on the same engine.
	ErrBusy = errors.New("engine: execution already in progress")
)

// AbortError reports that a sequence stopped at a specific command.
// The full log up to and including the failing command is in the Result
// returned alongside the error.
type AbortError struct {
	// Index of the offending command in the submitted sequence.
	Index int

	// Outcome of the offending command.
	Outcome OutcomeKind

	// Err is the underlying cause: a *instrument.PreconditionError,
	// ErrDeviceFailed, or ErrInterrupted.
	Err error
}

// Error implements the error interface.
func (e *AbortError) Error() string {
	return fmt.Sprintf("execution aborted at command %d (%s): %v", e.Index, e.Outcome, e.Err)
}

// Unwrap exposes the cause for errors.Is checks.
func (e *AbortError) Unwrap() error {
	return e.Err
}
