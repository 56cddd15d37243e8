package instrument

import (
	"errors"
	"fmt"
)

// Domain errors for the instrument package.
//
// Precondition sentinels are checked with errors.Is():
//
//	if errors.Is(err, instrument.ErrInsufficientVolume) {
//	    // refill the source plate and resume
//	}
var (
	// ErrInvalidCommand is returned when a command fails structural validation.
	ErrInvalidCommand = errors.New("instrument: invalid command")

	// ErrNoTipOnChannel is returned when an operation requires a tip on a
	// channel that has none.
	ErrNoTipOnChannel = errors.New("instrument: no tip on channel")

	// ErrTipAlreadyPresent is returned when picking up a tip on a channel
	// that already carries one.
	ErrTipAlreadyPresent = errors.New("instrument: tip already present on channel")

	// ErrInsufficientVolume is returned when aspirating more than a well holds.
	ErrInsufficientVolume = errors.New("instrument: insufficient volume in well")

	// ErrWellOverflow is returned when a dispense would exceed a well's
	// configured capacity and capacity enforcement is enabled.
	ErrWellOverflow = errors.New("instrument: well capacity exceeded")

	// ErrResourceAlreadyHeld is returned when picking up a resource while the
	// gripper already holds one.
	ErrResourceAlreadyHeld = errors.New("instrument: resource already held")

	// ErrNoResourceHeld is returned when moving or dropping a resource the
	// gripper does not hold.
	ErrNoResourceHeld = errors.New("instrument: no matching resource held")
)

// PreconditionError wraps a precondition sentinel with the command that
// violated it. The engine records these as Rejected outcomes; they never
// reach the action port.
type PreconditionError struct {
	Command Command
	Err     error
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for %s: %v", e.Command, e.Err)
}

// Unwrap exposes the sentinel for errors.Is checks.
func (e *PreconditionError) Unwrap() error {
	return e.Err
}
