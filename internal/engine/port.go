package engine

import (
	"context"
	"time"

	"github.com/meridianlab/fluidcore/internal/instrument"
)

// Outcome is the action port's verdict on a dispatched command.
type Outcome struct {
	// OK is true when the physical action completed.
	OK bool

	// Duration optionally reports how long the device took. It is
	// informational only: the engine's simulated clock always advances by
	// the nominal duration so timing stays reproducible.
	Duration time.Duration

	// Reason describes the failure when OK is false.
	Reason string
}

// Succeeded builds a success outcome with an optional device duration.
func Succeeded(duration time.Duration) Outcome {
	return Outcome{OK: true, Duration: duration}
}

// Failed builds a failure outcome.
func Failed(reason string) Outcome {
	return Outcome{OK: false, Reason: reason}
}

// ActionPort is the transport that physically performs a validated command.
//
// The engine dispatches exactly one Perform or PerformBatch call at a time
// and awaits its outcome before touching state; implementations never see
// concurrent calls from the same engine. A port must honour context
// cancellation, but the engine treats cancellation during a call as
// ambiguous (Interrupted): the physical action may or may not have
// completed out of band.
//
// Commands that reach a port have already passed structural validation and
// state preconditions; ports only report transport or device failures.
type ActionPort interface {
	// Perform executes a single command.
	Perform(ctx context.Context, cmd instrument.Command) Outcome

	// PerformBatch executes a set of commands as one physical action
	// (for example eight tips picked up simultaneously).
	PerformBatch(ctx context.Context, cmds []instrument.Command) Outcome
}
