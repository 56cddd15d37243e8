package engine

import (
	"time"

	"github.com/meridianlab/fluidcore/internal/instrument"
)

// OutcomeKind classifies how a command's execution ended.
type OutcomeKind string

// Outcome kinds.
const (
	// OutcomeSuccess: the port confirmed the action and state was mutated.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeRejected: a precondition failed; the command never reached
	// the port and state is untouched.
	OutcomeRejected OutcomeKind = "rejected"

	// OutcomeDeviceFailed: the port reported failure for a validated
	// command; state is untouched.
	OutcomeDeviceFailed OutcomeKind = "device_failed"

	// OutcomeInterrupted: execution was cancelled while the command was in
	// flight. State is untouched, but whether the physical action completed
	// is explicitly unknown; callers should re-synchronise before resuming.
	OutcomeInterrupted OutcomeKind = "interrupted"
)

// LogEntry records one executed (or rejected) command. The log is
// append-only and ordered by execution, which equals submission order.
type LogEntry struct {
	// Seq is the entry's index in the engine's log.
	Seq int `json:"seq"`

	Command instrument.Command `json:"command"`
	Outcome OutcomeKind        `json:"outcome"`

	// Cause explains non-success outcomes.
	Cause string `json:"cause,omitempty"`

	// Duration is the command's nominal simulated duration.
	Duration time.Duration `json:"duration"`

	// Clock is the simulated clock after this entry. Entries belonging to
	// one batch share a clock value: the batch is one physical action.
	Clock time.Duration `json:"clock"`

	// State is the instrument snapshot after this entry was applied
	// (identical to the pre-entry snapshot for non-success outcomes).
	State instrument.Snapshot `json:"state"`
}

// Result is the outcome of executing a command sequence. Entries always
// cover every command up to and including the one that aborted execution,
// so state can be audited without re-running the script.
type Result struct {
	Entries []LogEntry `json:"entries"`

	// Completed counts commands that ended OutcomeSuccess.
	Completed int `json:"completed"`

	// Clock is the simulated clock after the last entry.
	Clock time.Duration `json:"clock"`
}

// BatchResult is the outcome of one atomic batch action.
type BatchResult struct {
	// Outcome is the aggregate verdict: a batch either fully succeeds or
	// is a single failed unit.
	Outcome OutcomeKind `json:"outcome"`

	// PerOp holds one outcome per submitted operation. On rejection every
	// element carries the batch's rejected outcome (nothing was dispatched).
	PerOp []OutcomeKind `json:"per_op"`

	// FailedIndex is the index of the first failing element, -1 on success.
	FailedIndex int `json:"failed_index"`

	// Cause explains a non-success aggregate outcome.
	Cause string `json:"cause,omitempty"`

	// Entries are the log entries appended for this batch.
	Entries []LogEntry `json:"entries"`

	// Clock is the simulated clock after the batch.
	Clock time.Duration `json:"clock"`
}
