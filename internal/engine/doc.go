// Package engine executes validated pipetting command sequences against an
// action port while maintaining the authoritative instrument state model.
//
// The engine is the single writer for channel, ledger, and gripper state:
// every command is validated against current state, dispatched to the port,
// and only applied to state once the port confirms success. Commands execute
// strictly sequentially; a deterministic simulated clock advances by a fixed
// nominal duration per command kind, so the same sequence always produces
// the same timing.
//
// Batch execution (one physical multi-channel action) is atomic: every
// element is validated against a single state snapshot before any dispatch,
// and one invalid element rejects the whole batch with no state mutation.
package engine
