// Package instrument models the physical state of a liquid-handling
// instrument: which channels carry tips, how much liquid each well holds,
// and what the gripper is holding.
//
// The three state stores (ChannelState, LiquidLedger, GripperState) follow a
// single-writer discipline: each exposes Check* predicates that validate a
// proposed operation against the current state, and Apply* mutators that
// commit it. Only the execution engine may call the mutators, and only after
// the corresponding physical action has been confirmed. No other component
// mutates instrument state.
package instrument
