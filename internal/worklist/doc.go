// Package worklist parses line-oriented pipetting worklist scripts into
// command sequences.
//
// The format is the semicolon-delimited record style used by vendor liquid
// handlers: each non-blank line starts with a single-letter command code
// (A aspirate, D dispense, W wash, B break, M mix) followed by its fields.
// Parsing is all-or-nothing: a malformed line anywhere in the document
// yields a ParseError and no commands.
package worklist
