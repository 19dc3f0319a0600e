// Package pipeline runs the build state machine for a watched root.
//
// A run moves one status record strictly forward through
//
//	pending -> parsing -> testing -> building -> deploying -> success
//
// and jumps to failed on the first stage failure. Every stage failure is
// caught at the stage boundary (panics included) and recorded as a
// human-readable reason on the record; nothing from a single build escapes to
// the caller except status store invariant violations.
//
// The Dispatcher serializes runs per root: a trigger that arrives while a
// build for the same root is active is coalesced into a single follow-up run
// that starts as soon as the active build finishes.
package pipeline
