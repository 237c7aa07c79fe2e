package domain

import "errors"

// Error taxonomy. Stage-local failures (a failed tool call) are absorbed
// into history; these sentinels mark the conditions that callers branch on.
var (
	// ErrNotFound indicates no session exists for the given session_id.
	ErrNotFound = errors.New("session not found")

	// ErrMalformedMessage indicates a boundary representation could not be
	// converted to a canonical Message.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrStaleDecision indicates an approval decision for a session or call
	// that is not currently pending. The session state is left unchanged.
	ErrStaleDecision = errors.New("stale approval decision")

	// ErrApprovalTimeout indicates the approval window elapsed with no decision.
	ErrApprovalTimeout = errors.New("approval timed out")

	// ErrSessionTerminal indicates an operation on a session that accepts no
	// further mutation.
	ErrSessionTerminal = errors.New("session is terminal")

	// ErrPersistence indicates the durable store could not commit a transition.
	ErrPersistence = errors.New("persistence failure")
)
