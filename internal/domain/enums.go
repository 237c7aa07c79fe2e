// Package domain defines the core domain models for the orchestration core.
package domain

// Role identifies the author of a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	}
	return false
}

// SessionStatus represents the status of a session.
type SessionStatus string

const (
	StatusRunning           SessionStatus = "RUNNING"
	StatusAwaitingApproval  SessionStatus = "AWAITING_APPROVAL"
	StatusReasoning         SessionStatus = "REASONING"
	StatusCompleted         SessionStatus = "COMPLETED"
	StatusFailed            SessionStatus = "FAILED"
	StatusTimedOut          SessionStatus = "TIMED_OUT"
)

// Terminal reports whether no further transitions are accepted for the status.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// Decision is a human verdict on a pending tool call.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether the decision is one of the known verdicts.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}
