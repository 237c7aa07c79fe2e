package domain

import "time"

// PendingApproval is the tool call a session is suspended on.
// RequestedAt marks gate entry; the approval timeout is measured from it.
type PendingApproval struct {
	Call        ToolCall  `json:"call"`
	RequestedAt time.Time `json:"requested_at"`
}

// SessionState is the unit of persistence for one agent task.
// The orchestrator owns the in-memory copy for the duration of a run;
// the session store owns the durable copy.
type SessionState struct {
	SessionID       string           `json:"session_id"`
	Messages        []Message        `json:"messages"`
	PendingApproval *PendingApproval `json:"pending_approval,omitempty"`
	IterationCount  int              `json:"iteration_count"`
	ConfidenceScore *float64         `json:"confidence_score,omitempty"`
	Status          SessionStatus    `json:"status"`
	StatusCause     string           `json:"status_cause,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewSessionState creates the initial state for a submitted task.
func NewSessionState(sessionID, prompt string) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		SessionID: sessionID,
		Messages: []Message{{
			Role:      RoleUser,
			Content:   prompt,
			Timestamp: now,
		}},
		IterationCount: 0,
		Status:         StatusRunning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Append adds a message to the session history. History is append-only
// during a run; messages are never reordered or rewritten.
func (s *SessionState) Append(m Message) {
	s.Messages = append(s.Messages, m)
}

// ApprovalDecision records a human verdict. Immutable once recorded.
type ApprovalDecision struct {
	SessionID string    `json:"session_id"`
	CallID    string    `json:"call_id"`
	Decision  Decision  `json:"decision"`
	Responder string    `json:"responder,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}
