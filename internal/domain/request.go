package domain

// StartTaskRequest is the body for submitting a new task.
type StartTaskRequest struct {
	Prompt string `json:"prompt"`
}

// StartTaskResponse is returned after a task has been accepted.
type StartTaskResponse struct {
	SessionID string `json:"session_id"`
}

// DecideRequest is the body for submitting an approval decision.
type DecideRequest struct {
	CallID    string   `json:"call_id"`
	Decision  Decision `json:"decision"`
	Responder string   `json:"responder,omitempty"`
}

// StoreStats summarizes the durable store for monitoring.
type StoreStats struct {
	Sessions int   `json:"sessions"`
	Active   int   `json:"active"`
	Bytes    int64 `json:"bytes"`
}
