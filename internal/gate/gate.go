// Package gate implements the approval rendezvous point. The orchestrator
// suspends a session here until a human decision arrives or the approval
// window elapses; decisions for a call that is no longer pending are
// rejected as stale.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"agentloop/internal/domain"
)

type waiter struct {
	callID string
	ch     chan domain.ApprovalDecision

	// decided marks that a verdict was delivered but not yet consumed by
	// the waiting session; any further decision for the call is stale.
	decided bool
}

// Gate tracks at most one pending approval per session.
type Gate struct {
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*waiter
}

// New creates an approval gate.
func New(logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		logger:  logger,
		pending: make(map[string]*waiter),
	}
}

// RequestApproval records the pending call for the session and returns
// immediately. A session has at most one pending approval: requesting again
// replaces the previous entry, which makes re-registration after a process
// restart safe.
func (g *Gate) RequestApproval(sessionID string, call domain.ToolCall) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending[sessionID] = &waiter{
		callID: call.CallID,
		ch:     make(chan domain.ApprovalDecision, 1),
	}
	g.logger.Info("approval requested",
		zap.String("session_id", sessionID),
		zap.String("call_id", call.CallID),
		zap.String("tool", call.Name))
}

// SubmitDecision delivers a decision to the waiting session. A decision for
// a session with nothing pending, with a mismatched call_id, or for a call
// already decided fails with domain.ErrStaleDecision and changes nothing.
func (g *Gate) SubmitDecision(sessionID, callID string, decision domain.Decision, responder string) error {
	if !decision.Valid() {
		return fmt.Errorf("unknown decision %q", decision)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	w, ok := g.pending[sessionID]
	if !ok {
		return fmt.Errorf("%w: no pending approval for session %s", domain.ErrStaleDecision, sessionID)
	}
	if w.callID != callID {
		return fmt.Errorf("%w: call %s is not pending for session %s", domain.ErrStaleDecision, callID, sessionID)
	}
	if w.decided {
		return fmt.Errorf("%w: call %s already decided for session %s", domain.ErrStaleDecision, callID, sessionID)
	}

	w.decided = true
	w.ch <- domain.ApprovalDecision{
		SessionID: sessionID,
		CallID:    callID,
		Decision:  decision,
		Responder: responder,
		DecidedAt: time.Now().UTC(),
	}

	g.logger.Info("approval decided",
		zap.String("session_id", sessionID),
		zap.String("call_id", callID),
		zap.String("decision", string(decision)))
	return nil
}

// WaitForDecision blocks until a decision arrives, the timeout elapses, or
// ctx is cancelled. On timeout it returns domain.ErrApprovalTimeout and
// clears the pending entry so late decisions are rejected as stale.
func (g *Gate) WaitForDecision(ctx context.Context, sessionID string, timeout time.Duration) (domain.ApprovalDecision, error) {
	g.mu.Lock()
	w, ok := g.pending[sessionID]
	g.mu.Unlock()
	if !ok {
		return domain.ApprovalDecision{}, fmt.Errorf("no pending approval for session %s", sessionID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case dec := <-w.ch:
		// The entry persists until the decision is consumed here so a
		// verdict delivered before this select began is not lost.
		g.clear(sessionID, w)
		return dec, nil
	case <-timer.C:
		g.clear(sessionID, w)
		return domain.ApprovalDecision{}, domain.ErrApprovalTimeout
	case <-ctx.Done():
		g.clear(sessionID, w)
		return domain.ApprovalDecision{}, ctx.Err()
	}
}

// Drop removes the session's pending entry, if any. Used when a session
// leaves the approval state through failure rather than a decision.
func (g *Gate) Drop(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, sessionID)
}

// Pending returns the call_id currently awaiting a decision, if any.
func (g *Gate) Pending(sessionID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.pending[sessionID]
	if !ok {
		return "", false
	}
	return w.callID, true
}

func (g *Gate) clear(sessionID string, w *waiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.pending[sessionID]; ok && cur == w {
		delete(g.pending, sessionID)
	}
}
