// Package orchestrator implements the workflow state machine that drives a
// task through inference, tool execution, human approval and reasoning.
// Every transition is persisted before it is considered committed; on
// restart the durable store, not memory, is the source of truth.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agentloop/internal/domain"
	"agentloop/internal/firewall"
	"agentloop/internal/gate"
	"agentloop/internal/reasoning"
	store "agentloop/internal/repository"
	"agentloop/policy"
)

// InferenceBackend produces the next assistant turn for a message history.
// Both sides of the call use the loosely-typed boundary form; the
// orchestrator converts through the canonical Message model.
type InferenceBackend interface {
	Infer(ctx context.Context, history []map[string]any) (map[string]any, error)
}

// ToolExecutor runs tool calls and knows which tools need human consent.
type ToolExecutor interface {
	Execute(ctx context.Context, call domain.ToolCall) domain.ToolResult
	RequiresApproval(toolName string) bool
}

// Config carries the orchestration limits.
type Config struct {
	ConfidenceThreshold float64
	MaxIterations       int
	ApprovalTimeout     time.Duration
}

// Orchestrator owns the in-memory session state for the duration of a run
// and sequences all transitions. One execution flow runs per session_id;
// sessions are independent of each other.
type Orchestrator struct {
	store    store.SessionStore
	gate     *gate.Gate
	backend  InferenceBackend
	executor ToolExecutor
	firewall firewall.Firewall
	policy   *policy.Engine
	reasoner *reasoning.Stage
	cfg      Config
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sessionHandle
	wg       sync.WaitGroup
}

type sessionHandle struct {
	ctx    context.Context
	cancel context.CancelFunc

	// userCancelled distinguishes a caller cancel (session fails) from a
	// process shutdown (session stays resumable at its last checkpoint).
	userCancelled atomic.Bool
}

// New creates an orchestrator. firewall may be nil, in which case tool I/O
// passes through unfiltered.
func New(
	st store.SessionStore,
	g *gate.Gate,
	backend InferenceBackend,
	executor ToolExecutor,
	fw firewall.Firewall,
	engine *policy.Engine,
	reasoner *reasoning.Stage,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if fw == nil {
		fw = firewall.Passthrough{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:    st,
		gate:     g,
		backend:  backend,
		executor: executor,
		firewall: fw,
		policy:   engine,
		reasoner: reasoner,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*sessionHandle),
	}
}

// Start submits a new task and returns its session id. The initial state is
// persisted before the execution flow is launched; a persistence failure
// means no session exists.
func (o *Orchestrator) Start(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	sessionID := "sess_" + uuid.New().String()[:8]
	state := domain.NewSessionState(sessionID, prompt)
	if err := o.store.Save(ctx, state); err != nil {
		return "", fmt.Errorf("failed to persist new session: %w", err)
	}

	o.logger.Info("task submitted", zap.String("session_id", sessionID))
	o.launch(sessionID)
	return sessionID, nil
}

// GetState returns a read-only snapshot of the session state from the
// durable store.
func (o *Orchestrator) GetState(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	return o.store.Load(ctx, sessionID)
}

// Decide submits an approval decision for the session's pending tool call.
// A decision for a session that is not awaiting approval, or with a
// mismatched call_id, is rejected without mutating state.
func (o *Orchestrator) Decide(ctx context.Context, sessionID, callID string, decision domain.Decision, responder string) error {
	state, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if state.Status.Terminal() {
		return fmt.Errorf("%w: session %s is %s", domain.ErrSessionTerminal, sessionID, state.Status)
	}
	if state.Status != domain.StatusAwaitingApproval || state.PendingApproval == nil {
		return fmt.Errorf("%w: session %s has no pending approval", domain.ErrStaleDecision, sessionID)
	}
	if state.PendingApproval.Call.CallID != callID {
		return fmt.Errorf("%w: call %s is not pending for session %s", domain.ErrStaleDecision, callID, sessionID)
	}
	return o.gate.SubmitDecision(sessionID, callID, decision, responder)
}

// Cancel requests cooperative cancellation. The session transitions to
// Failed with a cancellation marker at the next safe point; terminal
// sessions are left untouched.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	state, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if state.Status.Terminal() {
		return fmt.Errorf("%w: session %s is %s", domain.ErrSessionTerminal, sessionID, state.Status)
	}

	o.mu.Lock()
	h, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if !ok {
		// No live flow (for example after a crash before resume); mark the
		// durable record directly.
		state.Status = domain.StatusFailed
		state.StatusCause = "cancelled by caller"
		state.PendingApproval = nil
		return o.store.Save(ctx, state)
	}

	h.userCancelled.Store(true)
	h.cancel()
	o.logger.Info("cancellation requested", zap.String("session_id", sessionID))
	return nil
}

// ResumeActive relaunches the execution flow for every non-terminal session
// in the store. Called once at process start; in-memory remnants are never
// trusted over the durable copy.
func (o *Orchestrator) ResumeActive(ctx context.Context) error {
	ids, err := o.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active sessions: %w", err)
	}
	for _, id := range ids {
		o.logger.Info("resuming session", zap.String("session_id", id))
		o.launch(id)
	}
	return nil
}

// Shutdown waits for running session flows to reach their next safe point,
// up to the context deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	for _, h := range o.sessions {
		h.cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) launch(sessionID string) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &sessionHandle{ctx: ctx, cancel: cancel}

	o.mu.Lock()
	if _, exists := o.sessions[sessionID]; exists {
		o.mu.Unlock()
		cancel()
		return
	}
	o.sessions[sessionID] = h
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.sessions, sessionID)
			o.mu.Unlock()
			cancel()
		}()
		o.runLoop(h, sessionID)
	}()
}

// cancelled reports whether cooperative cancellation was requested.
func cancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
