package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"agentloop/internal/domain"
	"agentloop/internal/message"
	"agentloop/policy"
)

// runLoop drives one session from its persisted status to a terminal one.
// Each step mutates the state, persists it, and yields back to the loop; a
// step is committed only once the save succeeds.
func (o *Orchestrator) runLoop(h *sessionHandle, sessionID string) {
	ctx := h.ctx
	log := o.logger.With(zap.String("session_id", sessionID))

	for {
		state, err := o.store.Load(ctx, sessionID)
		if err != nil {
			log.Error("failed to load session state", zap.Error(err))
			return
		}
		if state.Status.Terminal() {
			return
		}

		if cancelled(ctx) {
			// A caller cancel fails the session; a shutdown leaves it at the
			// last persisted checkpoint for the next process to resume.
			if h.userCancelled.Load() {
				o.failSession(state, "cancelled by caller")
			} else {
				log.Info("suspending session for shutdown", zap.String("status", string(state.Status)))
			}
			return
		}

		switch state.Status {
		case domain.StatusRunning:
			err = o.stepRunning(ctx, state)
		case domain.StatusAwaitingApproval:
			err = o.stepAwaitingApproval(ctx, state)
		case domain.StatusReasoning:
			err = o.stepReasoning(ctx, state)
		default:
			log.Error("unknown session status", zap.String("status", string(state.Status)))
			return
		}
		if err != nil {
			if cancelled(ctx) {
				if h.userCancelled.Load() {
					o.failSession(state, "cancelled by caller")
				} else {
					log.Info("suspending session for shutdown", zap.String("status", string(state.Status)))
				}
				return
			}
			log.Error("session step failed", zap.String("status", string(state.Status)), zap.Error(err))
			o.failSession(state, err.Error())
			return
		}

		if err := o.store.Save(ctx, state); err != nil {
			// The transition did not commit. Best effort to leave a durable
			// terminal marker; if even that fails the previous persisted
			// state remains authoritative for a later resume.
			log.Error("failed to persist session state", zap.Error(err))
			o.failSession(state, fmt.Sprintf("persistence failure: %v", err))
			return
		}
		log.Debug("session transition committed",
			zap.String("status", string(state.Status)),
			zap.Int("iteration", state.IterationCount))
	}
}

// failSession forces a terminal Failed record. Used for unrecoverable step
// errors and cooperative cancellation.
func (o *Orchestrator) failSession(state *domain.SessionState, cause string) {
	state.Status = domain.StatusFailed
	state.StatusCause = cause
	state.PendingApproval = nil
	o.gate.Drop(state.SessionID)

	// Detached context: the session context may already be cancelled.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.Save(saveCtx, state); err != nil {
		o.logger.Error("failed to persist terminal state",
			zap.String("session_id", state.SessionID),
			zap.Error(err))
	}
}

// stepRunning performs one inference pass and dispatches any tool calls the
// model requested. Calls run in request order; the first call that needs
// human consent parks the session at the approval gate, and calls after it
// are answered with a synthetic "not executed" result so the history stays
// balanced.
func (o *Orchestrator) stepRunning(ctx context.Context, state *domain.SessionState) error {
	state.IterationCount++

	raw, err := o.backend.Infer(ctx, message.DenormalizeAll(state.Messages))
	if err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}
	reply, err := message.Normalize(raw)
	if err != nil {
		return fmt.Errorf("malformed inference output: %w", err)
	}
	state.Append(reply)

	if len(reply.ToolCalls) == 0 {
		state.Status = domain.StatusReasoning
		return nil
	}

	for i, call := range reply.ToolCalls {
		decision, err := o.evaluateCall(ctx, call)
		if err != nil {
			return fmt.Errorf("policy evaluation failed for tool %s: %w", call.Name, err)
		}

		switch decision {
		case policy.DecisionBlock:
			state.Append(toolMessage(call.CallID, fmt.Sprintf("Error: tool %s blocked by policy", call.Name)))

		case policy.DecisionRequireApproval:
			state.PendingApproval = &domain.PendingApproval{
				Call:        call,
				RequestedAt: time.Now().UTC(),
			}
			state.Status = domain.StatusAwaitingApproval
			// Register before the state is persisted: once a caller can see
			// AwaitingApproval, the gate must accept their decision.
			o.gate.RequestApproval(state.SessionID, call)
			// Later calls in the same reply are never executed; close them
			// out so every tool_call_id has a response.
			for _, rest := range reply.ToolCalls[i+1:] {
				state.Append(toolMessage(rest.CallID, "Error: not executed, a prior call in this turn required approval"))
			}
			return nil

		default:
			state.Append(o.executeCall(ctx, call))
		}
	}

	state.Status = domain.StatusReasoning
	return nil
}

// stepAwaitingApproval registers the persisted pending call with the gate
// and blocks for a decision. The approval window is measured from when the
// call first became pending, so a restart does not extend it.
func (o *Orchestrator) stepAwaitingApproval(ctx context.Context, state *domain.SessionState) error {
	pending := state.PendingApproval
	if pending == nil {
		return fmt.Errorf("session %s awaiting approval with no pending call", state.SessionID)
	}

	remaining := o.cfg.ApprovalTimeout - time.Since(pending.RequestedAt)
	if remaining <= 0 {
		o.timeOut(state)
		return nil
	}

	// Normally the entry was registered before the AwaitingApproval state
	// was persisted; registering again would discard a decision already
	// buffered there. Only a resumed session has no entry yet.
	if _, ok := o.gate.Pending(state.SessionID); !ok {
		o.gate.RequestApproval(state.SessionID, pending.Call)
	}
	decision, err := o.gate.WaitForDecision(ctx, state.SessionID, remaining)
	if err != nil {
		if errors.Is(err, domain.ErrApprovalTimeout) {
			o.timeOut(state)
			return nil
		}
		return err
	}

	o.logger.Info("pending call resolved",
		zap.String("session_id", state.SessionID),
		zap.String("call_id", pending.Call.CallID),
		zap.String("decision", string(decision.Decision)))

	switch decision.Decision {
	case domain.DecisionApprove:
		state.Append(o.executeCall(ctx, pending.Call))
	case domain.DecisionReject:
		state.Append(toolMessage(pending.Call.CallID,
			fmt.Sprintf("Tool call %s was rejected by %s and was not executed", pending.Call.Name, responderOrDefault(decision.Responder))))
	}

	state.PendingApproval = nil
	state.Status = domain.StatusReasoning
	return nil
}

func (o *Orchestrator) timeOut(state *domain.SessionState) {
	o.logger.Warn("approval window elapsed",
		zap.String("session_id", state.SessionID),
		zap.String("call_id", state.PendingApproval.Call.CallID))
	state.Append(toolMessage(state.PendingApproval.Call.CallID, "Error: approval window elapsed, tool call not executed"))
	state.PendingApproval = nil
	state.Status = domain.StatusTimedOut
	state.StatusCause = "approval window elapsed"
}

// stepReasoning scores progress and either loops back for another inference
// pass or finishes the run with the final confidence recorded.
func (o *Orchestrator) stepReasoning(ctx context.Context, state *domain.SessionState) error {
	assessment := o.reasoner.Assess(ctx, state.Messages, state.IterationCount)

	score := assessment.Confidence
	state.ConfidenceScore = &score
	state.Append(domain.Message{
		Role:      domain.RoleSystem,
		Content:   "Reflection: " + assessment.Rationale,
		Timestamp: time.Now().UTC(),
	})

	if assessment.ShouldContinue {
		state.Status = domain.StatusRunning
		return nil
	}

	state.Status = domain.StatusCompleted
	if state.IterationCount >= o.cfg.MaxIterations && score < o.cfg.ConfidenceThreshold {
		state.StatusCause = "iteration budget exhausted"
	}
	return nil
}

// evaluateCall asks the policy engine what to do with a tool call. Without
// an engine the executor's own approval flag decides.
func (o *Orchestrator) evaluateCall(ctx context.Context, call domain.ToolCall) (string, error) {
	requires := o.executor.RequiresApproval(call.Name)
	if o.policy == nil {
		if requires {
			return policy.DecisionRequireApproval, nil
		}
		return policy.DecisionAllow, nil
	}
	return o.policy.EvaluateToolCall(ctx, map[string]any{
		"tool_name":         call.Name,
		"args":              call.Arguments,
		"requires_approval": requires,
	})
}

// executeCall runs one tool call through the firewall and returns its
// result as a tool message. Execution failures become error results in the
// history rather than run failures.
func (o *Orchestrator) executeCall(ctx context.Context, call domain.ToolCall) domain.Message {
	if ok, reason := o.firewall.ValidateInput(ctx, renderArguments(call.Arguments), "tool_input"); !ok {
		return toolMessage(call.CallID, fmt.Sprintf("Error: tool input rejected: %s", reason))
	}

	result := o.executor.Execute(ctx, call)
	if !result.Success {
		return toolMessage(call.CallID, "Error: "+result.Error)
	}
	return toolMessage(call.CallID, o.firewall.FilterOutput(result.Output))
}

func toolMessage(callID, content string) domain.Message {
	return domain.Message{
		Role:       domain.RoleTool,
		Content:    content,
		ToolCallID: callID,
		Timestamp:  time.Now().UTC(),
	}
}

func renderArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

func responderOrDefault(responder string) string {
	if responder == "" {
		return "the reviewer"
	}
	return responder
}
