// Package firewall defines the I/O boundary applied around every tool
// execution. The pattern rules themselves live in policy content; this
// package only carries the contract and the resource limits.
package firewall

import (
	"context"
	"fmt"

	"agentloop/policy"
)

// Firewall validates tool input and filters tool output.
type Firewall interface {
	// ValidateInput reports whether the input text may reach a tool.
	// boundary names the crossing point (usually the tool name).
	ValidateInput(ctx context.Context, text, boundary string) (bool, string)

	// FilterOutput sanitizes tool output before it enters history.
	FilterOutput(text string) string
}

// Passthrough performs no validation or filtering.
type Passthrough struct{}

func (Passthrough) ValidateInput(context.Context, string, string) (bool, string) { return true, "" }
func (Passthrough) FilterOutput(text string) string                              { return text }

// PolicyFirewall delegates input validation to the policy engine and caps
// output size.
type PolicyFirewall struct {
	engine       *policy.Engine
	maxOutputLen int
}

// New creates a policy-backed firewall. maxOutputLen bounds filtered output
// length (zero disables truncation).
func New(engine *policy.Engine, maxOutputLen int) *PolicyFirewall {
	return &PolicyFirewall{engine: engine, maxOutputLen: maxOutputLen}
}

// ValidateInput evaluates the input policy. An evaluation error fails
// closed.
func (f *PolicyFirewall) ValidateInput(ctx context.Context, text, boundary string) (bool, string) {
	allowed, err := f.engine.EvaluateInput(ctx, map[string]any{
		"text":    text,
		"context": boundary,
	})
	if err != nil {
		return false, fmt.Sprintf("input policy evaluation failed: %v", err)
	}
	if !allowed {
		return false, "input rejected by policy"
	}
	return true, ""
}

// FilterOutput truncates oversized output.
func (f *PolicyFirewall) FilterOutput(text string) string {
	if f.maxOutputLen > 0 && len(text) > f.maxOutputLen {
		return text[:f.maxOutputLen] + "\n[output truncated]"
	}
	return text
}
