// Package policy evaluates tool-call and tool-input policy with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Tool call decisions returned by EvaluateToolCall.
const (
	DecisionAllow           = "allow"
	DecisionRequireApproval = "require_approval"
	DecisionBlock           = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	decisionQuery rego.PreparedEvalQuery
	inputQuery    rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	decisionQuery, err := rego.New(
		rego.Query("data.agentloop.tool_decision"),
		rego.Module("agentloop.rego", policyContent),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare tool_decision query: %w", err)
	}

	inputQuery, err := rego.New(
		rego.Query("data.agentloop.input_allowed"),
		rego.Module("agentloop.rego", policyContent),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare input_allowed query: %w", err)
	}

	return &Engine{decisionQuery: decisionQuery, inputQuery: inputQuery}, nil
}

// EvaluateToolCall checks the tool policy. Input is a map with keys:
// tool_name, args, requires_approval. Returns allow, require_approval or
// block.
func (e *Engine) EvaluateToolCall(ctx context.Context, input any) (string, error) {
	results, err := e.decisionQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("policy returned unexpected type %T", results[0].Expressions[0].Value)
}

// EvaluateInput checks whether tool input text is allowed. Input is a map
// with keys: text, context.
func (e *Engine) EvaluateInput(ctx context.Context, input any) (bool, error) {
	results, err := e.inputQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return true, nil
	}
	if allowed, ok := results[0].Expressions[0].Value.(bool); ok {
		return allowed, nil
	}
	return false, fmt.Errorf("policy returned unexpected type %T", results[0].Expressions[0].Value)
}

// DefaultPolicy is the default policy content. Deployments replace it via
// configuration; the defaults defer approval routing to the tool registry
// and allow all input.
const DefaultPolicy = `
package agentloop

default tool_decision = "allow"

# The tool registry marks side-effecting tools for human approval.
tool_decision = "require_approval" {
	input.requires_approval
}

# Example: refuse raw shell access outright.
tool_decision = "block" {
	input.tool_name == "shell.exec"
}

default input_allowed = true
`
