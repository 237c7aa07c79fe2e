package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)
	return e
}

func TestDefaultAllows(t *testing.T) {
	e := newTestEngine(t)
	decision, err := e.EvaluateToolCall(context.Background(), map[string]any{
		"tool_name":         "current_time",
		"args":              map[string]any{},
		"requires_approval": false,
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)
}

func TestRegistryFlagRequiresApproval(t *testing.T) {
	e := newTestEngine(t)
	decision, err := e.EvaluateToolCall(context.Background(), map[string]any{
		"tool_name":         "list_files",
		"args":              map[string]any{"path": "/tmp"},
		"requires_approval": true,
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionRequireApproval, decision)
}

func TestShellExecBlocked(t *testing.T) {
	e := newTestEngine(t)
	decision, err := e.EvaluateToolCall(context.Background(), map[string]any{
		"tool_name":         "shell.exec",
		"args":              map[string]any{"cmd": "ls"},
		"requires_approval": false,
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, decision)
}

func TestCustomInputPolicy(t *testing.T) {
	const content = `
package agentloop

default tool_decision = "allow"

default input_allowed = true

input_allowed = false {
	contains(input.text, "drop table")
}
`
	e, err := NewEngine(context.Background(), content)
	require.NoError(t, err)

	ok, err := e.EvaluateInput(context.Background(), map[string]any{
		"text": "select 1", "context": "sql",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateInput(context.Background(), map[string]any{
		"text": "drop table users", "context": "sql",
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadPolicyContent(t *testing.T) {
	_, err := NewEngine(context.Background(), "package agentloop\n\ntool_decision = {")
	assert.Error(t, err)
}
