package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentloop/internal/domain"
)

func TestRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("echo", "repeat the input", false,
		func(_ context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return text, nil
		}))

	res := r.Execute(context.Background(), domain.ToolCall{
		CallID: "tc_1", Name: "echo", Arguments: map[string]any{"text": "hello"},
	})
	assert.True(t, res.Success)
	assert.Equal(t, "hello", res.Output)
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, map[string]any) (string, error) { return "", nil }
	require.NoError(t, r.Register("echo", "", false, noop))
	assert.Error(t, r.Register("echo", "", false, noop))
}

func TestExecuteUnknownToolFailsSoftly(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), domain.ToolCall{CallID: "tc_1", Name: "missing"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no executor registered")
}

func TestExecutorErrorFailsSoftly(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("broken", "", false, func(context.Context, map[string]any) (string, error) {
		return "", fmt.Errorf("disk on fire")
	})
	res := r.Execute(context.Background(), domain.ToolCall{Name: "broken"})
	assert.False(t, res.Success)
	assert.Equal(t, "disk on fire", res.Error)
}

func TestRequiresApproval(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, map[string]any) (string, error) { return "", nil }
	r.MustRegister("safe", "", false, noop)
	r.MustRegister("risky", "", true, noop)

	assert.False(t, r.RequiresApproval("safe"))
	assert.True(t, r.RequiresApproval("risky"))
	// Unknown tools are conservative.
	assert.True(t, r.RequiresApproval("unheard_of"))
}

func TestBuiltins(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)
	assert.Equal(t, []string{"current_time", "list_files", "read_file"}, r.Names())
	assert.True(t, r.RequiresApproval("list_files"))
	assert.False(t, r.RequiresApproval("current_time"))

	res := r.Execute(context.Background(), domain.ToolCall{Name: "list_files", Arguments: map[string]any{"path": t.TempDir()}})
	assert.True(t, res.Success)

	res = r.Execute(context.Background(), domain.ToolCall{Name: "list_files"})
	assert.False(t, res.Success)
}
