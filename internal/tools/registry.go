// Package tools provides the tool execution collaborator: a registry of
// named executors with a per-tool approval requirement.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"agentloop/internal/domain"
)

// ExecutorFunc runs a tool against its arguments and returns its output.
type ExecutorFunc func(ctx context.Context, args map[string]any) (string, error)

type entry struct {
	exec             ExecutorFunc
	description      string
	requiresApproval bool
}

// Registry stores tool executors keyed by tool name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty tool executor registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register adds a new executor for a tool name. requiresApproval marks
// tools that must pass the human gate before execution.
func (r *Registry) Register(toolName, description string, requiresApproval bool, exec ExecutorFunc) error {
	if toolName == "" {
		return fmt.Errorf("tool name is required")
	}
	if exec == nil {
		return fmt.Errorf("executor is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[toolName]; exists {
		return fmt.Errorf("executor already registered for %s", toolName)
	}
	r.entries[toolName] = entry{exec: exec, description: description, requiresApproval: requiresApproval}
	return nil
}

// MustRegister adds an executor or panics.
func (r *Registry) MustRegister(toolName, description string, requiresApproval bool, exec ExecutorFunc) {
	if err := r.Register(toolName, description, requiresApproval, exec); err != nil {
		panic(err)
	}
}

// Execute runs the executor for the call. An unknown tool or executor error
// is returned as a failed result, not an error: a failed tool call is not
// fatal to the task.
func (r *Registry) Execute(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	r.mu.RLock()
	e, ok := r.entries[call.Name]
	r.mu.RUnlock()
	if !ok {
		return domain.ToolResult{Success: false, Error: fmt.Sprintf("no executor registered for %s", call.Name)}
	}

	output, err := e.exec(ctx, call.Arguments)
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}
	}
	return domain.ToolResult{Success: true, Output: output}
}

// RequiresApproval reports whether the named tool must pass the human gate.
// Unknown tools require approval.
func (r *Registry) RequiresApproval(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[toolName]
	if !ok {
		return true
	}
	return e.requiresApproval
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Description returns the registered description for a tool name.
func (r *Registry) Description(toolName string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[toolName].description
}
