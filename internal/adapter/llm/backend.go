package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Backend adapts a chat completion client to the orchestrator's inference
// boundary: it accepts and returns the loosely-typed message form that the
// canonical converter understands. No other component touches wire shapes.
type Backend struct {
	client LLMClient
	model  string
	tools  []Tool
}

// NewBackend creates an inference backend for the given model. tools is the
// tool surface advertised to the model on every call.
func NewBackend(client LLMClient, model string, tools []Tool) *Backend {
	return &Backend{client: client, model: model, tools: tools}
}

// Infer produces the next assistant turn for the given history.
func (b *Backend) Infer(ctx context.Context, history []map[string]any) (map[string]any, error) {
	req := &ChatCompletionRequest{
		Model:    b.model,
		Messages: make([]ChatMessage, 0, len(history)),
		Tools:    b.tools,
	}

	for _, raw := range history {
		msg := ChatMessage{}
		if v, ok := raw["role"].(string); ok {
			msg.Role = v
		}
		if v, ok := raw["content"].(string); ok {
			msg.Content = v
		}
		if v, ok := raw["tool_call_id"].(string); ok {
			msg.ToolCallID = v
		}
		if calls, ok := raw["tool_calls"].([]any); ok {
			for _, item := range calls {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				call := ToolCall{Type: "function"}
				if id, ok := m["call_id"].(string); ok {
					call.ID = id
				}
				if name, ok := m["name"].(string); ok {
					call.Function.Name = name
				}
				if args, ok := m["arguments"].(map[string]any); ok {
					data, err := json.Marshal(args)
					if err != nil {
						return nil, fmt.Errorf("failed to encode tool arguments: %w", err)
					}
					call.Function.Arguments = string(data)
				}
				msg.ToolCalls = append(msg.ToolCalls, call)
			}
		}
		req.Messages = append(req.Messages, msg)
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, fmt.Errorf("empty completion response")
	}

	reply := resp.Choices[0].Message
	raw := map[string]any{
		"role":    reply.Role,
		"content": reply.Content,
	}
	if len(reply.ToolCalls) > 0 {
		calls := make([]any, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			entry := map[string]any{
				"call_id": call.ID,
				"name":    call.Function.Name,
			}
			if call.Function.Arguments != "" {
				var args map[string]any
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					return nil, fmt.Errorf("failed to decode arguments for tool %s: %w", call.Function.Name, err)
				}
				entry["arguments"] = args
			}
			calls = append(calls, entry)
		}
		raw["tool_calls"] = calls
	}
	return raw, nil
}

// Generate runs a single-prompt completion. Used by the reasoning stage.
func (b *Backend) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, &ChatCompletionRequest{
		Model: b.model,
		Messages: []ChatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
