// Package llm provides the inference backend adapter.
package llm

import "context"

// LLMClient defines the interface for chat completion backends.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// Ensure implementations satisfy the interface.
var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*MockClient)(nil)
)
