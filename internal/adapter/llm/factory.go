package llm

import (
	"os"
	"time"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "AGENTLOOP_MODE"
	// ModeMock indicates the mock backend should be used.
	ModeMock = "MOCK"
)

// NewLLMClient creates an LLM client based on the AGENTLOOP_MODE environment
// variable. If AGENTLOOP_MODE=MOCK, returns a MockClient; otherwise returns
// a real Client.
func NewLLMClient(baseURL, apiKey string, timeout time.Duration) LLMClient {
	if os.Getenv(EnvMode) == ModeMock {
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
