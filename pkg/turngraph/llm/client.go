// Package llm provides the chat-completion client used by node handlers.
//
// Client is the single seam between nodes and a model provider.
// OpenAIClient talks to any OpenAI-compatible endpoint (OpenAI itself, or a
// local Ollama server via its /v1 API). MockClient serves tests.
//
// Invoke renders a Prompt with template variables, calls the client with
// retry on transient failures, and returns the reply text. Classify does the
// same for single-label classifier prompts.
package llm

import "context"

// Client completes chat conversations.
//
// Implementations must be safe for concurrent use; one client serves every
// turn running on a compiled graph.
type Client interface {
	// Complete sends the request and returns the full reply.
	// Failures should be *errors.UpstreamError so callers can tell
	// timeouts from unavailability.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
