package llm

import "time"

// Role is who sent a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single chat completion call. SystemPrompt, when
// set, is sent ahead of Messages.
type CompletionRequest struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`

	// Model overrides the client default when non-empty.
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	// Temperature is left to the provider when nil. Classifiers pass 0.
	Temperature *float64 `json:"temperature,omitempty"`
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	FinishReason string        `json:"finish_reason"`
	Usage        TokenUsage    `json:"usage"`
	Duration     time.Duration `json:"duration"`
}

// TokenUsage is the provider-reported token count of one call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Float returns &v, for CompletionRequest.Temperature.
func Float(v float64) *float64 {
	return &v
}
