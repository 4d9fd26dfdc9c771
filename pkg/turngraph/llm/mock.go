package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests.
//
// By default it returns the same response for every call. WithResponses
// cycles through a list; WithCompleteFunc replaces the behavior entirely.
// Every request is recorded in Calls.
type MockClient struct {
	mu sync.Mutex

	response     string
	responses    []string
	index        int
	err          error
	completeFunc func(context.Context, CompletionRequest) (*CompletionResponse, error)

	// Calls holds every request received, in order.
	Calls []CompletionRequest
}

// NewMockClient creates a mock that always answers response.
func NewMockClient(response string) *MockClient {
	return &MockClient{response: response}
}

// WithResponses makes the mock cycle through responses.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	m.index = 0
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithCompleteFunc delegates every call to fn.
func (m *MockClient) WithCompleteFunc(fn func(context.Context, CompletionRequest) (*CompletionResponse, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeFunc = fn
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn := m.completeFunc
	err := m.err
	content := m.response
	if len(m.responses) > 0 {
		content = m.responses[m.index%len(m.responses)]
		m.index++
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	in := approxTokens(req.SystemPrompt)
	for _, msg := range req.Messages {
		in += approxTokens(msg.Content)
	}
	if in == 0 {
		in = 1
	}
	out := approxTokens(content)
	if out == 0 {
		out = 1
	}

	return &CompletionResponse{
		Content:      content,
		Model:        req.Model,
		FinishReason: "stop",
		Usage: TokenUsage{
			InputTokens:  in,
			OutputTokens: out,
			TotalTokens:  in + out,
		},
	}, nil
}

// CallCount returns the number of calls made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil.
func (m *MockClient) LastCall() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	last := m.Calls[len(m.Calls)-1]
	return &last
}

// Reset clears recorded calls and rewinds WithResponses.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.index = 0
}

// roughly four characters per token
func approxTokens(s string) int {
	return (len(s) + 3) / 4
}
