package llm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/randalmurphal/turngraph/pkg/turngraph/errors"
	"github.com/randalmurphal/turngraph/pkg/turngraph/template"
)

// Prompt is a two-part chat prompt. Both parts may contain {name}
// placeholders filled from the variables passed to Invoke.
type Prompt struct {
	// Name identifies the prompt in logs, e.g. "general_router".
	Name   string
	System string
	// User is usually "{question}".
	User string
	// Temperature is nil for the provider default.
	Temperature *float64
	MaxTokens   int
}

// Render fills the placeholders. Every placeholder must have a value.
func (p Prompt) Render(vars map[string]any) (system, user string, err error) {
	system, err = strictExpander.Expand(p.System, vars)
	if err != nil {
		return "", "", fmt.Errorf("render %s system prompt: %w", p.name(), err)
	}
	user, err = strictExpander.Expand(p.User, vars)
	if err != nil {
		return "", "", fmt.Errorf("render %s user prompt: %w", p.name(), err)
	}
	return system, user, nil
}

// Check returns an *template.UndefinedVariableError naming the
// placeholders of p that are not among vars.
func (p Prompt) Check(vars ...string) error {
	var missing []string
	for _, name := range template.Placeholders(p.System + "\n" + p.User) {
		if !slices.Contains(vars, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s prompt: %w", p.name(), &template.UndefinedVariableError{Names: missing})
	}
	return nil
}

func (p Prompt) name() string {
	if p.Name == "" {
		return "prompt"
	}
	return p.Name
}

var strictExpander = template.NewExpander(template.WithMissingAction(template.MissingError))

// Invoker calls a Client with a fixed model and retry policy.
//
// The zero Retry value means a single attempt; use errors.DefaultRetry for
// the standard backoff.
type Invoker struct {
	Client Client
	// Model overrides the client default when non-empty.
	Model  string
	Retry  errors.RetryConfig
	Logger *slog.Logger
}

// Invoke renders p with vars, calls the client and returns the reply text.
//
// Transient failures (timeouts, 429, 5xx, connection errors) are retried
// according to inv.Retry. The returned error wraps the last attempt's error,
// so errors.Is(err, errors.ErrUpstreamTimeout) and friends still work.
func (inv Invoker) Invoke(ctx context.Context, p Prompt, vars map[string]any) (string, error) {
	resp, err := inv.complete(ctx, p, vars)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (inv Invoker) complete(ctx context.Context, p Prompt, vars map[string]any) (*CompletionResponse, error) {
	if inv.Client == nil {
		return nil, fmt.Errorf("invoke %s: nil client", p.name())
	}

	system, user, err := p.Render(vars)
	if err != nil {
		return nil, err
	}

	req := CompletionRequest{
		SystemPrompt: system,
		Model:        inv.Model,
		MaxTokens:    p.MaxTokens,
		Temperature:  p.Temperature,
	}
	if user != "" {
		req.Messages = []Message{{Role: RoleUser, Content: user}}
	}

	logger := inv.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := inv.Retry
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		logger.Warn("llm call failed, retrying",
			slog.String("prompt", p.name()),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	res := errors.WithRetryContext(ctx, cfg, func(ctx context.Context) (*CompletionResponse, error) {
		return inv.Client.Complete(ctx, req)
	})
	if res.Err != nil {
		return nil, fmt.Errorf("invoke %s: %w", p.name(), res.Err)
	}

	logger.Debug("llm call completed",
		slog.String("prompt", p.name()),
		slog.String("model", res.Value.Model),
		slog.Int("attempts", res.Attempts),
		slog.Int("total_tokens", res.Value.Usage.TotalTokens),
		slog.Duration("duration", res.Duration),
	)
	return res.Value, nil
}

// Invoke calls client once per attempt with errors.DefaultRetry.
func Invoke(ctx context.Context, client Client, p Prompt, vars map[string]any) (string, error) {
	return Invoker{Client: client, Retry: errors.DefaultRetry}.Invoke(ctx, p, vars)
}

// normalizeReply trims whitespace, code fences, quotes and trailing
// punctuation from a short classifier reply.
func normalizeReply(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'")
	s = strings.TrimRight(s, ".!")
	return strings.ToLower(strings.TrimSpace(s))
}
