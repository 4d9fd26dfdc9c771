package llm

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/randalmurphal/turngraph/pkg/turngraph/errors"
)

// DefaultModel is used when neither the request nor the client names one.
const DefaultModel = "gpt-oss:20b"

// OpenAIClient implements Client against an OpenAI-compatible chat
// completions endpoint.
type OpenAIClient struct {
	client  openai.Client
	model   string
	baseURL string
	timeout time.Duration
}

type openAIConfig struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*openAIConfig)

// WithAPIKey sets the bearer token. Ollama accepts any non-empty key;
// an empty key keeps the default.
func WithAPIKey(key string) OpenAIOption {
	return func(c *openAIConfig) {
		if key != "" {
			c.apiKey = key
		}
	}
}

// WithBaseURL points the client at a different endpoint, e.g.
// "http://localhost:11434/v1" for Ollama.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithModel sets the default model name. Empty keeps DefaultModel.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout bounds each request. Zero leaves only the context deadline.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) { c.timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// NewOpenAIClient creates a client. The SDK's own retries are disabled;
// retry policy belongs to Invoke.
func NewOpenAIClient(opts ...OpenAIOption) *OpenAIClient {
	cfg := openAIConfig{
		apiKey: "ollama",
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientOpts := []openaiopt.RequestOption{
		openaiopt.WithAPIKey(cfg.apiKey),
		openaiopt.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, openaiopt.WithHTTPClient(cfg.httpClient))
	}

	return &OpenAIClient{
		client:  openai.NewClient(clientOpts...),
		model:   cfg.model,
		baseURL: cfg.baseURL,
		timeout: cfg.timeout,
	}
}

// Model returns the default model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: convertMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.upstreamError(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return nil, &errors.UpstreamError{
			Service: "llm",
			Op:      "complete",
			Err:     &errors.OutputError{Message: "response has no choices"},
		}
	}

	choice := completion.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        completion.Model,
		FinishReason: choice.FinishReason,
		Duration:     time.Since(start),
		Usage: TokenUsage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}, nil
}

func (c *OpenAIClient) upstreamError(ctx context.Context, err error) error {
	cause := err

	var apiErr *openai.Error
	switch {
	case stderrors.As(err, &apiErr):
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		cause = &errors.HTTPError{
			StatusCode: apiErr.StatusCode,
			Message:    msg,
			Endpoint:   c.baseURL,
		}
	case stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		d := "deadline"
		if c.timeout > 0 {
			d = c.timeout.String()
		}
		cause = &errors.TimeoutError{Operation: "chat completion", Duration: d}
	}

	return &errors.UpstreamError{Service: "llm", Op: "complete", Err: cause}
}

func convertMessages(req CompletionRequest) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, systemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, systemMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		default:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		}
	}
	return out
}

func systemMessage(content string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfSystem: &openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{
				OfString: openai.String(content),
			},
		},
	}
}
