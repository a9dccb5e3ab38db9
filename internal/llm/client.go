// Package llm streams chat completions from an OpenAI-compatible endpoint,
// OpenRouter by default.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Errors returned by this package.
var (
	ErrInvalidConfig = errors.New("invalid llm configuration")
	ErrEmptyMessages = errors.New("empty or nil messages")
)

// Message roles on the chat wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds connection settings for the chat endpoint.
type Config struct {
	// BaseURL is the API base, e.g. https://openrouter.ai/api/v1.
	BaseURL string

	// APIKey authenticates the requests.
	APIKey string

	// DefaultModel is used when a request names no model.
	DefaultModel string

	// SiteURL is sent as the HTTP-Referer header. OpenRouter uses it for
	// app attribution.
	SiteURL string

	// Temperature for completions.
	Temperature float64
}

// Validate checks that required fields are set.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("%w: default model required", ErrInvalidConfig)
	}
	return nil
}

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	llm        *openai.LLM
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a chat client for the configured endpoint.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{
		Transport: &attributionTransport{
			base:    http.DefaultTransport,
			referer: config.SiteURL,
		},
	}

	llmClient, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.DefaultModel),
		openai.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("creating chat client: %w", err)
	}

	return &Client{
		llm:        llmClient,
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// DefaultModel returns the configured fallback model.
func (c *Client) DefaultModel() string {
	return c.config.DefaultModel
}

// Stream generates a completion, delivering content deltas to fn as they
// arrive. An empty model selects the configured default. Stream returns
// when the completion finishes or fn returns an error.
func (c *Client) Stream(ctx context.Context, messages []Message, model string, fn func(chunk string) error) error {
	content, err := toMessageContent(messages)
	if err != nil {
		return err
	}

	_, err = c.llm.GenerateContent(ctx, content,
		llms.WithModel(c.resolveModel(model)),
		llms.WithTemperature(c.config.Temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return fn(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("streaming completion: %w", err)
	}
	return nil
}

// Complete generates a full completion without streaming.
func (c *Client) Complete(ctx context.Context, messages []Message, model string) (string, error) {
	content, err := toMessageContent(messages)
	if err != nil {
		return "", err
	}

	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithModel(c.resolveModel(model)),
		llms.WithTemperature(c.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func (c *Client) resolveModel(model string) string {
	if strings.TrimSpace(model) == "" {
		return c.config.DefaultModel
	}
	return model
}

// toMessageContent maps wire messages onto langchaingo message content.
func toMessageContent(messages []Message) ([]llms.MessageContent, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyMessages
	}

	out := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		var role llms.ChatMessageType
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		case RoleUser:
			role = llms.ChatMessageTypeHuman
		default:
			return nil, fmt.Errorf("unknown message role %q", m.Role)
		}
		out[i] = llms.TextParts(role, m.Content)
	}
	return out, nil
}

// attributionTransport adds OpenRouter app attribution headers.
type attributionTransport struct {
	base    http.RoundTripper
	referer string
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	req.Header.Set("X-Title", "ragd")
	return t.base.RoundTrip(req)
}
