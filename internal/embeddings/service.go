// Package embeddings generates vector embeddings for text content.
//
// The service talks to any OpenAI-compatible embeddings endpoint, which
// covers OpenAI itself, OpenRouter, and local TEI servers.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Errors returned by this package.
var (
	ErrEmptyInput    = errors.New("empty or nil input texts")
	ErrInvalidConfig = errors.New("invalid embeddings configuration")
)

// Config holds connection settings for the embeddings endpoint.
type Config struct {
	// BaseURL is the API base, e.g. https://api.openai.com/v1.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// APIKey authenticates the requests. Optional for local servers.
	APIKey string
}

// Validate checks that required fields are set.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Service generates embeddings through an OpenAI-compatible API.
type Service struct {
	embedder *lcembeddings.EmbedderImpl
	config   Config
}

// NewService creates an embedding service for the configured endpoint.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// The client requires a token; local servers ignore it.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(apiKey),
		openai.WithModel(config.Model),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embeddings client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{embedder: embedder, config: config}, nil
}

// Model returns the configured embedding model name.
func (s *Service) Model() string {
	return s.config.Model
}

// EmbedDocuments generates one embedding per input text, in input order.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query string.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vector, nil
}
