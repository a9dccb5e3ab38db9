package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ModelInfo is one entry of the built-in model catalog.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// fallbackModels is served when the upstream catalog is unreachable.
// Short names map to OpenRouter model identifiers.
var fallbackModels = []ModelInfo{
	{ID: "openai/gpt-4-turbo-preview", Name: "gpt-4-turbo"},
	{ID: "openai/gpt-4", Name: "gpt-4"},
	{ID: "openai/gpt-3.5-turbo", Name: "gpt-3.5"},
	{ID: "anthropic/claude-3-opus", Name: "claude-3-opus"},
	{ID: "anthropic/claude-3-sonnet", Name: "claude-3-sonnet"},
	{ID: "anthropic/claude-3-haiku", Name: "claude-3-haiku"},
	{ID: "google/gemini-pro", Name: "gemini-pro"},
	{ID: "mistralai/mixtral-8x7b", Name: "mixtral-8x7b"},
	{ID: "meta-llama/llama-3-70b", Name: "llama-3-70b"},
}

// ListModels fetches the upstream model catalog and passes it through
// verbatim. Any failure degrades to the built-in catalog, never an error;
// model listing is advisory.
func (c *Client) ListModels(ctx context.Context) []json.RawMessage {
	models, err := c.fetchModels(ctx)
	if err != nil {
		c.logger.Warn("model catalog fetch failed, serving built-in list", zap.Error(err))
		return fallbackCatalog()
	}
	return models
}

func (c *Client) fetchModels(ctx context.Context) ([]json.RawMessage, error) {
	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model catalog returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding model catalog: %w", err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("model catalog missing data field")
	}
	return payload.Data, nil
}

func fallbackCatalog() []json.RawMessage {
	out := make([]json.RawMessage, 0, len(fallbackModels))
	for _, m := range fallbackModels {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		out = append(out, data)
	}
	return out
}
