package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbeddingsServer serves an OpenAI-compatible /embeddings endpoint that
// returns a fixed-dimension vector per input, derived from the input index.
func newEmbeddingsServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string  `json:"object"`
			Data   []datum `json:"data"`
			Model  string  `json:"model"`
		}{Object: "list", Model: req.Model}

		for i := range req.Input {
			resp.Data = append(resp.Data, datum{
				Object:    "embedding",
				Embedding: []float32{float32(i), 0.5, 1.0},
				Index:     i,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestNewService_ConfigValidation(t *testing.T) {
	_, err := NewService(Config{Model: "m"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewService(Config{BaseURL: "http://localhost:8080/v1"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEmbedDocuments(t *testing.T) {
	srv := newEmbeddingsServer(t)
	defer srv.Close()

	svc, err := NewService(Config{
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
	})
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"first chunk", "second chunk"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 0.5, 1.0}, vectors[0])
	assert.Equal(t, []float32{1, 0.5, 1.0}, vectors[1])
}

func TestEmbedDocuments_EmptyInput(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:9", Model: "m"})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedQuery(t *testing.T) {
	srv := newEmbeddingsServer(t)
	defer srv.Close()

	svc, err := NewService(Config{
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
	})
	require.NoError(t, err)

	vector, err := svc.EmbedQuery(context.Background(), "what is the refund policy")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5, 1.0}, vector)
}

func TestEmbedQuery_EmptyInput(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:9", Model: "m"})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestServiceModel(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:9", Model: "bge-small"})
	require.NoError(t, err)
	assert.Equal(t, "bge-small", svc.Model())
}
