package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		DefaultModel: "openai/gpt-3.5-turbo",
		SiteURL:      "http://localhost:3001",
		Temperature:  0.7,
	}
}

// chatRequest is the slice of the wire request the tests inspect.
type chatRequest struct {
	Model    string    `json:"model"`
	Stream   bool      `json:"stream"`
	Messages []Message `json:"messages"`
}

// newChatServer serves /chat/completions, streaming the given chunks when
// the request asks for a stream and returning them joined otherwise. The
// last request seen is captured into got.
func newChatServer(t *testing.T, chunks []string, got *chatRequest) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))

		if got.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, chunk := range chunks {
				delta, err := json.Marshal(map[string]any{
					"id":      "chatcmpl-test",
					"object":  "chat.completion.chunk",
					"created": 0,
					"model":   got.Model,
					"choices": []map[string]any{
						{"index": 0, "delta": map[string]string{"content": chunk}},
					},
				})
				require.NoError(t, err)
				fmt.Fprintf(w, "data: %s\n\n", delta)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   got.Model,
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": strings.Join(chunks, "")},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestNewClient_ConfigValidation(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k", DefaultModel: "m"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(Config{BaseURL: "http://x", DefaultModel: "m"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(Config{BaseURL: "http://x", APIKey: "k"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStream_DeliversChunksInOrder(t *testing.T) {
	var got chatRequest
	srv := newChatServer(t, []string{"Hel", "lo ", "world"}, &got)
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	var received []string
	err = client.Stream(context.Background(),
		[]Message{{Role: RoleUser, Content: "hi"}},
		"anthropic/claude-3-haiku",
		func(chunk string) error {
			received = append(received, chunk)
			return nil
		},
	)
	require.NoError(t, err)

	assert.Equal(t, "Hello world", strings.Join(received, ""))
	assert.Equal(t, "anthropic/claude-3-haiku", got.Model)
	assert.True(t, got.Stream)
}

func TestStream_EmptyModelUsesDefault(t *testing.T) {
	var got chatRequest
	srv := newChatServer(t, []string{"ok"}, &got)
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	err = client.Stream(context.Background(),
		[]Message{{Role: RoleUser, Content: "hi"}},
		"",
		func(string) error { return nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-3.5-turbo", got.Model)
}

func TestStream_EmptyMessages(t *testing.T) {
	client, err := NewClient(testConfig("http://localhost:9"), nil)
	require.NoError(t, err)

	err = client.Stream(context.Background(), nil, "", func(string) error { return nil })
	assert.ErrorIs(t, err, ErrEmptyMessages)
}

func TestStream_UnknownRole(t *testing.T) {
	client, err := NewClient(testConfig("http://localhost:9"), nil)
	require.NoError(t, err)

	err = client.Stream(context.Background(),
		[]Message{{Role: "tool", Content: "x"}}, "",
		func(string) error { return nil },
	)
	assert.ErrorContains(t, err, "unknown message role")
}

func TestComplete(t *testing.T) {
	var got chatRequest
	srv := newChatServer(t, []string{"full answer"}, &got)
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	content, err := client.Complete(context.Background(),
		[]Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hi"},
		},
		"openai/gpt-4",
	)
	require.NoError(t, err)
	assert.Equal(t, "full answer", content)
	assert.Equal(t, "openai/gpt-4", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
}

func TestListModels_PassesThroughUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"id":"openai/gpt-4","name":"GPT-4","context_length":8192}]}`)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	models := client.ListModels(context.Background())
	require.Len(t, models, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(models[0], &entry))
	assert.Equal(t, "openai/gpt-4", entry["id"])
	assert.Equal(t, float64(8192), entry["context_length"])
}

func TestListModels_FallsBackWhenUnreachable(t *testing.T) {
	client, err := NewClient(testConfig("http://127.0.0.1:1"), nil)
	require.NoError(t, err)

	models := client.ListModels(context.Background())
	require.Len(t, models, len(fallbackModels))

	var entry ModelInfo
	require.NoError(t, json.Unmarshal(models[0], &entry))
	assert.Equal(t, "openai/gpt-4-turbo-preview", entry.ID)
}

func TestAttributionHeaders(t *testing.T) {
	var referer, title string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	client.ListModels(context.Background())
	assert.Equal(t, "http://localhost:3001", referer)
	assert.Equal(t, "ragd", title)
}
