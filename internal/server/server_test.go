package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/isolation"
	"github.com/fyrsmithlabs/ragd/internal/llm"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/session"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// stubEmbedder maps every text to the same unit vector so anything stored
// matches any query.
type stubEmbedder struct{}

func (stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

// chatCapture records the last upstream chat request.
type chatCapture struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []llm.Message `json:"messages"`
}

// newChatUpstream fakes an OpenAI-compatible upstream that streams chunks
// or returns them joined, recording each request into capture.
func newChatUpstream(t *testing.T, chunks []string, capture *chatCapture) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
			if capture.Stream {
				w.Header().Set("Content-Type", "text/event-stream")
				for _, chunk := range chunks {
					delta, err := json.Marshal(map[string]any{
						"id": "chatcmpl-test", "object": "chat.completion.chunk", "created": 0,
						"model":   capture.Model,
						"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": chunk}}},
					})
					require.NoError(t, err)
					fmt.Fprintf(w, "data: %s\n\n", delta)
				}
				fmt.Fprint(w, "data: [DONE]\n\n")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"chatcmpl-test","object":"chat.completion","created":0,"model":%q,
				"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],
				"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`,
				capture.Model, strings.Join(chunks, ""))
		case strings.HasSuffix(r.URL.Path, "/models"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":[{"id":"openai/gpt-4","name":"GPT-4"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

type testEnv struct {
	t       *testing.T
	server  *Server
	http    *httptest.Server
	capture *chatCapture
	base    string
}

func newTestEnv(t *testing.T, mode isolation.Mode) *testEnv {
	t.Helper()

	base := t.TempDir()
	capture := &chatCapture{}
	upstream := newChatUpstream(t, []string{"Hello", " world"}, capture)
	t.Cleanup(upstream.Close)

	var registry *session.Registry
	if mode == isolation.ModeSession {
		var err error
		registry, err = session.NewRegistry(filepath.Join(base, "sessions"), 24*time.Hour, nil)
		require.NoError(t, err)
	}
	resolver, err := isolation.NewResolver(mode, registry, nil)
	require.NoError(t, err)

	manager, err := vectorstore.NewManager(vectorstore.ManagerConfig{
		BasePath:   filepath.Join(base, "vectors"),
		VectorSize: 3,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	embedder := stubEmbedder{}
	ingestor, err := ingest.NewService(extraction.NewFileExtractor(), chunker.NewSentenceSplitter(), embedder, nil)
	require.NoError(t, err)
	augmentor, err := rag.NewAugmentor(embedder, 3, nil)
	require.NoError(t, err)

	chat, err := llm.NewClient(llm.Config{
		BaseURL:      upstream.URL,
		APIKey:       "test-key",
		DefaultModel: "openai/gpt-3.5-turbo",
	}, nil)
	require.NoError(t, err)

	srv, err := NewServer(
		Config{
			Host:        "localhost",
			Port:        0,
			UploadDir:   filepath.Join(base, "uploads"),
			MaxFileSize: 1 << 20,
		},
		Deps{
			Resolver:  resolver,
			Stores:    manager,
			Embedder:  embedder,
			Ingestor:  ingestor,
			Augmentor: augmentor,
			Chat:      chat,
		},
		nil,
	)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{t: t, server: srv, http: ts, capture: capture, base: base}
}

// do sends a request with optional isolation headers and returns the
// response with its body read.
func (e *testEnv) do(method, path string, body io.Reader, contentType string, headers map[string]string) (*http.Response, []byte) {
	e.t.Helper()

	req, err := http.NewRequest(method, e.http.URL+path, body)
	require.NoError(e.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.http.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp, data
}

func (e *testEnv) doJSON(method, path string, payload any, headers map[string]string) (*http.Response, []byte) {
	e.t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(e.t, err)
	return e.do(method, path, bytes.NewReader(body), "application/json", headers)
}

// upload posts a multipart file to /api/documents/upload.
func (e *testEnv) upload(filename, content string, headers map[string]string) (*http.Response, []byte) {
	e.t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(e.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(e.t, err)
	require.NoError(e.t, w.Close())

	return e.do(http.MethodPost, "/api/documents/upload", &buf, w.FormDataContentType(), headers)
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	Event string
	Data  string
}

// parseSSE splits a raw SSE stream into events.
func parseSSE(t *testing.T, raw []byte) []sseEvent {
	t.Helper()

	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(string(raw)), "\n\n") {
		var ev sseEvent
		var dataLines []string
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
			}
		}
		ev.Data = strings.Join(dataLines, "\n")
		events = append(events, ev)
	}
	return events
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, isolation.ModeNone)

	resp, body := env.do(http.MethodGet, "/health", nil, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, isolation.ModeNone)

	resp, body := env.do(http.MethodGet, "/metrics", nil, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}
