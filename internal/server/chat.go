package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/llm"
	"github.com/fyrsmithlabs/ragd/internal/rag"
)

// ChatRequest is the request body for the chat endpoints.
type ChatRequest struct {
	Messages       []llm.Message `json:"messages"`
	Model          string        `json:"model"`
	RAGEnabled     bool          `json:"ragEnabled"`
	ConversationID string        `json:"conversationId"`
}

func (r ChatRequest) validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages are required")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
	}
	return nil
}

// ChatResponse is the response body for POST /api/chat.
type ChatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// ModelsResponse is the response body for GET /api/chat/models.
type ModelsResponse struct {
	Models []json.RawMessage `json:"models"`
}

// handleChatStream streams a completion over SSE, optionally augmented
// with retrieved document context.
func (s *Server) handleChatStream(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	messages, outcome := s.prepareMessages(ctx, c, req)
	chatStreams.WithLabelValues(outcome).Inc()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	err := s.deps.Chat.Stream(ctx, messages, req.Model, func(chunk string) error {
		writeSSE(w, "message", chunk)
		w.Flush()
		return nil
	})
	if err != nil {
		// A gone client is not an upstream failure; the context cancel
		// already tore down the completion.
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil
		}
		s.logger.Error("chat stream failed", zap.Error(err))
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		writeSSE(w, "error", string(payload))
		w.Flush()
		return nil
	}

	writeSSE(w, "done", "[DONE]")
	w.Flush()
	return nil
}

// prepareMessages applies retrieval augmentation when requested and
// reports the outcome label for metrics.
func (s *Server) prepareMessages(ctx context.Context, c echo.Context, req ChatRequest) ([]llm.Message, string) {
	if !req.RAGEnabled {
		return req.Messages, "disabled"
	}

	res := resolution(c)
	store, err := s.deps.Stores.GetStore(ctx, res.Key)
	if err != nil {
		s.logger.Warn("store unavailable, continuing without context", zap.Error(err))
		return req.Messages, string(rag.RetrievalFailed)
	}

	result := s.deps.Augmentor.Augment(ctx, store, req.Messages)
	return result.Messages, string(result.Outcome)
}

// handleChatComplete returns a full completion without streaming.
func (s *Server) handleChatComplete(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	messages, outcome := s.prepareMessages(ctx, c, req)
	chatStreams.WithLabelValues(outcome).Inc()

	content, err := s.deps.Chat.Complete(ctx, messages, req.Model)
	if err != nil {
		s.logger.Error("chat completion failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "chat completion failed")
	}

	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = s.deps.Chat.DefaultModel()
	}
	return c.JSON(http.StatusOK, ChatResponse{Content: content, Model: model})
}

// handleListModels returns the upstream model catalog, or the built-in
// fallback when upstream is unreachable.
func (s *Server) handleListModels(c echo.Context) error {
	models := s.deps.Chat.ListModels(c.Request().Context())
	return c.JSON(http.StatusOK, ModelsResponse{Models: models})
}

// writeSSE emits one server-sent event. Multi-line data is split into
// consecutive data fields per the SSE wire format.
func writeSSE(w *echo.Response, event, data string) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}
