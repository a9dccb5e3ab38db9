// Package rag augments chat conversations with retrieved document context.
package rag

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/llm"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var ragTracer = otel.Tracer("ragd.rag")

// Outcome reports what augmentation did to a conversation.
type Outcome string

const (
	// ContextFound: relevant chunks were retrieved and injected.
	ContextFound Outcome = "context_found"
	// ContextEmpty: retrieval ran but nothing matched, or there was no
	// user message to retrieve for. Messages pass through untouched.
	ContextEmpty Outcome = "context_empty"
	// RetrievalFailed: embedding or search failed. Messages pass through
	// untouched; the chat proceeds without context.
	RetrievalFailed Outcome = "retrieval_failed"
)

// systemPrompt wraps retrieved context for the model.
const systemPrompt = "You are a helpful assistant. Use the following context to answer " +
	"the user's question. If the answer cannot be found in the context, say so honestly." +
	"\n\nContext:\n%s\n\nAnswer the user's question based on the above context."

// Result is the outcome of augmenting one conversation.
type Result struct {
	Outcome Outcome

	// Messages is the conversation to send to the model. When context was
	// found it starts with a synthesized system message and any caller
	// system messages are dropped; otherwise it is the input unchanged.
	Messages []llm.Message

	// Sources are the retrieved chunks, present only on ContextFound.
	Sources []vectorstore.SearchResult
}

// Augmentor retrieves relevant chunks for a conversation's latest user
// message and injects them as a system message.
type Augmentor struct {
	embedder vectorstore.Embedder
	topK     int
	logger   *zap.Logger
}

// NewAugmentor creates an augmentor retrieving up to topK chunks per query.
func NewAugmentor(embedder vectorstore.Embedder, topK int, logger *zap.Logger) (*Augmentor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if topK <= 0 {
		topK = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Augmentor{embedder: embedder, topK: topK, logger: logger}, nil
}

// Augment retrieves context from store for the last user message.
//
// Retrieval failures never fail the chat: the conversation is returned
// unchanged with Outcome set so callers can observe the degradation.
func (a *Augmentor) Augment(ctx context.Context, store vectorstore.Store, messages []llm.Message) Result {
	ctx, span := ragTracer.Start(ctx, "Augmentor.Augment")
	defer span.End()

	query := lastUserMessage(messages)
	if query == "" {
		span.SetAttributes(attribute.String("outcome", string(ContextEmpty)))
		return Result{Outcome: ContextEmpty, Messages: messages}
	}

	vector, err := a.embedder.EmbedQuery(ctx, query)
	if err != nil {
		a.logger.Warn("query embedding failed, continuing without context", zap.Error(err))
		span.SetAttributes(attribute.String("outcome", string(RetrievalFailed)))
		return Result{Outcome: RetrievalFailed, Messages: messages}
	}

	results, err := store.Search(ctx, vector, a.topK)
	if err != nil {
		a.logger.Warn("context retrieval failed, continuing without context", zap.Error(err))
		span.SetAttributes(attribute.String("outcome", string(RetrievalFailed)))
		return Result{Outcome: RetrievalFailed, Messages: messages}
	}

	if len(results) == 0 {
		span.SetAttributes(attribute.String("outcome", string(ContextEmpty)))
		return Result{Outcome: ContextEmpty, Messages: messages}
	}

	span.SetAttributes(
		attribute.String("outcome", string(ContextFound)),
		attribute.Int("sources", len(results)),
	)

	return Result{
		Outcome:  ContextFound,
		Messages: injectContext(messages, results),
		Sources:  results,
	}
}

// lastUserMessage returns the content of the final user turn, or "".
func lastUserMessage(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// injectContext prepends a synthesized system message built from the
// retrieved chunks and drops any caller-supplied system messages, which
// would otherwise compete with the injected instructions.
func injectContext(messages []llm.Message, results []vectorstore.SearchResult) []llm.Message {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Source: %s]\n%s", r.Chunk.Title, r.Chunk.Content)
	}
	context := strings.Join(blocks, "\n\n---\n\n")

	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(systemPrompt, context),
	})
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}
