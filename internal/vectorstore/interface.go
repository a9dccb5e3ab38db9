// Package vectorstore provides per-tenant persistent vector storage backed
// by chromem-go.
//
// A Store holds the chunks of one isolation key. The Manager hands out
// stores lazily, at most one live handle per key, and tears them down when
// a tenant is cleared or expires.
package vectorstore

import (
	"context"
	"errors"
)

// Errors returned by this package.
var (
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")
	ErrEmptyChunks   = errors.New("empty or nil chunks")
	ErrNotFound      = errors.New("document not found")
	ErrClosed        = errors.New("store is closed")
)

// Embedder generates embeddings for chunk content and search queries.
type Embedder interface {
	// EmbedDocuments returns one embedding per text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery returns the embedding for a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the persistent chunk store for one isolation key.
//
// Chunks arrive with embeddings already computed; Search takes a
// precomputed query vector. The store never calls an embedding model.
type Store interface {
	// Insert adds chunks to the store. Every chunk must carry an embedding.
	Insert(ctx context.Context, chunks []Chunk) error

	// Search returns up to limit chunks ranked by cosine similarity to the
	// query vector, most similar first. An empty store yields no results.
	Search(ctx context.Context, queryVector []float32, limit int) ([]SearchResult, error)

	// ListChunks returns metadata for every stored chunk.
	ListChunks(ctx context.Context) ([]ChunkInfo, error)

	// ListDocuments returns one entry per distinct document, with chunk
	// counts, newest first.
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)

	// DeleteChunk removes the single chunk with the given ID. Returns
	// ErrNotFound when no such chunk exists.
	DeleteChunk(ctx context.Context, chunkID string) error

	// DeleteDocument removes every chunk belonging to documentID and
	// returns how many were removed. Returns ErrNotFound when none match.
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	// Clear removes all chunks.
	Clear(ctx context.Context) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close flushes state and releases the store handle.
	Close() error
}
