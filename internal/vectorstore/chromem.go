package vectorstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// storeTracer for OpenTelemetry instrumentation.
var storeTracer = otel.Tracer("ragd.vectorstore")

// collectionName is the single chromem collection each store uses.
const collectionName = "chunks"

// ChromemStore implements Store on a chromem-go persistent database.
//
// Each store owns one directory and one collection. Embeddings are always
// supplied by the caller; the collection's embedding function exists only
// because chromem requires one and fails loudly if it is ever invoked.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	manifest   *manifest
	vectorSize int
	logger     *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore opens (or creates) the store persisted under dir.
func NewChromemStore(dir string, compress bool, vectorSize int, logger *zap.Logger) (*ChromemStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: storage dir required", ErrInvalidConfig)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
	}

	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", collectionName, err)
	}

	m, err := loadManifest(dir)
	if err != nil {
		return nil, err
	}

	logger.Debug("vector store opened",
		zap.String("dir", dir),
		zap.Int("chunks", m.count()),
	)

	return &ChromemStore{
		db:         db,
		collection: collection,
		manifest:   m,
		vectorSize: vectorSize,
		logger:     logger,
	}, nil
}

// rejectEmbeddingFunc is wired into every collection. All embeddings are
// precomputed, so any invocation is a programming error.
func rejectEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("store received un-embedded content")
}

func (s *ChromemStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// coll returns the current collection handle. Clear swaps it, so reads go
// through the mutex.
func (s *ChromemStore) coll() *chromem.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection
}

// Insert adds chunks with precomputed embeddings.
func (s *ChromemStore) Insert(ctx context.Context, chunks []Chunk) error {
	ctx, span := storeTracer.Start(ctx, "ChromemStore.Insert")
	defer span.End()

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk %d has no ID", i)
		}
		if len(c.Embedding) != s.vectorSize {
			return fmt.Errorf("chunk %s embedding has %d dimensions, want %d",
				c.ID, len(c.Embedding), s.vectorSize)
		}
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  chunkMetadata(c),
			Embedding: c.Embedding,
		}
	}

	// Concurrency of 1: embeddings are already present, nothing to parallelize.
	if err := s.coll().AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding chunks: %w", err)
	}

	if err := s.manifest.add(chunks); err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Debug("inserted chunks",
		zap.Int("count", len(chunks)),
		zap.String("document_id", chunks[0].DocumentID),
	)
	return nil
}

// Search returns the chunks most similar to queryVector.
func (s *ChromemStore) Search(ctx context.Context, queryVector []float32, limit int) ([]SearchResult, error) {
	ctx, span := storeTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if len(queryVector) != s.vectorSize {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d",
			len(queryVector), s.vectorSize)
	}

	// chromem requires nResults <= document count.
	count := s.coll().Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if limit > count {
		limit = count
	}

	results, err := s.coll().QueryEmbedding(ctx, queryVector, limit, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Chunk: chunkFromMetadata(r.ID, r.Content, r.Metadata),
			Score: r.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// ListChunks returns metadata for every stored chunk.
func (s *ChromemStore) ListChunks(ctx context.Context) ([]ChunkInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.manifest.list(), nil
}

// ListDocuments returns per-document summaries, newest first.
func (s *ChromemStore) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.manifest.documents(), nil
}

// DeleteChunk removes a single chunk by ID.
func (s *ChromemStore) DeleteChunk(ctx context.Context, chunkID string) error {
	ctx, span := storeTracer.Start(ctx, "ChromemStore.DeleteChunk")
	defer span.End()

	span.SetAttributes(attribute.String("chunk_id", chunkID))

	if err := s.checkOpen(); err != nil {
		return err
	}
	if chunkID == "" {
		return fmt.Errorf("chunk ID required")
	}

	if err := s.coll().Delete(ctx, nil, nil, chunkID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting chunk %s: %w", chunkID, err)
	}

	removed, err := s.manifest.removeChunk(chunkID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !removed {
		return fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID)
	}

	s.logger.Debug("deleted chunk", zap.String("chunk_id", chunkID))
	return nil
}

// DeleteDocument removes all chunks of documentID.
func (s *ChromemStore) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	ctx, span := storeTracer.Start(ctx, "ChromemStore.DeleteDocument")
	defer span.End()

	span.SetAttributes(attribute.String("document_id", documentID))

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if documentID == "" {
		return 0, fmt.Errorf("document ID required")
	}

	// Delete by metadata equality, not ID prefix. Prefix matching would let
	// "doc-1" claim the chunks of "doc-12".
	where := map[string]string{metaDocumentID: documentID}
	if err := s.coll().Delete(ctx, where, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("deleting document %s: %w", documentID, err)
	}

	ids, err := s.manifest.removeDocument(documentID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}

	s.logger.Debug("deleted document",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(ids)),
	)
	return len(ids), nil
}

// Clear removes every chunk in the store.
func (s *ChromemStore) Clear(ctx context.Context) error {
	ctx, span := storeTracer.Start(ctx, "ChromemStore.Clear")
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(collectionName); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection: %w", err)
	}

	collection, err := s.db.GetOrCreateCollection(collectionName, nil, rejectEmbeddingFunc)
	if err != nil {
		return fmt.Errorf("recreating collection: %w", err)
	}
	s.mu.Lock()
	s.collection = collection
	s.mu.Unlock()

	if err := s.manifest.clear(); err != nil {
		return err
	}

	s.logger.Debug("cleared store")
	return nil
}

// Count returns the number of stored chunks.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return s.coll().Count(), nil
}

// Close marks the store closed. chromem persists on every write, so there
// is nothing to flush.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
