// Package ingest runs the document ingestion pipeline: extract text, chunk
// it, embed the chunks, and persist them in a tenant's vector store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var ingestTracer = otel.Tracer("ragd.ingest")

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// Result summarizes one completed ingestion.
type Result struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	FileType   string `json:"fileType"`
	Chunks     int    `json:"chunks"`
}

// Service is the ingestion pipeline.
type Service struct {
	extractor extraction.Extractor
	splitter  chunker.Splitter
	embedder  vectorstore.Embedder
	logger    *zap.Logger
}

// NewService wires the pipeline stages together.
func NewService(extractor extraction.Extractor, splitter chunker.Splitter, embedder vectorstore.Embedder, logger *zap.Logger) (*Service, error) {
	if extractor == nil || splitter == nil || embedder == nil {
		return nil, fmt.Errorf("extractor, splitter, and embedder are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		logger:    logger,
	}, nil
}

// Ingest processes the uploaded file at path into store. The filename
// determines the format and becomes the document title; every produced
// chunk carries the same freshly generated document ID.
func (s *Service) Ingest(ctx context.Context, store vectorstore.Store, path, filename string) (*Result, error) {
	ctx, span := ingestTracer.Start(ctx, "Service.Ingest")
	defer span.End()

	span.SetAttributes(attribute.String("filename", filename))

	doc, err := s.extractor.Extract(ctx, path, filename)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	texts := s.splitter.Split(doc.Content)
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: %q", extraction.ErrEmptyDocument, filename)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	documentID := uuid.NewString()
	createdAt := timeNow().UTC()

	chunks := make([]vectorstore.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = vectorstore.Chunk{
			ID:          vectorstore.ChunkID(documentID, i),
			DocumentID:  documentID,
			Title:       doc.Title,
			Content:     text,
			FileType:    doc.FileType,
			ChunkIndex:  i,
			TotalChunks: len(texts),
			CreatedAt:   createdAt,
			Embedding:   vectors[i],
		}
	}

	if err := store.Insert(ctx, chunks); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	span.SetAttributes(
		attribute.String("document_id", documentID),
		attribute.Int("chunks", len(chunks)),
	)
	s.logger.Info("document ingested",
		zap.String("document_id", documentID),
		zap.String("title", doc.Title),
		zap.String("file_type", doc.FileType),
		zap.Int("chunks", len(chunks)),
	)

	return &Result{
		DocumentID: documentID,
		Title:      doc.Title,
		FileType:   doc.FileType,
		Chunks:     len(chunks),
	}, nil
}
