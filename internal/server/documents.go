package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/isolation"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// UploadResponse is the response body for POST /api/documents/upload.
type UploadResponse struct {
	Message    string `json:"message"`
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
}

// SearchRequest is the request body for POST /api/documents/search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchHit is one result of a document search.
type SearchHit struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Content  string        `json:"content"`
	Score    float32       `json:"score"`
	Metadata SearchHitMeta `json:"metadata"`
}

// SearchHitMeta carries the chunk metadata of a search hit.
type SearchHitMeta struct {
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"createdAt"`
	FileType    string    `json:"fileType"`
	ChunkIndex  int       `json:"chunkIndex"`
	TotalChunks int       `json:"totalChunks"`
}

// SearchResponse is the response body for POST /api/documents/search.
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// DocumentSummary is one entry of the document list.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
	FileType  string    `json:"fileType"`
	Chunks    int       `json:"chunks"`
}

// ListResponse is the response body for GET /api/documents/list.
type ListResponse struct {
	Documents []DocumentSummary `json:"documents"`
}

// DeleteResponse is the response body for DELETE /api/documents/:documentId.
type DeleteResponse struct {
	Message       string `json:"message"`
	DeletedChunks int    `json:"deletedChunks"`
}

// MessageResponse is a bare confirmation body.
type MessageResponse struct {
	Message string `json:"message"`
}

// handleUpload ingests one uploaded file into the tenant's store. The file
// is staged under the isolation-aware upload directory and removed again
// once ingestion finishes, successfully or not.
func (s *Server) handleUpload(c echo.Context) error {
	res := resolution(c)
	ctx := c.Request().Context()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no file uploaded")
	}
	if fileHeader.Size > s.config.MaxFileSize {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("file exceeds the %d byte limit", s.config.MaxFileSize))
	}

	filename := filepath.Base(fileHeader.Filename)
	if !extraction.Supported(extraction.FileType(filename)) {
		return echo.NewHTTPError(http.StatusBadRequest,
			"invalid file type, only pdf, txt, and docx are allowed")
	}

	staged, err := s.stageUpload(fileHeader, res.Key, filename)
	if err != nil {
		s.logger.Error("staging upload failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store upload")
	}
	defer func() {
		if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("upload cleanup failed", zap.String("path", staged), zap.Error(err))
		}
	}()

	store, err := s.deps.Stores.GetStore(ctx, res.Key)
	if err != nil {
		s.logger.Error("opening store failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process document")
	}

	result, err := s.deps.Ingestor.Ingest(ctx, store, staged, filename)
	if err != nil {
		if errors.Is(err, extraction.ErrUnsupportedType) || errors.Is(err, extraction.ErrEmptyDocument) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("document ingestion failed",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process document")
	}

	documentsIngested.Inc()
	return c.JSON(http.StatusOK, UploadResponse{
		Message:    "document uploaded and processed successfully",
		DocumentID: result.DocumentID,
		Chunks:     result.Chunks,
	})
}

// stageUpload writes the multipart file into the tenant's upload directory
// under a collision-free name and returns the staged path.
func (s *Server) stageUpload(fileHeader *multipart.FileHeader, isolationKey, filename string) (string, error) {
	dir := isolation.IsolatedPath(s.config.UploadDir, isolationKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	var suffix [6]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("generating upload name: %w", err)
	}
	staged := filepath.Join(dir, fmt.Sprintf("%d-%s-%s",
		timeNow().UnixMilli(), hex.EncodeToString(suffix[:]), filename))

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(staged)
	if err != nil {
		return "", fmt.Errorf("creating staged file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(staged)
		return "", fmt.Errorf("writing staged file: %w", err)
	}
	return staged, nil
}

// handleSearch embeds the query and returns the most similar chunks.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if req.Limit < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "limit must be positive")
	}
	if req.Limit == 0 {
		req.Limit = defaultSearchLimit
	}

	ctx := c.Request().Context()
	res := resolution(c)

	store, err := s.deps.Stores.GetStore(ctx, res.Key)
	if err != nil {
		s.logger.Error("opening store failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	vector, err := s.deps.Embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		s.logger.Error("query embedding failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	results, err := store.Search(ctx, vector, req.Limit)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{
			ID:      r.Chunk.ID,
			Title:   r.Chunk.Title,
			Content: r.Chunk.Content,
			Score:   r.Score,
			Metadata: SearchHitMeta{
				Source:      r.Chunk.Title,
				CreatedAt:   r.Chunk.CreatedAt,
				FileType:    r.Chunk.FileType,
				ChunkIndex:  r.Chunk.ChunkIndex,
				TotalChunks: r.Chunk.TotalChunks,
			},
		}
	}
	return c.JSON(http.StatusOK, SearchResponse{Query: req.Query, Results: hits})
}

// handleListDocuments lists the tenant's documents grouped from chunks.
func (s *Server) handleListDocuments(c echo.Context) error {
	ctx := c.Request().Context()
	res := resolution(c)

	store, err := s.deps.Stores.GetStore(ctx, res.Key)
	if err != nil {
		s.logger.Error("opening store failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list documents")
	}

	docs, err := store.ListDocuments(ctx)
	if err != nil {
		s.logger.Error("listing documents failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list documents")
	}

	summaries := make([]DocumentSummary, len(docs))
	for i, d := range docs {
		summaries[i] = DocumentSummary{
			ID:        d.DocumentID,
			Title:     d.Title,
			Source:    d.Title,
			CreatedAt: d.CreatedAt,
			FileType:  d.FileType,
			Chunks:    d.ChunkCount,
		}
	}
	return c.JSON(http.StatusOK, ListResponse{Documents: summaries})
}

// handleDeleteDocument removes one document and all its chunks.
func (s *Server) handleDeleteDocument(c echo.Context) error {
	ctx := c.Request().Context()
	res := resolution(c)
	documentID := c.Param("documentId")

	store, err := s.deps.Stores.GetStore(ctx, res.Key)
	if err != nil {
		s.logger.Error("opening store failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete document")
	}

	removed, err := store.DeleteDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		s.logger.Error("deleting document failed",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete document")
	}

	return c.JSON(http.StatusOK, DeleteResponse{
		Message:       "document deleted successfully",
		DeletedChunks: removed,
	})
}

// handleClearDocuments removes every document in the tenant's store.
func (s *Server) handleClearDocuments(c echo.Context) error {
	ctx := c.Request().Context()
	res := resolution(c)

	if err := s.deps.Stores.Clear(ctx, res.Key); err != nil {
		s.logger.Error("clearing documents failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear documents")
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "all documents cleared successfully"})
}
