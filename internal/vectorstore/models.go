package vectorstore

import (
	"fmt"
	"strconv"
	"time"
)

// Chunk is one embedded slice of a source document.
type Chunk struct {
	// ID is the chunk identifier, "{documentID}-chunk-{index}".
	ID string

	// DocumentID groups the chunks of one upload.
	DocumentID string

	// Title is the original filename of the source document.
	Title string

	// Content is the chunk text.
	Content string

	// FileType is the source document's type (pdf, docx, txt).
	FileType string

	// ChunkIndex is this chunk's position within the document.
	ChunkIndex int

	// TotalChunks is how many chunks the document produced.
	TotalChunks int

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time

	// Embedding is the precomputed vector for Content.
	Embedding []float32
}

// ChunkID formats the canonical chunk identifier.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, index)
}

// ChunkInfo is chunk metadata without content or embedding.
type ChunkInfo struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"documentId"`
	Title       string    `json:"title"`
	FileType    string    `json:"fileType"`
	ChunkIndex  int       `json:"chunkIndex"`
	TotalChunks int       `json:"totalChunks"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DocumentInfo summarizes one stored document.
type DocumentInfo struct {
	DocumentID string    `json:"documentId"`
	Title      string    `json:"title"`
	FileType   string    `json:"fileType"`
	ChunkCount int       `json:"chunkCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	Chunk Chunk

	// Score is the cosine similarity to the query, in [-1, 1], higher is
	// more similar.
	Score float32
}

// Metadata keys stored alongside each chunk.
const (
	metaDocumentID  = "document_id"
	metaTitle       = "title"
	metaFileType    = "file_type"
	metaChunkIndex  = "chunk_index"
	metaTotalChunks = "total_chunks"
	metaCreatedAt   = "created_at"
)

// chunkMetadata flattens chunk fields into the string map chromem stores.
func chunkMetadata(c Chunk) map[string]string {
	return map[string]string{
		metaDocumentID:  c.DocumentID,
		metaTitle:       c.Title,
		metaFileType:    c.FileType,
		metaChunkIndex:  strconv.Itoa(c.ChunkIndex),
		metaTotalChunks: strconv.Itoa(c.TotalChunks),
		metaCreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// chunkFromMetadata rebuilds chunk fields from stored metadata. Malformed
// numeric or time values degrade to zero values rather than failing a search.
func chunkFromMetadata(id, content string, meta map[string]string) Chunk {
	index, _ := strconv.Atoi(meta[metaChunkIndex])
	total, _ := strconv.Atoi(meta[metaTotalChunks])
	createdAt, _ := time.Parse(time.RFC3339Nano, meta[metaCreatedAt])

	return Chunk{
		ID:          id,
		DocumentID:  meta[metaDocumentID],
		Title:       meta[metaTitle],
		Content:     content,
		FileType:    meta[metaFileType],
		ChunkIndex:  index,
		TotalChunks: total,
		CreatedAt:   createdAt,
	}
}
