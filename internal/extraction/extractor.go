// Package extraction turns uploaded files into plain text for chunking.
//
// Supported formats are pdf, docx, and txt. PDF and plain text go through
// langchaingo's document loaders; docx is unpacked directly from the OOXML
// container since no loader exists for it.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
)

// Errors returned by this package.
var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyDocument   = errors.New("document contains no extractable text")
)

// supportedTypes maps accepted file extensions (without the dot).
var supportedTypes = map[string]bool{
	"pdf":  true,
	"docx": true,
	"txt":  true,
}

// Document is the extracted text of one uploaded file.
type Document struct {
	// Title is the original filename.
	Title string

	// Content is the full extracted plain text.
	Content string

	// FileType is the lowercase extension without the dot.
	FileType string
}

// Extractor extracts plain text from a stored upload.
type Extractor interface {
	Extract(ctx context.Context, path, filename string) (*Document, error)
}

// FileType returns the lowercase extension of filename without the dot.
func FileType(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// Supported reports whether files of the given type can be extracted.
func Supported(fileType string) bool {
	return supportedTypes[fileType]
}

// FileExtractor routes files to a format-specific extractor by extension.
type FileExtractor struct{}

var _ Extractor = (*FileExtractor)(nil)

// NewFileExtractor creates an extractor for all supported formats.
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{}
}

// Extract reads the file at path and returns its plain text. The filename
// (not path) determines the format and becomes the document title.
func (e *FileExtractor) Extract(ctx context.Context, path, filename string) (*Document, error) {
	fileType := FileType(filename)
	if !Supported(fileType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}

	var (
		content string
		err     error
	)
	switch fileType {
	case "pdf":
		content, err = extractPDF(ctx, path)
	case "docx":
		content, err = extractDocx(path)
	case "txt":
		content, err = extractText(ctx, path)
	}
	if err != nil {
		return nil, fmt.Errorf("extracting %q: %w", filename, err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: %q", ErrEmptyDocument, filename)
	}

	return &Document{
		Title:    filename,
		Content:  content,
		FileType: fileType,
	}, nil
}

func extractText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.PageContent)
	}
	return strings.Join(parts, "\n"), nil
}

func extractPDF(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	// The PDF loader yields one document per page.
	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if text := strings.TrimSpace(d.PageContent); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}
