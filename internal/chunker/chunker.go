// Package chunker splits extracted document text into bounded, overlapping
// chunks suitable for embedding.
package chunker

import (
	"regexp"
	"strings"
)

// Splitter turns raw text into an ordered sequence of chunks.
//
// The interface is deliberately narrow so the sentence-based strategy can be
// swapped for token-aware chunking without touching callers.
type Splitter interface {
	Split(text string) []string
}

// sentenceBoundary splits text on sentence-ending punctuation runs.
var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// SentenceSplitter accumulates whole sentences into chunks of roughly
// MaxChunkSize characters, carrying the trailing OverlapSentences sentences
// of each chunk into the next one.
//
// Chunk sizes are measured in characters, not model tokens. The size check
// only prevents adding more sentences to a non-empty chunk; a single
// sentence longer than MaxChunkSize is kept whole, never truncated.
type SentenceSplitter struct {
	// MaxChunkSize is the soft chunk budget in characters. Default 1000.
	MaxChunkSize int

	// OverlapSentences is how many trailing sentences seed the next chunk.
	// Default 2.
	OverlapSentences int
}

// NewSentenceSplitter returns a splitter with default settings.
func NewSentenceSplitter() *SentenceSplitter {
	return &SentenceSplitter{MaxChunkSize: 1000, OverlapSentences: 2}
}

// Split chunks text. Empty or whitespace-only input yields nil.
func (s *SentenceSplitter) Split(text string) []string {
	maxSize := s.MaxChunkSize
	if maxSize <= 0 {
		maxSize = 1000
	}
	overlap := s.OverlapSentences
	if overlap <= 0 {
		overlap = 2
	}

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		if currentLen+len(sentence) > maxSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, ". "))

			// Seed the next chunk with the tail of the one just closed.
			tail := current
			if len(tail) > overlap {
				tail = tail[len(tail)-overlap:]
			}
			current = append(append([]string{}, tail...), sentence)
		} else {
			current = append(current, sentence)
		}

		currentLen = joinedLen(current)
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, ". "))
	}

	return chunks
}

// SplitSentences splits text on ./!/? boundaries, trimming whitespace and
// discarding empty fragments.
func SplitSentences(text string) []string {
	parts := sentenceBoundary.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// joinedLen is the length of sentences joined with ". ".
func joinedLen(sentences []string) int {
	n := 0
	for _, s := range sentences {
		n += len(s)
	}
	if len(sentences) > 1 {
		n += 2 * (len(sentences) - 1)
	}
	return n
}
