package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_EmptyInput(t *testing.T) {
	s := NewSentenceSplitter()
	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\t  "))
	assert.Nil(t, s.Split("..."))
}

func TestSplit_SingleShortText(t *testing.T) {
	s := NewSentenceSplitter()
	chunks := s.Split("Hello world. This is fine.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello world. This is fine", chunks[0])
}

func TestSplit_OversizedSentenceKeptWhole(t *testing.T) {
	s := &SentenceSplitter{MaxChunkSize: 10, OverlapSentences: 2}
	long := strings.Repeat("a", 50)
	chunks := s.Split(long + ".")
	require.Len(t, chunks, 1)
	assert.Equal(t, long, chunks[0])
}

func TestSplit_OverlapSeedsNextChunk(t *testing.T) {
	s := &SentenceSplitter{MaxChunkSize: 60, OverlapSentences: 2}

	text := "First sentence here. Second sentence here. Third sentence here. Fourth sentence here."
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	// Each later chunk starts with the last two sentences of its predecessor.
	for i := 1; i < len(chunks); i++ {
		prev := strings.Split(chunks[i-1], ". ")
		tail := prev
		if len(tail) > 2 {
			tail = tail[len(tail)-2:]
		}
		assert.True(t, strings.HasPrefix(chunks[i], strings.Join(tail, ". ")),
			"chunk %d should start with overlap from chunk %d", i, i-1)
	}
}

func TestSplit_NoSentenceDropped(t *testing.T) {
	s := &SentenceSplitter{MaxChunkSize: 80, OverlapSentences: 2}

	var b strings.Builder
	var want []string
	for i := 0; i < 25; i++ {
		sentence := fmt.Sprintf("Sentence number %d with some padding words", i)
		want = append(want, sentence)
		b.WriteString(sentence)
		b.WriteString(". ")
	}

	chunks := s.Split(b.String())
	require.NotEmpty(t, chunks)

	// Reconstruct the sentence sequence, skipping overlap duplicates.
	var got []string
	for _, chunk := range chunks {
		for _, sentence := range strings.Split(chunk, ". ") {
			if len(got) > 0 && containsRecent(got, sentence, 2) {
				continue
			}
			got = append(got, sentence)
		}
	}

	assert.Equal(t, want, got)
}

// containsRecent reports whether s appears in the last n entries of seen.
func containsRecent(seen []string, s string, n int) bool {
	start := len(seen) - n
	if start < 0 {
		start = 0
	}
	for _, prev := range seen[start:] {
		if prev == s {
			return true
		}
	}
	return false
}

func TestSplit_ChunkSizesBounded(t *testing.T) {
	s := NewSentenceSplitter()

	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "This is sentence %d of a fairly long plain text document used for chunk sizing. ", i)
	}

	chunks := s.Split(b.String())
	require.Greater(t, len(chunks), 1)

	// Each chunk stays within the budget plus the two overlap sentences.
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 1000+200, "chunk %d too large", i)
	}
}

func TestSplit_2500CharTextYieldsThreeChunks(t *testing.T) {
	// ~2500 characters of uniform sentences: expect 3 chunks at the default
	// 1000-char budget with ~2 sentences of overlap.
	var b strings.Builder
	for b.Len() < 2500 {
		b.WriteString("The quick brown fox jumps over the lazy dog near the river bank today. ")
	}
	text := b.String()[:2500]

	chunks := NewSentenceSplitter().Split(text)
	assert.Len(t, chunks, 3)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("One. Two! Three? Four")
	assert.Equal(t, []string{"One", "Two", "Three", "Four"}, got)
}
