// Package chunk splits extracted report text into overlapping
// bounded-size segments suitable for batch embedding.
package chunk

import (
	"fmt"
	"strings"

	"github.com/poiesic/reportpipe/core"
)

// Recommended defaults for embedding-sized chunks.
const (
	DefaultMaxChunkSize = 3000
	DefaultOverlap      = 200
)

// Chunker splits text into chunks of at most MaxChunkSize characters,
// preferring to break at sentence, paragraph or word boundaries past the
// midpoint of each window. Consecutive chunks overlap by Overlap
// characters. Boundaries are a pure function of the text and the
// configuration, so chunking is deterministic.
type Chunker struct {
	maxChunkSize int
	overlap      int
}

// NewChunker creates a Chunker. maxChunkSize must be positive and
// overlap must be non-negative and smaller than maxChunkSize.
func NewChunker(maxChunkSize, overlap int) (*Chunker, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("%w: max chunk size must be positive, got %d", core.ErrConfiguration, maxChunkSize)
	}
	if overlap < 0 || overlap >= maxChunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", core.ErrConfiguration, maxChunkSize, overlap)
	}
	return &Chunker{maxChunkSize: maxChunkSize, overlap: overlap}, nil
}

// NewDefaultChunker creates a Chunker with the recommended defaults.
func NewDefaultChunker() *Chunker {
	c, _ := NewChunker(DefaultMaxChunkSize, DefaultOverlap)
	return c
}

// MaxChunkSize returns the configured chunk size bound in characters.
func (c *Chunker) MaxChunkSize() int { return c.maxChunkSize }

// Overlap returns the configured overlap in characters.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into an ordered sequence of chunks. Texts no longer
// than the chunk size yield a single chunk. Chunks are trimmed of
// surrounding whitespace; empty chunks are dropped. Indexes are
// contiguous starting at 0.
func (c *Chunker) Chunk(text string) []core.TextChunk {
	runes := []rune(text)
	if len(runes) <= c.maxChunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []core.TextChunk{{Index: 0, Text: trimmed, Length: len([]rune(trimmed))}}
	}

	var chunks []core.TextChunk
	start := 0
	for start < len(runes) {
		end := start + c.maxChunkSize
		if end < len(runes) {
			end = c.findBreak(runes, start, end)
		}

		piece := strings.TrimSpace(string(runes[start:min(end, len(runes))]))
		if piece != "" {
			chunks = append(chunks, core.TextChunk{
				Index:  len(chunks),
				Text:   piece,
				Length: len([]rune(piece)),
			})
		}

		// Advance with overlap from the window boundary, always by at
		// least one rune so the walk terminates.
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// findBreak picks the chunk boundary inside the window [start, end):
// the last sentence terminator past the window midpoint, else the last
// paragraph break past the midpoint, else the last whitespace past the
// midpoint, else the raw window edge.
func (c *Chunker) findBreak(runes []rune, start, end int) int {
	mid := start + c.maxChunkSize/2

	if i := lastIndexRune(runes, start, end, '.'); i > mid {
		return i + 1
	}
	if i := lastParagraphBreak(runes, start, end); i > mid {
		return i + 2
	}
	if i := lastIndexRune(runes, start, end, ' '); i > mid {
		return i + 1
	}
	return end
}

// lastIndexRune returns the index of the last occurrence of r in
// runes[start:end), or -1.
func lastIndexRune(runes []rune, start, end int, r rune) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// lastParagraphBreak returns the index of the last "\n\n" starting in
// runes[start:end), or -1.
func lastParagraphBreak(runes []rune, start, end int) int {
	for i := end - 2; i >= start; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i
		}
	}
	return -1
}
