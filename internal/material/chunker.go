// Package material turns uploaded lecture text into retrieval chunks.
package material

import "strings"

const (
	// minChunkSize keeps chunks large enough to carry a whole idea.
	minChunkSize = 200

	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// Chunker splits text into overlapping fixed-size spans. Splits prefer
// paragraph and sentence boundaries near the target size.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. Sizes below the minimum are raised to
// it; the overlap is clamped to less than half the chunk size.
func NewChunker(size, overlap int) *Chunker {
	if size < minChunkSize {
		size = minChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size/2 {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split breaks text into chunks. Whitespace-only input yields nil.
func (c *Chunker) Split(text string) []string {
	text = normalize(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			end = splitPoint(text, start, end)
		}
		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(text) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// splitPoint searches backwards from the size limit for a paragraph
// break, then a sentence end, then any whitespace. The search floor
// keeps chunks from collapsing when no boundary is nearby.
func splitPoint(text string, start, limit int) int {
	floor := start + minChunkSize
	if floor > limit {
		return limit
	}

	if i := strings.LastIndex(text[floor:limit], "\n\n"); i >= 0 {
		return floor + i + 2
	}
	for i := limit - 1; i >= floor; i-- {
		switch text[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	for i := limit - 1; i >= floor; i-- {
		if text[i] == ' ' || text[i] == '\n' || text[i] == '\t' {
			return i + 1
		}
	}
	return limit
}

// normalize collapses Windows line endings and trims outer whitespace.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}
