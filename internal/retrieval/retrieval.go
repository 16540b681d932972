package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/quizforge/adexam/internal/model"
	"github.com/quizforge/adexam/internal/vecindex"
)

const chunkSeparator = "\n\n---\n\n"

// Service turns a query string into a bounded context string from the
// vector index.
type Service struct {
	index *vecindex.Index
}

// New creates a retrieval service over the given index.
func New(index *vecindex.Index) *Service {
	return &Service{index: index}
}

// Options bound a context build.
type Options struct {
	MaxChars int
	K        int
	Exclude  map[int64]bool
}

// Context is the retrieval result handed to question generation.
type Context struct {
	Text     string
	ChunkIDs []int64
}

// BuildContext embeds the query, runs a scoped top-k similarity query
// and concatenates chunk texts in rank order, never exceeding MaxChars.
// An empty scope yields model.ErrNoMaterial so the caller has to branch
// on the degraded case instead of silently passing an empty string on.
func (s *Service) BuildContext(ctx context.Context, departmentID int64, gradeLevel int, queryText string, opts Options) (Context, error) {
	queryVec, err := s.index.Embedder().Embed(ctx, queryText)
	if err != nil {
		return Context{}, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.index.Query(ctx, departmentID, gradeLevel, queryVec, opts.K, opts.Exclude)
	if err != nil {
		return Context{}, fmt.Errorf("query index: %w", err)
	}
	if len(matches) == 0 {
		return Context{}, model.ErrNoMaterial
	}

	var sb strings.Builder
	var chunkIDs []int64
	for i, m := range matches {
		piece := m.Text
		if i > 0 {
			piece = chunkSeparator + piece
		}
		if opts.MaxChars > 0 && sb.Len()+len(piece) > opts.MaxChars {
			remaining := opts.MaxChars - sb.Len()
			if remaining <= 0 {
				break
			}
			sb.WriteString(piece[:remaining])
			chunkIDs = append(chunkIDs, m.ChunkID)
			break
		}
		sb.WriteString(piece)
		chunkIDs = append(chunkIDs, m.ChunkID)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Context{}, model.ErrNoMaterial
	}
	return Context{Text: text, ChunkIDs: chunkIDs}, nil
}
