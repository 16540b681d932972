package vecindex

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/quizforge/adexam/internal/model"
	"github.com/quizforge/adexam/internal/store"
)

// Index stores one vector per chunk and answers top-k similarity
// queries scoped by (department, grade). The scan is a brute-force dot
// product over the filtered candidate set. Per-scope corpora are
// lecture-sized, so a linear scan is fast enough and the interface
// stays stable for a future ANN backend.
type Index struct {
	store    *store.Store
	embedder Embedder
}

// New creates an index over the given store and embedder.
func New(s *store.Store, e Embedder) *Index {
	return &Index{store: s, embedder: e}
}

// Embedder returns the index's embedder.
func (idx *Index) Embedder() Embedder { return idx.embedder }

// Match is one similarity query result.
type Match struct {
	ChunkID int64
	Ordinal int
	Text    string
	Score   float32
}

// Upsert stores a vector for a chunk, replacing any embedding produced
// by a different model version. Fails with model.ErrDimensionMismatch
// when the vector length does not match the configured dimension.
func (idx *Index) Upsert(ctx context.Context, chunkID int64, vec []float32, modelID string) error {
	if len(vec) != idx.embedder.Dimension() {
		return fmt.Errorf("chunk %d: vector length %d vs dimension %d: %w",
			chunkID, len(vec), idx.embedder.Dimension(), model.ErrDimensionMismatch)
	}
	return idx.store.UpsertEmbedding(chunkID, modelID, len(vec), EncodeVector(vec))
}

// Query returns up to k chunks with the highest dot-product similarity
// among current-model embeddings in scope. Ties break toward the lower
// chunk ordinal, then the lower chunk ID, so results are deterministic.
// An empty scope yields an empty slice, never an error.
func (idx *Index) Query(ctx context.Context, departmentID int64, gradeLevel int, queryVec []float32, k int, exclude map[int64]bool) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(queryVec) != idx.embedder.Dimension() {
		return nil, fmt.Errorf("query vector length %d vs dimension %d: %w",
			len(queryVec), idx.embedder.Dimension(), model.ErrDimensionMismatch)
	}

	rows, err := idx.store.ListEmbeddingsForScope(departmentID, gradeLevel, idx.embedder.ModelID())
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}

	var matches []Match
	for _, r := range rows {
		if exclude[r.ChunkID] {
			continue
		}
		vec := DecodeVector(r.Vector)
		if vec == nil || len(vec) != len(queryVec) {
			continue
		}
		matches = append(matches, Match{
			ChunkID: r.ChunkID,
			Ordinal: r.Ordinal,
			Text:    r.Text,
			Score:   Dot(queryVec, vec),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Ordinal != matches[j].Ordinal {
			return matches[i].Ordinal < matches[j].Ordinal
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Delete removes a chunk's embedding. Idempotent.
func (idx *Index) Delete(ctx context.Context, chunkID int64) error {
	return idx.store.DeleteEmbedding(chunkID)
}

// ReindexOptions scopes a reindex run. Zero DepartmentID or GradeLevel
// means unscoped on that axis.
type ReindexOptions struct {
	DepartmentID int64
	GradeLevel   int
	Force        bool
	BatchSize    int
	Parallelism  int
}

// Reindex recomputes embeddings for stale chunks in scope with the
// current model. Each batch commits independently, so an interrupted
// run leaves finished chunks current and unfinished chunks stale on
// the old model id. Query's model filter keeps the two from ever
// mixing, and a rerun picks up exactly where the failure left off.
func (idx *Index) Reindex(ctx context.Context, opts ReindexOptions) (int, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 128
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 2
	}

	modelID := idx.embedder.ModelID()
	chunkIDs, err := idx.store.ListStaleChunkIDs(opts.DepartmentID, opts.GradeLevel, modelID, opts.Force)
	if err != nil {
		return 0, fmt.Errorf("list stale chunks: %w", err)
	}
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	slog.Info("reindexing chunks",
		"count", len(chunkIDs),
		"model", modelID,
		"department_id", opts.DepartmentID,
		"grade_level", opts.GradeLevel,
		"force", opts.Force,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for start := 0; start < len(chunkIDs); start += batchSize {
		end := min(start+batchSize, len(chunkIDs))
		batch := chunkIDs[start:end]
		g.Go(func() error {
			return idx.reindexBatch(ctx, batch, modelID)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(chunkIDs), nil
}

func (idx *Index) reindexBatch(ctx context.Context, chunkIDs []int64, modelID string) error {
	texts := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		c, err := idx.store.GetChunk(id)
		if err != nil {
			return fmt.Errorf("load chunk %d: %w", id, err)
		}
		texts[i] = c.Text
	}

	vecs, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}

	for i, id := range chunkIDs {
		if err := idx.Upsert(ctx, id, vecs[i], modelID); err != nil {
			return err
		}
	}
	return nil
}

// EmbedChunks computes and stores embeddings for freshly ingested
// chunks. Used on the material upload path.
func (idx *Index) EmbedChunks(ctx context.Context, chunkIDs []int64) error {
	return idx.reindexBatch(ctx, chunkIDs, idx.embedder.ModelID())
}

// Stats returns index coverage for the current model.
func (idx *Index) Stats() (store.IndexStats, error) {
	return idx.store.GetIndexStats(idx.embedder.ModelID())
}
