package material

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quizforge/adexam/internal/model"
	"github.com/quizforge/adexam/internal/store"
	"github.com/quizforge/adexam/internal/vecindex"
)

// Service ingests lecture text: chunk, persist, embed. Text extraction
// from source documents happens upstream.
type Service struct {
	store   *store.Store
	index   *vecindex.Index
	chunker *Chunker
}

func NewService(st *store.Store, index *vecindex.Index, chunker *Chunker) *Service {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	return &Service{store: st, index: index, chunker: chunker}
}

// Ingest stores one lecture material and embeds its chunks. Embedding
// failures leave the chunks in place for a later reindex.
func (s *Service) Ingest(ctx context.Context, departmentID int64, gradeLevel int, title, text string) (model.Material, error) {
	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return model.Material{}, fmt.Errorf("material %q contains no text", title)
	}

	m := model.Material{
		DepartmentID: departmentID,
		GradeLevel:   gradeLevel,
		Title:        title,
		StorageKey:   uuid.NewString(),
	}
	id, err := s.store.CreateMaterial(m, chunks)
	if err != nil {
		return model.Material{}, fmt.Errorf("store material: %w", err)
	}
	created, err := s.store.GetMaterial(id)
	if err != nil {
		return model.Material{}, err
	}
	slog.Info("material ingested",
		"material_id", id, "title", title,
		"department_id", departmentID, "grade_level", gradeLevel,
		"chunks", len(chunks))

	chunkIDs, err := s.materialChunkIDs(id, departmentID, gradeLevel)
	if err != nil {
		return created, err
	}
	if err := s.index.EmbedChunks(ctx, chunkIDs); err != nil {
		slog.Warn("embedding failed, chunks remain unindexed until reindex",
			"material_id", id, "error", err)
	}
	return created, nil
}

// Delete removes a material with its chunks and embeddings.
func (s *Service) Delete(id int64) error {
	return s.store.DeleteMaterial(id)
}

func (s *Service) materialChunkIDs(materialID, departmentID int64, gradeLevel int) ([]int64, error) {
	ids, err := s.store.ListChunkIDs(departmentID, gradeLevel)
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, id := range ids {
		chunk, err := s.store.GetChunk(id)
		if err != nil {
			return nil, err
		}
		if chunk.MaterialID == materialID {
			out = append(out, id)
		}
	}
	return out, nil
}
