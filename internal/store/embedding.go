package store

import (
	"time"
)

// EmbeddingRow carries a stored vector blob with the chunk fields the
// vector index needs for scanning and tie-breaking.
type EmbeddingRow struct {
	ChunkID int64
	Ordinal int
	Text    string
	ModelID string
	Dim     int
	Vector  []byte
}

// UpsertEmbedding stores the vector for a chunk, replacing any existing
// row regardless of which model produced it.
func (s *Store) UpsertEmbedding(chunkID int64, modelID string, dim int, vector []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO chunk_embeddings (chunk_id, model_id, dim, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET
			model_id = excluded.model_id,
			dim = excluded.dim,
			vector = excluded.vector,
			created_at = excluded.created_at`,
		chunkID, modelID, dim, vector, time.Now(),
	)
	return err
}

// DeleteEmbedding removes the embedding for a chunk. Idempotent.
func (s *Store) DeleteEmbedding(chunkID int64) error {
	_, err := s.db.Exec(`DELETE FROM chunk_embeddings WHERE chunk_id = ?`, chunkID)
	return err
}

// ListEmbeddingsForScope returns embedding rows for all chunks in a
// (department, grade) scope whose model matches modelID. Stale rows
// produced by other models are excluded here, which is what keeps
// partially reindexed corpora out of similarity results.
func (s *Store) ListEmbeddingsForScope(departmentID int64, gradeLevel int, modelID string) ([]EmbeddingRow, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.ordinal, c.text, e.model_id, e.dim, e.vector
		 FROM lecture_chunks c
		 JOIN chunk_embeddings e ON e.chunk_id = c.id
		 WHERE c.department_id = ? AND c.grade_level = ? AND e.model_id = ?
		 ORDER BY c.id`,
		departmentID, gradeLevel, modelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []EmbeddingRow
	for rows.Next() {
		var r EmbeddingRow
		if err := rows.Scan(&r.ChunkID, &r.Ordinal, &r.Text, &r.ModelID, &r.Dim, &r.Vector); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ListStaleChunkIDs returns chunk IDs in scope that either have no
// embedding or one produced by a different model. With force set, all
// chunk IDs in scope are returned.
func (s *Store) ListStaleChunkIDs(departmentID int64, gradeLevel int, modelID string, force bool) ([]int64, error) {
	query := `SELECT c.id FROM lecture_chunks c
		 LEFT JOIN chunk_embeddings e ON e.chunk_id = c.id
		 WHERE 1=1`
	var args []any
	if departmentID != 0 {
		query += ` AND c.department_id = ?`
		args = append(args, departmentID)
	}
	if gradeLevel != 0 {
		query += ` AND c.grade_level = ?`
		args = append(args, gradeLevel)
	}
	if !force {
		query += ` AND (e.chunk_id IS NULL OR e.model_id != ?)`
		args = append(args, modelID)
	}
	query += ` ORDER BY c.id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IndexStats summarizes index coverage for the admin surface.
type IndexStats struct {
	TotalChunks    int `json:"total_chunks"`
	EmbeddedChunks int `json:"embedded_chunks"`
	CurrentModel   int `json:"current_model_chunks"`
	StaleChunks    int `json:"stale_chunks"`
}

// GetIndexStats returns index coverage counts for the given model.
func (s *Store) GetIndexStats(modelID string) (IndexStats, error) {
	var st IndexStats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM lecture_chunks`).Scan(&st.TotalChunks); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunk_embeddings`).Scan(&st.EmbeddedChunks); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM chunk_embeddings WHERE model_id = ?`, modelID,
	).Scan(&st.CurrentModel); err != nil {
		return st, err
	}
	st.StaleChunks = st.TotalChunks - st.CurrentModel
	return st, nil
}
