package store

import (
	"fmt"
	"time"

	"github.com/quizforge/adexam/internal/model"
)

// CreateMaterial persists a material together with its ordered chunks
// in one transaction. Chunk texts must already be extracted upstream.
func (s *Store) CreateMaterial(m model.Material, chunkTexts []string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.Exec(
		`INSERT INTO lecture_materials (department_id, grade_level, title, storage_key, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.DepartmentID, m.GradeLevel, m.Title, m.StorageKey, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert material: %w", err)
	}
	materialID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, text := range chunkTexts {
		_, err := tx.Exec(
			`INSERT INTO lecture_chunks (material_id, department_id, grade_level, ordinal, text, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			materialID, m.DepartmentID, m.GradeLevel, i, text, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	return materialID, tx.Commit()
}

// GetMaterial returns a material by ID.
func (s *Store) GetMaterial(id int64) (model.Material, error) {
	var m model.Material
	err := s.db.QueryRow(
		`SELECT id, department_id, grade_level, title, storage_key, created_at
		 FROM lecture_materials WHERE id = ?`, id,
	).Scan(&m.ID, &m.DepartmentID, &m.GradeLevel, &m.Title, &m.StorageKey, &m.CreatedAt)
	return m, err
}

// ListMaterials returns materials in a scope, newest first.
func (s *Store) ListMaterials(departmentID int64, gradeLevel int) ([]model.Material, error) {
	rows, err := s.db.Query(
		`SELECT id, department_id, grade_level, title, storage_key, created_at
		 FROM lecture_materials WHERE department_id = ? AND grade_level = ?
		 ORDER BY created_at DESC`, departmentID, gradeLevel,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var materials []model.Material
	for rows.Next() {
		var m model.Material
		if err := rows.Scan(&m.ID, &m.DepartmentID, &m.GradeLevel, &m.Title, &m.StorageKey, &m.CreatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// DeleteMaterial removes a material; its chunks and their embeddings
// cascade. Idempotent.
func (s *Store) DeleteMaterial(id int64) error {
	_, err := s.db.Exec(`DELETE FROM lecture_materials WHERE id = ?`, id)
	return err
}

// GetChunk returns a chunk by ID.
func (s *Store) GetChunk(id int64) (model.Chunk, error) {
	var c model.Chunk
	err := s.db.QueryRow(
		`SELECT id, material_id, department_id, grade_level, ordinal, text, created_at
		 FROM lecture_chunks WHERE id = ?`, id,
	).Scan(&c.ID, &c.MaterialID, &c.DepartmentID, &c.GradeLevel, &c.Ordinal, &c.Text, &c.CreatedAt)
	return c, err
}

// ListChunkIDs returns chunk IDs in a scope in insertion order. A nil
// departmentID or zero gradeLevel leaves that filter off.
func (s *Store) ListChunkIDs(departmentID int64, gradeLevel int) ([]int64, error) {
	query := `SELECT id FROM lecture_chunks WHERE 1=1`
	var args []any
	if departmentID != 0 {
		query += ` AND department_id = ?`
		args = append(args, departmentID)
	}
	if gradeLevel != 0 {
		query += ` AND grade_level = ?`
		args = append(args, gradeLevel)
	}
	query += ` ORDER BY id`
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

// ChunkCount returns the number of chunks in a scope.
func (s *Store) ChunkCount(departmentID int64, gradeLevel int) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM lecture_chunks WHERE department_id = ? AND grade_level = ?`,
		departmentID, gradeLevel,
	).Scan(&count)
	return count, err
}
