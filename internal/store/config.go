package store

import (
	"database/sql"
	"time"

	"github.com/quizforge/adexam/internal/model"
)

// UpsertConfig inserts or updates the exam config for a (department, grade).
func (s *Store) UpsertConfig(cfg model.ExamConfig) (int64, error) {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO exam_configs (department_id, grade_level, max_duration_seconds, max_attempts,
			max_questions, stop_consecutive_incorrect, stop_slow_seconds, difficulty_min, difficulty_max,
			active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(department_id, grade_level) DO UPDATE SET
			max_duration_seconds = excluded.max_duration_seconds,
			max_attempts = excluded.max_attempts,
			max_questions = excluded.max_questions,
			stop_consecutive_incorrect = excluded.stop_consecutive_incorrect,
			stop_slow_seconds = excluded.stop_slow_seconds,
			difficulty_min = excluded.difficulty_min,
			difficulty_max = excluded.difficulty_max,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		cfg.DepartmentID, cfg.GradeLevel, cfg.MaxDurationSeconds, cfg.MaxAttempts,
		cfg.MaxQuestions, cfg.StopConsecutiveIncorrect, cfg.StopSlowSeconds,
		cfg.DifficultyMin, cfg.DifficultyMax, cfg.Active, now, now,
	)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRow(
		`SELECT id FROM exam_configs WHERE department_id = ? AND grade_level = ?`,
		cfg.DepartmentID, cfg.GradeLevel,
	).Scan(&id)
	return id, err
}

const configColumns = `id, department_id, grade_level, max_duration_seconds, max_attempts,
	max_questions, stop_consecutive_incorrect, stop_slow_seconds, difficulty_min, difficulty_max,
	active, created_at, updated_at`

func scanConfig(row *sql.Row) (model.ExamConfig, error) {
	var cfg model.ExamConfig
	err := row.Scan(&cfg.ID, &cfg.DepartmentID, &cfg.GradeLevel, &cfg.MaxDurationSeconds,
		&cfg.MaxAttempts, &cfg.MaxQuestions, &cfg.StopConsecutiveIncorrect, &cfg.StopSlowSeconds,
		&cfg.DifficultyMin, &cfg.DifficultyMax, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt)
	return cfg, err
}

// GetConfig returns an exam config by ID.
func (s *Store) GetConfig(id int64) (model.ExamConfig, error) {
	return scanConfig(s.db.QueryRow(
		`SELECT `+configColumns+` FROM exam_configs WHERE id = ?`, id))
}

// GetActiveConfig returns the active exam config for a scope, or
// model.ErrConfigurationMissing if none exists.
func (s *Store) GetActiveConfig(departmentID int64, gradeLevel int) (model.ExamConfig, error) {
	cfg, err := scanConfig(s.db.QueryRow(
		`SELECT `+configColumns+` FROM exam_configs
		 WHERE department_id = ? AND grade_level = ? AND active = 1`,
		departmentID, gradeLevel))
	if err == sql.ErrNoRows {
		return cfg, model.ErrConfigurationMissing
	}
	return cfg, err
}

// ListConfigs returns all exam configs ordered by scope.
func (s *Store) ListConfigs() ([]model.ExamConfig, error) {
	rows, err := s.db.Query(
		`SELECT ` + configColumns + ` FROM exam_configs ORDER BY department_id, grade_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var configs []model.ExamConfig
	for rows.Next() {
		var cfg model.ExamConfig
		if err := rows.Scan(&cfg.ID, &cfg.DepartmentID, &cfg.GradeLevel, &cfg.MaxDurationSeconds,
			&cfg.MaxAttempts, &cfg.MaxQuestions, &cfg.StopConsecutiveIncorrect, &cfg.StopSlowSeconds,
			&cfg.DifficultyMin, &cfg.DifficultyMax, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}
