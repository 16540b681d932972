package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A plain :memory: database exists per connection; cap the pool so
	// every caller sees the same one.
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS departments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		college TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (college, name)
	);

	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		university_id TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		department_id INTEGER NOT NULL,
		grade_level INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (department_id) REFERENCES departments(id)
	);

	CREATE TABLE IF NOT EXISTS exam_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		department_id INTEGER NOT NULL,
		grade_level INTEGER NOT NULL,
		max_duration_seconds INTEGER NOT NULL,
		max_attempts INTEGER NOT NULL,
		max_questions INTEGER NOT NULL,
		stop_consecutive_incorrect INTEGER NOT NULL,
		stop_slow_seconds INTEGER NOT NULL,
		difficulty_min INTEGER NOT NULL DEFAULT 2,
		difficulty_max INTEGER NOT NULL DEFAULT 4,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (department_id) REFERENCES departments(id),
		UNIQUE (department_id, grade_level)
	);

	CREATE TABLE IF NOT EXISTS lecture_materials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		department_id INTEGER NOT NULL,
		grade_level INTEGER NOT NULL,
		title TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (department_id) REFERENCES departments(id)
	);

	CREATE TABLE IF NOT EXISTS lecture_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		material_id INTEGER NOT NULL,
		department_id INTEGER NOT NULL,
		grade_level INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (material_id) REFERENCES lecture_materials(id) ON DELETE CASCADE,
		UNIQUE (material_id, ordinal)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_scope ON lecture_chunks(department_id, grade_level);

	CREATE TABLE IF NOT EXISTS chunk_embeddings (
		chunk_id INTEGER PRIMARY KEY,
		model_id TEXT NOT NULL,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (chunk_id) REFERENCES lecture_chunks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS exam_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_config_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		attempt_number INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		end_reason TEXT,
		elapsed_seconds INTEGER NOT NULL DEFAULT 0,
		questions_answered INTEGER NOT NULL DEFAULT 0,
		correctness_sum REAL NOT NULL DEFAULT 0,
		consecutive_incorrect INTEGER NOT NULL DEFAULT 0,
		max_consecutive_incorrect INTEGER NOT NULL DEFAULT 0,
		score REAL,
		rating TEXT,
		FOREIGN KEY (exam_config_id) REFERENCES exam_configs(id),
		FOREIGN KEY (student_id) REFERENCES students(id),
		UNIQUE (exam_config_id, student_id, attempt_number)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uq_attempt_open
		ON exam_attempts(student_id, exam_config_id) WHERE ended_at IS NULL;

	CREATE TABLE IF NOT EXISTS exam_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		text TEXT NOT NULL,
		ideal_answer TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		used_chunk_ids TEXT NOT NULL DEFAULT '[]',
		difficulty INTEGER NOT NULL DEFAULT 0,
		shown_at DATETIME NOT NULL,
		FOREIGN KEY (attempt_id) REFERENCES exam_attempts(id),
		UNIQUE (attempt_id, ordinal)
	);

	CREATE TABLE IF NOT EXISTS exam_answers (
		question_id INTEGER PRIMARY KEY,
		answered_at DATETIME NOT NULL,
		time_taken_seconds INTEGER NOT NULL DEFAULT 0,
		student_answer TEXT NOT NULL DEFAULT '',
		correctness REAL NOT NULL DEFAULT 0,
		is_correct INTEGER NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (question_id) REFERENCES exam_questions(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure
// touching the given table. modernc/sqlite surfaces these as plain
// errors with the constraint name in the message.
func isUniqueViolation(err error, table string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, table)
}
