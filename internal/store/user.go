package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/quizforge/adexam/internal/model"
)

// CreateDepartment inserts a department.
func (s *Store) CreateDepartment(d model.Department) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO departments (college, name, created_at) VALUES (?, ?, ?)`,
		d.College, d.Name, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetDepartment returns a department by ID.
func (s *Store) GetDepartment(id int64) (model.Department, error) {
	var d model.Department
	err := s.db.QueryRow(
		`SELECT id, college, name, created_at FROM departments WHERE id = ?`, id,
	).Scan(&d.ID, &d.College, &d.Name, &d.CreatedAt)
	return d, err
}

// ListDepartments returns all departments.
func (s *Store) ListDepartments() ([]model.Department, error) {
	rows, err := s.db.Query(`SELECT id, college, name, created_at FROM departments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var departments []model.Department
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.ID, &d.College, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// CreateStudent inserts a student.
func (s *Store) CreateStudent(st model.Student) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO students (university_id, full_name, password_hash, department_id, grade_level, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.UniversityID, st.FullName, st.PasswordHash, st.DepartmentID, st.GradeLevel, st.Active, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create student", "university_id", st.UniversityID, "error", err)
		return 0, err
	}
	return res.LastInsertId()
}

// GetStudent returns a student by ID, or nil if not found.
func (s *Store) GetStudent(id int64) (*model.Student, error) {
	var st model.Student
	err := s.db.QueryRow(
		`SELECT id, university_id, full_name, password_hash, department_id, grade_level, active, created_at
		 FROM students WHERE id = ?`, id,
	).Scan(&st.ID, &st.UniversityID, &st.FullName, &st.PasswordHash, &st.DepartmentID, &st.GradeLevel, &st.Active, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// StudentCount returns the total number of students.
func (s *Store) StudentCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM students`).Scan(&count)
	return count, err
}
