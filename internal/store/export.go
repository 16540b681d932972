package store

import (
	"fmt"

	"github.com/quizforge/adexam/internal/model"
)

// ExportAllAttempts builds export-ready results from every attempt in
// the database, ordered by student and attempt number.
func (s *Store) ExportAllAttempts() ([]model.StudentResult, error) {
	rows, err := s.db.Query(
		`SELECT ` + attemptColumns + ` FROM exam_attempts ORDER BY student_id, attempt_number`)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []model.StudentResult
	for _, a := range attempts {
		student, err := s.GetStudent(a.StudentID)
		if err != nil {
			return nil, fmt.Errorf("get student %d: %w", a.StudentID, err)
		}

		view, err := s.GetAttemptView(a.ID)
		if err != nil {
			return nil, fmt.Errorf("get attempt %d: %w", a.ID, err)
		}

		var questions []model.QuestionResult
		for _, qv := range view.Questions {
			qr := model.QuestionResult{
				Ordinal:     qv.Question.Ordinal,
				Text:        qv.Question.Text,
				Difficulty:  qv.Question.Difficulty,
				IdealAnswer: qv.Question.IdealAnswer,
			}
			if qv.Answer != nil {
				qr.StudentAnswer = qv.Answer.StudentAnswer
				qr.TimeTaken = qv.Answer.TimeTakenSeconds
				qr.Correctness = &qv.Answer.Correctness
				qr.IsCorrect = &qv.Answer.IsCorrect
				qr.Feedback = qv.Answer.Feedback
			}
			questions = append(questions, qr)
		}

		res := model.StudentResult{
			AttemptNumber: a.AttemptNumber,
			StartedAt:     a.StartedAt,
			EndedAt:       a.EndedAt,
			EndReason:     a.EndReason,
			Score:         a.Score,
			Rating:        a.Rating,
			Questions:     questions,
		}
		if student != nil {
			res.UniversityID = student.UniversityID
			res.FullName = student.FullName
		}
		results = append(results, res)
	}

	return results, nil
}
