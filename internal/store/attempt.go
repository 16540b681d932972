package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quizforge/adexam/internal/model"
)

// CreateAttempt inserts a new attempt row. A partial unique index on
// (student_id, exam_config_id) WHERE ended_at IS NULL makes the
// "no open attempt exists" check-and-create atomic: the losing side of
// a concurrent start gets model.ErrAttemptAlreadyOpen.
func (s *Store) CreateAttempt(configID, studentID int64, attemptNumber int) (model.Attempt, error) {
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO exam_attempts (exam_config_id, student_id, attempt_number, started_at)
		 VALUES (?, ?, ?, ?)`,
		configID, studentID, attemptNumber, now,
	)
	if isUniqueViolation(err, "exam_attempts") {
		return model.Attempt{}, model.ErrAttemptAlreadyOpen
	}
	if err != nil {
		return model.Attempt{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Attempt{}, err
	}
	return model.Attempt{
		ID:            id,
		ExamConfigID:  configID,
		StudentID:     studentID,
		AttemptNumber: attemptNumber,
		StartedAt:     now,
	}, nil
}

const attemptColumns = `id, exam_config_id, student_id, attempt_number, started_at, ended_at,
	end_reason, elapsed_seconds, questions_answered, correctness_sum, consecutive_incorrect,
	max_consecutive_incorrect, score, rating`

func scanAttempt(scan func(dest ...any) error) (model.Attempt, error) {
	var a model.Attempt
	var endReason, rating sql.NullString
	var score sql.NullFloat64
	var endedAt sql.NullTime
	err := scan(&a.ID, &a.ExamConfigID, &a.StudentID, &a.AttemptNumber, &a.StartedAt, &endedAt,
		&endReason, &a.ElapsedSeconds, &a.QuestionsAnswered, &a.CorrectnessSum,
		&a.ConsecutiveIncorrect, &a.MaxConsecutiveIncorrect, &score, &rating)
	if err != nil {
		return a, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		a.EndedAt = &t
	}
	if endReason.Valid {
		r := model.EndReason(endReason.String)
		a.EndReason = &r
	}
	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	if rating.Valid {
		r := model.Rating(rating.String)
		a.Rating = &r
	}
	return a, nil
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(id int64) (model.Attempt, error) {
	row := s.db.QueryRow(`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = ?`, id)
	return scanAttempt(row.Scan)
}

// GetOpenAttempt returns the open attempt for (student, config), or nil.
func (s *Store) GetOpenAttempt(studentID, configID int64) (*model.Attempt, error) {
	row := s.db.QueryRow(
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE student_id = ? AND exam_config_id = ? AND ended_at IS NULL`,
		studentID, configID,
	)
	a, err := scanAttempt(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CountAttempts returns the number of attempts for (student, config).
func (s *Store) CountAttempts(studentID, configID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM exam_attempts WHERE student_id = ? AND exam_config_id = ?`,
		studentID, configID,
	).Scan(&count)
	return count, err
}

// ListAttempts returns all of a student's attempts, newest first.
func (s *Store) ListAttempts(studentID int64) ([]model.Attempt, error) {
	rows, err := s.db.Query(
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE student_id = ? ORDER BY started_at DESC`,
		studentID,
	)
	if err != nil {
		return nil, err
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
	return attempts, rows.Err()
}

// FinalizeAttempt marks an attempt ended with its reason, elapsed time,
// score and rating. The WHERE guard keeps finalization idempotent: a
// second finalize of the same attempt changes nothing.
func (s *Store) FinalizeAttempt(id int64, endedAt time.Time, reason model.EndReason, elapsedSeconds int, score float64, rating model.Rating) error {
	_, err := s.db.Exec(
		`UPDATE exam_attempts
		 SET ended_at = ?, end_reason = ?, elapsed_seconds = ?, score = ?, rating = ?
		 WHERE id = ? AND ended_at IS NULL`,
		endedAt, reason, elapsedSeconds, score, rating, id,
	)
	return err
}

// InsertQuestion persists a generated question.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	usedIDs, err := json.Marshal(q.UsedChunkIDs)
	if err != nil {
		return 0, fmt.Errorf("marshal used chunk ids: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO exam_questions (attempt_id, ordinal, text, ideal_answer, context, used_chunk_ids, difficulty, shown_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.AttemptID, q.Ordinal, q.Text, q.IdealAnswer, q.Context, string(usedIDs), q.Difficulty, q.ShownAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const questionColumns = `id, attempt_id, ordinal, text, ideal_answer, context, used_chunk_ids, difficulty, shown_at`

func scanQuestion(scan func(dest ...any) error) (model.Question, error) {
	var q model.Question
	var usedIDs string
	err := scan(&q.ID, &q.AttemptID, &q.Ordinal, &q.Text, &q.IdealAnswer, &q.Context,
		&usedIDs, &q.Difficulty, &q.ShownAt)
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(usedIDs), &q.UsedChunkIDs); err != nil {
		return q, fmt.Errorf("unmarshal used chunk ids: %w", err)
	}
	return q, nil
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionColumns+` FROM exam_questions WHERE id = ?`, id)
	return scanQuestion(row.Scan)
}

// LatestQuestion returns the highest-ordinal question of an attempt, or nil.
func (s *Store) LatestQuestion(attemptID int64) (*model.Question, error) {
	row := s.db.QueryRow(
		`SELECT `+questionColumns+` FROM exam_questions
		 WHERE attempt_id = ? ORDER BY ordinal DESC LIMIT 1`, attemptID,
	)
	q, err := scanQuestion(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQuestions returns an attempt's questions in ordinal order.
func (s *Store) ListQuestions(attemptID int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT `+questionColumns+` FROM exam_questions WHERE attempt_id = ? ORDER BY ordinal`,
		attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// RecordAnswer persists an answer and the attempt counters it implies
// in one transaction. The answers table's primary key on question_id
// rejects a duplicate submission with model.ErrQuestionAlreadyAnswered,
// leaving the counters untouched.
func (s *Store) RecordAnswer(ans model.Answer, attempt model.Attempt) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO exam_answers (question_id, answered_at, time_taken_seconds, student_answer, correctness, is_correct, feedback)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ans.QuestionID, ans.AnsweredAt, ans.TimeTakenSeconds, ans.StudentAnswer,
		ans.Correctness, ans.IsCorrect, ans.Feedback,
	)
	if isUniqueViolation(err, "exam_answers") {
		return model.ErrQuestionAlreadyAnswered
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		`UPDATE exam_attempts
		 SET questions_answered = ?, correctness_sum = ?, consecutive_incorrect = ?, max_consecutive_incorrect = ?
		 WHERE id = ?`,
		attempt.QuestionsAnswered, attempt.CorrectnessSum, attempt.ConsecutiveIncorrect,
		attempt.MaxConsecutiveIncorrect, attempt.ID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetAnswer returns the answer for a question, or nil if not answered.
func (s *Store) GetAnswer(questionID int64) (*model.Answer, error) {
	var a model.Answer
	err := s.db.QueryRow(
		`SELECT question_id, answered_at, time_taken_seconds, student_answer, correctness, is_correct, feedback
		 FROM exam_answers WHERE question_id = ?`, questionID,
	).Scan(&a.QuestionID, &a.AnsweredAt, &a.TimeTakenSeconds, &a.StudentAnswer, &a.Correctness, &a.IsCorrect, &a.Feedback)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AvgAnswerTime returns the mean time_taken_seconds over an attempt's
// answers, or 0 when none exist.
func (s *Store) AvgAnswerTime(attemptID int64) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT AVG(a.time_taken_seconds)
		 FROM exam_answers a
		 JOIN exam_questions q ON q.id = a.question_id
		 WHERE q.attempt_id = ?`, attemptID,
	).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// ListRecentQuestionTexts returns a student's most recent question
// texts across all attempts of a config, newest first, bounded by
// limit. This feeds the cross-retake avoid list.
func (s *Store) ListRecentQuestionTexts(studentID, configID int64, limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT q.text FROM exam_questions q
		 JOIN exam_attempts a ON a.id = q.attempt_id
		 WHERE a.student_id = ? AND a.exam_config_id = ?
		 ORDER BY q.shown_at DESC LIMIT ?`,
		studentID, configID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// ListRecentUsedChunkIDs collects the chunk IDs referenced by a
// student's most recent questions for a config, bounded by the number
// of questions considered.
func (s *Store) ListRecentUsedChunkIDs(studentID, configID int64, questionLimit int) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT q.used_chunk_ids FROM exam_questions q
		 JOIN exam_attempts a ON a.id = q.attempt_id
		 WHERE a.student_id = ? AND a.exam_config_id = ?
		 ORDER BY q.shown_at DESC LIMIT ?`,
		studentID, configID, questionLimit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[int64]bool)
	var ids []int64
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var chunkIDs []int64
		if err := json.Unmarshal([]byte(raw), &chunkIDs); err != nil {
			return nil, fmt.Errorf("unmarshal used chunk ids: %w", err)
		}
		for _, id := range chunkIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, rows.Err()
}

// GetAttemptView builds the read projection of an attempt with its
// question/answer history.
func (s *Store) GetAttemptView(attemptID int64) (*model.AttemptView, error) {
	attempt, err := s.GetAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	questions, err := s.ListQuestions(attemptID)
	if err != nil {
		return nil, err
	}
	view := &model.AttemptView{Attempt: attempt}
	for _, q := range questions {
		ans, err := s.GetAnswer(q.ID)
		if err != nil {
			return nil, err
		}
		view.Questions = append(view.Questions, model.QuestionView{Question: q, Answer: ans})
	}
	return view, nil
}
