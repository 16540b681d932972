package model

import "time"

// EndReason records why an attempt terminated.
type EndReason string

const (
	EndCompleted        EndReason = "completed"
	EndStudentEnd       EndReason = "student_end"
	EndTimeLimit        EndReason = "time_limit"
	EndTooManyIncorrect EndReason = "too_many_incorrect"
	EndTooSlow          EndReason = "too_slow"
	EndNoMaterial       EndReason = "no_material"
	EndError            EndReason = "error"
)

// Rating is the qualitative bucket derived from the numeric score.
type Rating string

const (
	RatingVeryGood         Rating = "very_good"
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs_improvement"
	RatingBad              Rating = "bad"
)

// RatingFromScore maps a 0..100 score to its qualitative bucket.
// Thresholds are inclusive lower bounds.
func RatingFromScore(score float64) Rating {
	switch {
	case score >= 85:
		return RatingVeryGood
	case score >= 70:
		return RatingGood
	case score >= 50:
		return RatingNeedsImprovement
	default:
		return RatingBad
	}
}

// Department is an academic unit that owns lecture material and exam configs.
type Department struct {
	ID        int64     `json:"id"`
	College   string    `json:"college"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Student is the exam-taking user. Authentication lives outside this
// service; the password hash exists only so seeded accounts are usable
// by the surrounding platform.
type Student struct {
	ID           int64     `json:"id"`
	UniversityID string    `json:"university_id"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	DepartmentID int64     `json:"department_id"`
	GradeLevel   int       `json:"grade_level"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExamConfig holds the adaptive exam parameters for one (department, grade).
// Unique per scope; read-only to the attempt engine.
type ExamConfig struct {
	ID                       int64     `json:"id"`
	DepartmentID             int64     `json:"department_id"`
	GradeLevel               int       `json:"grade_level"`
	MaxDurationSeconds       int       `json:"max_duration_seconds"`
	MaxAttempts              int       `json:"max_attempts"`
	MaxQuestions             int       `json:"max_questions"`
	StopConsecutiveIncorrect int       `json:"stop_consecutive_incorrect"`
	StopSlowSeconds          int       `json:"stop_slow_seconds"`
	DifficultyMin            int       `json:"difficulty_min"`
	DifficultyMax            int       `json:"difficulty_max"`
	Active                   bool      `json:"active"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Material is one uploaded lecture source. Extraction happens upstream;
// this service only ever sees finalized text.
type Material struct {
	ID           int64     `json:"id"`
	DepartmentID int64     `json:"department_id"`
	GradeLevel   int       `json:"grade_level"`
	Title        string    `json:"title"`
	StorageKey   string    `json:"storage_key"`
	CreatedAt    time.Time `json:"created_at"`
}

// Chunk is a bounded span of lecture text, the unit of retrieval.
// Immutable once created; deleted only with its material.
type Chunk struct {
	ID           int64     `json:"id"`
	MaterialID   int64     `json:"material_id"`
	DepartmentID int64     `json:"department_id"`
	GradeLevel   int       `json:"grade_level"`
	Ordinal      int       `json:"ordinal"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}

// Attempt is one student's timed run through the adaptive exam.
// At most one attempt per (student, config) may be open at any time.
type Attempt struct {
	ID                      int64      `json:"id"`
	ExamConfigID            int64      `json:"exam_config_id"`
	StudentID               int64      `json:"student_id"`
	AttemptNumber           int        `json:"attempt_number"`
	StartedAt               time.Time  `json:"started_at"`
	EndedAt                 *time.Time `json:"ended_at,omitempty"`
	EndReason               *EndReason `json:"end_reason,omitempty"`
	ElapsedSeconds          int        `json:"elapsed_seconds"`
	QuestionsAnswered       int        `json:"questions_answered"`
	CorrectnessSum          float64    `json:"correctness_sum"`
	ConsecutiveIncorrect    int        `json:"consecutive_incorrect"`
	MaxConsecutiveIncorrect int        `json:"max_consecutive_incorrect"`
	Score                   *float64   `json:"score,omitempty"`
	Rating                  *Rating    `json:"rating,omitempty"`
}

// Open reports whether the attempt has not yet ended.
func (a *Attempt) Open() bool { return a.EndedAt == nil }

// Question is one generated question within an attempt. Immutable.
type Question struct {
	ID           int64     `json:"id"`
	AttemptID    int64     `json:"attempt_id"`
	Ordinal      int       `json:"ordinal"`
	Text         string    `json:"text"`
	IdealAnswer  string    `json:"-"`
	Context      string    `json:"-"`
	UsedChunkIDs []int64   `json:"-"`
	Difficulty   int       `json:"difficulty"`
	ShownAt      time.Time `json:"shown_at"`
}

// Answer is the single graded response to a question.
type Answer struct {
	QuestionID       int64     `json:"question_id"`
	AnsweredAt       time.Time `json:"answered_at"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	StudentAnswer    string    `json:"student_answer"`
	Correctness      float64   `json:"correctness"`
	IsCorrect        bool      `json:"is_correct"`
	Feedback         string    `json:"feedback"`
}

// QuestionView pairs a question with its answer (if any) for display.
type QuestionView struct {
	Question Question `json:"question"`
	Answer   *Answer  `json:"answer,omitempty"`
}

// AttemptView combines an attempt with its question/answer history.
type AttemptView struct {
	Attempt   Attempt        `json:"attempt"`
	Questions []QuestionView `json:"questions"`
}
