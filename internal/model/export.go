package model

import "time"

// ExamExport is the top-level JSON structure for attempt export.
type ExamExport struct {
	Subject     string          `json:"subject"`
	Date        string          `json:"date"`
	NumAttempts int             `json:"num_attempts"`
	Results     []StudentResult `json:"results"`
}

// StudentResult holds one student's attempt data for export.
type StudentResult struct {
	UniversityID  string           `json:"university_id"`
	FullName      string           `json:"full_name"`
	AttemptNumber int              `json:"attempt_number"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
	EndReason     *EndReason       `json:"end_reason,omitempty"`
	Score         *float64         `json:"score,omitempty"`
	Rating        *Rating          `json:"rating,omitempty"`
	Questions     []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Ordinal       int      `json:"ordinal"`
	Text          string   `json:"text"`
	Difficulty    int      `json:"difficulty"`
	IdealAnswer   string   `json:"ideal_answer"`
	StudentAnswer string   `json:"student_answer,omitempty"`
	TimeTaken     int      `json:"time_taken_seconds,omitempty"`
	Correctness   *float64 `json:"correctness,omitempty"`
	IsCorrect     *bool    `json:"is_correct,omitempty"`
	Feedback      string   `json:"feedback,omitempty"`
}
