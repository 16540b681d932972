package model

import "errors"

// Client-visible state conditions. These reflect the attempt lifecycle,
// not system failures, and are not retryable.
var (
	ErrStudentNotFound         = errors.New("student not found")
	ErrConfigurationMissing    = errors.New("no active exam config for this department and grade")
	ErrAttemptLimitExceeded    = errors.New("attempt limit exceeded")
	ErrAttemptAlreadyOpen      = errors.New("an attempt is already open for this student")
	ErrAttemptNotOpen          = errors.New("attempt is not open")
	ErrQuestionAlreadyAnswered = errors.New("question already answered")
)

// ErrDimensionMismatch indicates an embedding vector whose length does
// not match the configured dimension. Configuration error, fatal.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrNoMaterial signals an empty retrieval scope. Degraded-mode signal,
// not fatal; callers must branch on it explicitly.
var ErrNoMaterial = errors.New("no lecture material in scope")

// Transient external failures. Attempt state is never mutated before
// the external call succeeds, so retrying the same operation is safe.
var (
	ErrGenerationFailed = errors.New("question generation failed")
	ErrGradingFailed    = errors.New("answer grading failed")
)

// Retryable reports whether err is a transient failure the caller may
// retry without any state cleanup.
func Retryable(err error) bool {
	return errors.Is(err, ErrGenerationFailed) || errors.Is(err, ErrGradingFailed)
}
