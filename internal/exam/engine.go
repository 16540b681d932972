package exam

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/quizforge/adexam/internal/llm"
	"github.com/quizforge/adexam/internal/model"
	"github.com/quizforge/adexam/internal/retrieval"
	"github.com/quizforge/adexam/internal/store"
)

// seedQuery retrieves broadly relevant chunks for the first question of
// an attempt, before any answer history exists.
const seedQuery = "Important lecture concepts and definitions"

// Config tunes the attempt engine.
type Config struct {
	Weights Weights

	// ContextMaxChars bounds the retrieval context handed to the LLM.
	ContextMaxChars int
	// ContextChunks is the top-k for similarity retrieval.
	ContextChunks int

	// AvoidWindow is how many recent questions (across retakes) feed
	// the duplicate-avoidance list.
	AvoidWindow int
	// GenerationRetries bounds attempts to generate a non-duplicate
	// question before accepting whatever the model returned.
	GenerationRetries int

	// LLMTimeout bounds each individual generation or grading call.
	LLMTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		ContextMaxChars:   6000,
		ContextChunks:     5,
		AvoidWindow:       50,
		GenerationRetries: 3,
		LLMTimeout:        60 * time.Second,
	}
}

// Engine drives the attempt state machine: start, answer, stop rules,
// scoring. All state lives in the store; the engine serializes mutation
// per attempt and never holds the attempt lock across an LLM call.
type Engine struct {
	store     *store.Store
	retrieval *retrieval.Service
	llm       llm.Client
	cfg       Config
	locks     *attemptLocks
	now       func() time.Time
}

func NewEngine(st *store.Store, ret *retrieval.Service, client llm.Client, cfg Config) *Engine {
	if cfg.ContextMaxChars <= 0 {
		cfg.ContextMaxChars = 6000
	}
	if cfg.ContextChunks <= 0 {
		cfg.ContextChunks = 5
	}
	if cfg.AvoidWindow <= 0 {
		cfg.AvoidWindow = 50
	}
	if cfg.GenerationRetries <= 0 {
		cfg.GenerationRetries = 3
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 60 * time.Second
	}
	return &Engine{
		store:     st,
		retrieval: ret,
		llm:       client,
		cfg:       cfg,
		locks:     newAttemptLocks(),
		now:       time.Now,
	}
}

// StartResult is the outcome of opening an attempt. Question is nil
// when the attempt was finalized immediately (no material in scope).
type StartResult struct {
	Attempt  model.Attempt   `json:"attempt"`
	Question *model.Question `json:"question,omitempty"`
}

// Start opens a new attempt for the student and generates the first
// question. The partial unique index on open attempts makes the
// check-and-create atomic: a concurrent second start loses with
// model.ErrAttemptAlreadyOpen.
func (e *Engine) Start(ctx context.Context, studentID int64) (*StartResult, error) {
	student, err := e.store.GetStudent(studentID)
	if err != nil {
		return nil, err
	}
	if student == nil || !student.Active {
		return nil, model.ErrStudentNotFound
	}

	cfg, err := e.store.GetActiveConfig(student.DepartmentID, student.GradeLevel)
	if err != nil {
		return nil, err
	}

	used, err := e.store.CountAttempts(studentID, cfg.ID)
	if err != nil {
		return nil, err
	}
	if cfg.MaxAttempts > 0 && used >= cfg.MaxAttempts {
		return nil, model.ErrAttemptLimitExceeded
	}

	attempt, err := e.store.CreateAttempt(cfg.ID, studentID, used+1)
	if err != nil {
		return nil, err
	}
	slog.Info("attempt started",
		"attempt_id", attempt.ID, "student_id", studentID,
		"config_id", cfg.ID, "attempt_number", attempt.AttemptNumber)

	mu := e.locks.lock(attempt.ID)
	defer mu.Unlock()

	question, err := e.nextQuestion(ctx, cfg, &attempt, mu, seedQuery)
	if errors.Is(err, model.ErrNoMaterial) {
		final, ferr := e.finalize(attempt, cfg, model.EndNoMaterial)
		if ferr != nil {
			return nil, ferr
		}
		return &StartResult{Attempt: final}, nil
	}
	if err != nil {
		// The attempt cannot proceed without a first question. Close it
		// so the student is not stuck behind the open-attempt guard.
		if _, ferr := e.finalize(attempt, cfg, model.EndError); ferr != nil {
			slog.Error("finalize after generation failure", "attempt_id", attempt.ID, "error", ferr)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrGenerationFailed, err)
	}
	return &StartResult{Attempt: attempt, Question: question}, nil
}

// SubmitResult is the outcome of grading one answer. NextQuestion is
// nil when the attempt ended; Answer is nil when the submission arrived
// after a stop rule already applied.
type SubmitResult struct {
	Attempt      model.Attempt   `json:"attempt"`
	Answer       *model.Answer   `json:"answer,omitempty"`
	NextQuestion *model.Question `json:"next_question,omitempty"`
}

// SubmitAnswer grades the student's answer, applies the stop rules and
// either generates the next question or finalizes the attempt.
// Resubmitting an already-graded question fails with
// model.ErrQuestionAlreadyAnswered.
func (e *Engine) SubmitAnswer(ctx context.Context, attemptID, questionID int64, answerText string) (*SubmitResult, error) {
	mu := e.locks.lock(attemptID)
	defer mu.Unlock()

	attempt, err := e.store.GetAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	question, err := e.store.GetQuestion(questionID)
	if err != nil {
		return nil, err
	}
	if question.AttemptID != attemptID {
		return nil, fmt.Errorf("question %d does not belong to attempt %d", questionID, attemptID)
	}

	// A duplicate submit of an answered question is rejected. One
	// exception: a follow-up generation failure leaves the attempt open
	// with the answered question still the latest, and resubmitting it
	// retries generation without regrading.
	if prior, err := e.store.GetAnswer(questionID); err != nil {
		return nil, err
	} else if prior != nil {
		if attempt.Open() {
			latest, err := e.store.LatestQuestion(attemptID)
			if err != nil {
				return nil, err
			}
			if latest != nil && latest.ID == questionID {
				next, err := e.pendingOrNextQuestion(ctx, &attempt, mu)
				if err != nil {
					return nil, err
				}
				return &SubmitResult{Attempt: attempt, Answer: prior, NextQuestion: next}, nil
			}
		}
		return nil, model.ErrQuestionAlreadyAnswered
	}

	if !attempt.Open() {
		return nil, model.ErrAttemptNotOpen
	}

	cfg, err := e.store.GetConfig(attempt.ExamConfigID)
	if err != nil {
		return nil, err
	}

	// Time limit outranks every other rule and applies before grading:
	// an answer that arrives after the deadline is not graded.
	if e.expired(attempt, cfg) {
		final, err := e.finalize(attempt, cfg, model.EndTimeLimit)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Attempt: final}, nil
	}

	answeredAt := e.now()
	graded, err := e.gradeUnlocked(ctx, mu, question, answerText)
	if err != nil {
		return nil, err
	}

	// The lock was released during grading. Re-verify before mutating.
	attempt, err = e.store.GetAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.Open() {
		slog.Info("attempt ended while grading, discarding result", "attempt_id", attemptID)
		return nil, model.ErrAttemptNotOpen
	}

	ans := model.Answer{
		QuestionID:       questionID,
		AnsweredAt:       answeredAt,
		TimeTakenSeconds: int(answeredAt.Sub(question.ShownAt).Seconds()),
		StudentAnswer:    answerText,
		Correctness:      graded.Correctness,
		IsCorrect:        graded.IsCorrect,
		Feedback:         graded.Feedback,
	}

	attempt.QuestionsAnswered++
	attempt.CorrectnessSum += ans.Correctness
	if ans.IsCorrect {
		attempt.ConsecutiveIncorrect = 0
	} else {
		attempt.ConsecutiveIncorrect++
		if attempt.ConsecutiveIncorrect > attempt.MaxConsecutiveIncorrect {
			attempt.MaxConsecutiveIncorrect = attempt.ConsecutiveIncorrect
		}
	}

	if err := e.store.RecordAnswer(ans, attempt); err != nil {
		if errors.Is(err, model.ErrQuestionAlreadyAnswered) {
			// Lost a race with a concurrent submit of the same question.
			prior, gerr := e.store.GetAnswer(questionID)
			if gerr != nil || prior == nil {
				return nil, model.ErrQuestionAlreadyAnswered
			}
			current, gerr := e.store.GetAttempt(attemptID)
			if gerr != nil {
				return nil, gerr
			}
			return &SubmitResult{Attempt: current, Answer: prior}, nil
		}
		return nil, err
	}

	if reason, stop := e.stopReason(attempt, cfg, ans.TimeTakenSeconds); stop {
		final, err := e.finalize(attempt, cfg, reason)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Attempt: final, Answer: &ans}, nil
	}

	// The graded question's text drives retrieval for the follow-up so
	// consecutive questions stay on related material.
	next, err := e.nextQuestion(ctx, cfg, &attempt, mu, question.Text)
	if errors.Is(err, model.ErrNoMaterial) {
		final, ferr := e.finalize(attempt, cfg, model.EndNoMaterial)
		if ferr != nil {
			return nil, ferr
		}
		return &SubmitResult{Attempt: final, Answer: &ans}, nil
	}
	if err != nil {
		// The answer is recorded; the caller may resubmit it to retry
		// follow-up generation without regrading.
		return nil, fmt.Errorf("%w: %v", model.ErrGenerationFailed, err)
	}
	return &SubmitResult{Attempt: attempt, Answer: &ans, NextQuestion: next}, nil
}

// End finalizes an open attempt at the student's request.
func (e *Engine) End(ctx context.Context, attemptID int64) (model.Attempt, error) {
	mu := e.locks.lock(attemptID)
	defer mu.Unlock()

	attempt, err := e.store.GetAttempt(attemptID)
	if err != nil {
		return model.Attempt{}, err
	}
	if !attempt.Open() {
		return attempt, model.ErrAttemptNotOpen
	}
	cfg, err := e.store.GetConfig(attempt.ExamConfigID)
	if err != nil {
		return model.Attempt{}, err
	}

	reason := model.EndStudentEnd
	if e.expired(attempt, cfg) {
		reason = model.EndTimeLimit
	}
	return e.finalize(attempt, cfg, reason)
}

// View returns the attempt with its full question/answer history.
func (e *Engine) View(attemptID int64) (*model.AttemptView, error) {
	return e.store.GetAttemptView(attemptID)
}

func (e *Engine) expired(a model.Attempt, cfg model.ExamConfig) bool {
	if cfg.MaxDurationSeconds <= 0 {
		return false
	}
	return e.now().Sub(a.StartedAt) >= time.Duration(cfg.MaxDurationSeconds)*time.Second
}

// stopReason applies the stop rules in priority order. Time limit is
// checked by the caller before grading; here it covers time consumed by
// the grading call itself. The slow rule looks only at the answer just
// recorded, not the attempt-wide average.
func (e *Engine) stopReason(a model.Attempt, cfg model.ExamConfig, lastAnswerSeconds int) (model.EndReason, bool) {
	if e.expired(a, cfg) {
		return model.EndTimeLimit, true
	}
	if cfg.StopConsecutiveIncorrect > 0 && a.ConsecutiveIncorrect >= cfg.StopConsecutiveIncorrect {
		return model.EndTooManyIncorrect, true
	}
	if cfg.StopSlowSeconds > 0 && lastAnswerSeconds >= cfg.StopSlowSeconds {
		return model.EndTooSlow, true
	}
	if cfg.MaxQuestions > 0 && a.QuestionsAnswered >= cfg.MaxQuestions {
		return model.EndCompleted, true
	}
	return "", false
}

// finalize closes the attempt with its score and rating. The store's
// WHERE guard makes a second finalize a no-op, so racing finalizers
// converge on the first writer's reason.
func (e *Engine) finalize(a model.Attempt, cfg model.ExamConfig, reason model.EndReason) (model.Attempt, error) {
	endedAt := e.now()
	elapsed := int(endedAt.Sub(a.StartedAt).Seconds())

	avg, err := e.store.AvgAnswerTime(a.ID)
	if err != nil {
		return model.Attempt{}, err
	}
	score := Score(AttemptStats{
		QuestionsAnswered:        a.QuestionsAnswered,
		CorrectnessSum:           a.CorrectnessSum,
		AvgAnswerSeconds:         avg,
		MaxConsecutiveIncorrect:  a.MaxConsecutiveIncorrect,
		StopSlowSeconds:          cfg.StopSlowSeconds,
		StopConsecutiveIncorrect: cfg.StopConsecutiveIncorrect,
	}, e.cfg.Weights)

	if err := e.store.FinalizeAttempt(a.ID, endedAt, reason, elapsed, score, Rate(score)); err != nil {
		return model.Attempt{}, err
	}
	e.locks.forget(a.ID)

	final, err := e.store.GetAttempt(a.ID)
	if err != nil {
		return model.Attempt{}, err
	}
	slog.Info("attempt finished",
		"attempt_id", a.ID, "reason", final.EndReason,
		"questions", final.QuestionsAnswered, "score", final.Score)
	return final, nil
}

// pendingOrNextQuestion returns the newest unanswered question, or
// generates one when none is pending.
func (e *Engine) pendingOrNextQuestion(ctx context.Context, a *model.Attempt, mu *sync.Mutex) (*model.Question, error) {
	latest, err := e.store.LatestQuestion(a.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		ans, err := e.store.GetAnswer(latest.ID)
		if err != nil {
			return nil, err
		}
		if ans == nil {
			return latest, nil
		}
	}
	cfg, err := e.store.GetConfig(a.ExamConfigID)
	if err != nil {
		return nil, err
	}
	query := seedQuery
	if latest != nil {
		query = latest.Text
	}
	return e.nextQuestion(ctx, cfg, a, mu, query)
}

// nextQuestion builds a retrieval context for the query, generates a
// non-repeating question and persists it. The attempt lock is released
// for the LLM call and re-verified afterwards; a question generated for
// an attempt that ended meanwhile is discarded.
func (e *Engine) nextQuestion(ctx context.Context, cfg model.ExamConfig, a *model.Attempt, mu *sync.Mutex, query string) (*model.Question, error) {
	avoid, err := e.store.ListRecentQuestionTexts(a.StudentID, cfg.ID, e.cfg.AvoidWindow)
	if err != nil {
		return nil, err
	}
	avoidHashes := make(map[string]bool, len(avoid))
	for _, q := range avoid {
		avoidHashes[questionHash(q)] = true
	}

	usedIDs, err := e.store.ListRecentUsedChunkIDs(a.StudentID, cfg.ID, e.cfg.AvoidWindow)
	if err != nil {
		return nil, err
	}
	exclude := make(map[int64]bool, len(usedIDs))
	for _, id := range usedIDs {
		exclude[id] = true
	}

	retCtx, err := e.retrieval.BuildContext(ctx, cfg.DepartmentID, cfg.GradeLevel, query, retrieval.Options{
		MaxChars: e.cfg.ContextMaxChars,
		K:        e.cfg.ContextChunks,
		Exclude:  exclude,
	})
	if errors.Is(err, model.ErrNoMaterial) && len(exclude) > 0 {
		// Every chunk in scope has been used recently. Allow repeats
		// rather than ending the attempt.
		retCtx, err = e.retrieval.BuildContext(ctx, cfg.DepartmentID, cfg.GradeLevel, query, retrieval.Options{
			MaxChars: e.cfg.ContextMaxChars,
			K:        e.cfg.ContextChunks,
		})
	}
	if err != nil {
		return nil, err
	}

	difficulty := difficultyFor(cfg, *a)
	req := llm.GenerateRequest{
		Context:        retCtx.Text,
		Difficulty:     difficulty,
		AvoidQuestions: avoid,
	}

	mu.Unlock()
	gen, genErr := e.generateUnique(ctx, req, avoidHashes)
	mu.Lock()
	if genErr != nil {
		return nil, genErr
	}

	current, err := e.store.GetAttempt(a.ID)
	if err != nil {
		return nil, err
	}
	if !current.Open() {
		return nil, model.ErrAttemptNotOpen
	}
	*a = current

	q := model.Question{
		AttemptID:    a.ID,
		Ordinal:      a.QuestionsAnswered + 1,
		Text:         gen.Question,
		IdealAnswer:  gen.IdealAnswer,
		Context:      retCtx.Text,
		UsedChunkIDs: retCtx.ChunkIDs,
		Difficulty:   difficulty,
		ShownAt:      e.now(),
	}
	id, err := e.store.InsertQuestion(q)
	if err != nil {
		return nil, err
	}
	q.ID = id
	return &q, nil
}

// generateUnique retries generation while the model repeats a recent
// question. After the last retry the final candidate is accepted.
func (e *Engine) generateUnique(ctx context.Context, req llm.GenerateRequest, avoid map[string]bool) (*llm.GeneratedQuestion, error) {
	var gen *llm.GeneratedQuestion
	for i := 0; i < e.cfg.GenerationRetries; i++ {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
		g, err := e.llm.GenerateQuestion(callCtx, req)
		cancel()
		if err != nil {
			return nil, err
		}
		gen = g
		if !avoid[questionHash(g.Question)] {
			return gen, nil
		}
		slog.Debug("generated question repeats a recent one, retrying", "attempt", i+1)
	}
	return gen, nil
}

func (e *Engine) gradeUnlocked(ctx context.Context, mu *sync.Mutex, q model.Question, answer string) (*llm.GradedAnswer, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()

	mu.Unlock()
	graded, err := e.llm.GradeAnswer(callCtx, llm.GradeRequest{
		Question:      q.Text,
		IdealAnswer:   q.IdealAnswer,
		Context:       q.Context,
		StudentAnswer: answer,
	})
	mu.Lock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrGradingFailed, err)
	}
	return graded, nil
}

// difficultyFor adapts the next question's difficulty to the student's
// running accuracy, within the config's band.
func difficultyFor(cfg model.ExamConfig, a model.Attempt) int {
	lo, hi := cfg.DifficultyMin, cfg.DifficultyMax
	if lo <= 0 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	if a.QuestionsAnswered == 0 {
		return lo + (hi-lo)/2
	}
	ratio := a.CorrectnessSum / float64(a.QuestionsAnswered)
	d := lo + int(math.Round(ratio*float64(hi-lo)))
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// questionHash normalizes a question text for duplicate detection.
func questionHash(text string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}
