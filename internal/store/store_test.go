package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quizforge/adexam/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedScope(t *testing.T, s *Store) (deptID, studentID, configID int64) {
	t.Helper()
	deptID, err := s.CreateDepartment(model.Department{College: "Science", Name: "Physics"})
	if err != nil {
		t.Fatalf("seedScope department: %v", err)
	}
	studentID, err = s.CreateStudent(model.Student{
		UniversityID: "s1",
		FullName:     "Student One",
		PasswordHash: "x",
		DepartmentID: deptID,
		GradeLevel:   1,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seedScope student: %v", err)
	}
	configID, err = s.UpsertConfig(model.ExamConfig{
		DepartmentID:             deptID,
		GradeLevel:               1,
		MaxDurationSeconds:       600,
		MaxAttempts:              3,
		MaxQuestions:             5,
		StopConsecutiveIncorrect: 3,
		StopSlowSeconds:          120,
		DifficultyMin:            2,
		DifficultyMax:            4,
		Active:                   true,
	})
	if err != nil {
		t.Fatalf("seedScope config: %v", err)
	}
	return deptID, studentID, configID
}

func TestConfigUpsert(t *testing.T) {
	s := newTestStore(t)
	deptID, _, configID := seedScope(t, s)

	cfg, err := s.GetActiveConfig(deptID, 1)
	if err != nil {
		t.Fatalf("GetActiveConfig: %v", err)
	}
	if cfg.ID != configID || cfg.MaxQuestions != 5 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	// Same scope updates in place instead of inserting.
	cfg.MaxQuestions = 8
	id2, err := s.UpsertConfig(cfg)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id2 != configID {
		t.Errorf("upsert created a new row: %d != %d", id2, configID)
	}
	updated, err := s.GetConfig(configID)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if updated.MaxQuestions != 8 {
		t.Errorf("MaxQuestions = %d, want 8", updated.MaxQuestions)
	}

	// Inactive configs are invisible to the attempt engine.
	updated.Active = false
	if _, err := s.UpsertConfig(updated); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := s.GetActiveConfig(deptID, 1); !errors.Is(err, model.ErrConfigurationMissing) {
		t.Errorf("GetActiveConfig on inactive = %v, want %v", err, model.ErrConfigurationMissing)
	}
}

func TestOpenAttemptUniqueness(t *testing.T) {
	s := newTestStore(t)
	_, studentID, configID := seedScope(t, s)

	first, err := s.CreateAttempt(configID, studentID, 1)
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if !first.Open() {
		t.Fatal("new attempt should be open")
	}

	_, err = s.CreateAttempt(configID, studentID, 2)
	if !errors.Is(err, model.ErrAttemptAlreadyOpen) {
		t.Fatalf("second attempt error = %v, want %v", err, model.ErrAttemptAlreadyOpen)
	}
	open, err := s.GetOpenAttempt(studentID, configID)
	if err != nil {
		t.Fatalf("GetOpenAttempt: %v", err)
	}
	if open == nil || open.ID != first.ID {
		t.Errorf("open attempt = %v, want id %d", open, first.ID)
	}

	// Closing the first frees the slot.
	if err := s.FinalizeAttempt(first.ID, time.Now(), model.EndStudentEnd, 10, 50, model.RatingNeedsImprovement); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if open, err = s.GetOpenAttempt(studentID, configID); err != nil || open != nil {
		t.Errorf("GetOpenAttempt after close = %v, %v, want nil", open, err)
	}
	if _, err := s.CreateAttempt(configID, studentID, 2); err != nil {
		t.Fatalf("attempt after close: %v", err)
	}
}

func TestConcurrentStartsOneWinner(t *testing.T) {
	s := newTestStore(t)
	_, studentID, configID := seedScope(t, s)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateAttempt(configID, studentID, i+1)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, model.ErrAttemptAlreadyOpen):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if conflicts != workers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, workers-1)
	}
}

func TestAnswerUniqueness(t *testing.T) {
	s := newTestStore(t)
	_, studentID, configID := seedScope(t, s)

	attempt, err := s.CreateAttempt(configID, studentID, 1)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	qID, err := s.InsertQuestion(model.Question{
		AttemptID:   attempt.ID,
		Ordinal:     1,
		Text:        "What is inertia?",
		IdealAnswer: "Resistance to change in motion.",
		Difficulty:  2,
		ShownAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}

	ans := model.Answer{
		QuestionID:       qID,
		AnsweredAt:       time.Now(),
		TimeTakenSeconds: 12,
		StudentAnswer:    "objects resist changes in motion",
		Correctness:      0.9,
		IsCorrect:        true,
		Feedback:         "Good.",
	}
	attempt.QuestionsAnswered = 1
	attempt.CorrectnessSum = 0.9
	if err := s.RecordAnswer(ans, attempt); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	// A duplicate leaves both the answer and the counters untouched.
	attempt.QuestionsAnswered = 2
	if err := s.RecordAnswer(ans, attempt); !errors.Is(err, model.ErrQuestionAlreadyAnswered) {
		t.Fatalf("duplicate RecordAnswer = %v, want %v", err, model.ErrQuestionAlreadyAnswered)
	}
	stored, err := s.GetAttempt(attempt.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if stored.QuestionsAnswered != 1 {
		t.Errorf("QuestionsAnswered = %d, want 1", stored.QuestionsAnswered)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	_, studentID, configID := seedScope(t, s)

	attempt, err := s.CreateAttempt(configID, studentID, 1)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if err := s.FinalizeAttempt(attempt.ID, time.Now(), model.EndCompleted, 60, 90, model.RatingVeryGood); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	// Second finalize with a different reason changes nothing.
	if err := s.FinalizeAttempt(attempt.ID, time.Now(), model.EndStudentEnd, 99, 10, model.RatingBad); err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	stored, err := s.GetAttempt(attempt.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if *stored.EndReason != model.EndCompleted {
		t.Errorf("end reason = %v, want %v", *stored.EndReason, model.EndCompleted)
	}
	if *stored.Score != 90 {
		t.Errorf("score = %v, want 90", *stored.Score)
	}
}

func TestMaterialCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	deptID, _, _ := seedScope(t, s)

	matID, err := s.CreateMaterial(model.Material{
		DepartmentID: deptID,
		GradeLevel:   1,
		Title:        "Mechanics",
		StorageKey:   "key-1",
	}, []string{"Newton's first law.", "Newton's second law.", "Newton's third law."})
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}

	chunkIDs, err := s.ListChunkIDs(deptID, 1)
	if err != nil {
		t.Fatalf("ListChunkIDs: %v", err)
	}
	if len(chunkIDs) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunkIDs))
	}
	for _, id := range chunkIDs {
		if err := s.UpsertEmbedding(id, "hash-v1", 4, []byte{0, 0, 0x80, 0x3f}); err != nil {
			t.Fatalf("UpsertEmbedding: %v", err)
		}
	}

	if err := s.DeleteMaterial(matID); err != nil {
		t.Fatalf("DeleteMaterial: %v", err)
	}

	count, err := s.ChunkCount(deptID, 1)
	if err != nil {
		t.Fatalf("ChunkCount after delete: %v", err)
	}
	if count != 0 {
		t.Errorf("chunks after delete = %d, want 0", count)
	}
	rows, err := s.ListEmbeddingsForScope(deptID, 1, "hash-v1")
	if err != nil {
		t.Fatalf("ListEmbeddingsForScope: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("embeddings after delete = %d, want 0", len(rows))
	}

	// Idempotent: deleting a missing material is not an error.
	if err := s.DeleteMaterial(matID); err != nil {
		t.Errorf("second DeleteMaterial: %v", err)
	}
}

func TestAttemptViewAndHistory(t *testing.T) {
	s := newTestStore(t)
	_, studentID, configID := seedScope(t, s)

	attempt, err := s.CreateAttempt(configID, studentID, 1)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	q1, err := s.InsertQuestion(model.Question{
		AttemptID: attempt.ID, Ordinal: 1, Text: "Define velocity.",
		IdealAnswer: "Rate of change of position.", UsedChunkIDs: []int64{1, 2},
		Difficulty: 2, ShownAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertQuestion q1: %v", err)
	}
	attempt.QuestionsAnswered = 1
	attempt.CorrectnessSum = 0.8
	err = s.RecordAnswer(model.Answer{
		QuestionID: q1, AnsweredAt: time.Now(), TimeTakenSeconds: 20,
		StudentAnswer: "how fast position changes", Correctness: 0.8, IsCorrect: true,
	}, attempt)
	if err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	q2, err := s.InsertQuestion(model.Question{
		AttemptID: attempt.ID, Ordinal: 2, Text: "Define acceleration.",
		IdealAnswer: "Rate of change of velocity.", UsedChunkIDs: []int64{3},
		Difficulty: 3, ShownAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertQuestion q2: %v", err)
	}

	view, err := s.GetAttemptView(attempt.ID)
	if err != nil {
		t.Fatalf("GetAttemptView: %v", err)
	}
	if len(view.Questions) != 2 {
		t.Fatalf("view questions = %d, want 2", len(view.Questions))
	}
	if view.Questions[0].Answer == nil {
		t.Error("first question should carry its answer")
	}
	if view.Questions[1].Answer != nil {
		t.Error("second question is unanswered")
	}

	latest, err := s.LatestQuestion(attempt.ID)
	if err != nil {
		t.Fatalf("LatestQuestion: %v", err)
	}
	if latest == nil || latest.ID != q2 {
		t.Errorf("latest question = %v, want id %d", latest, q2)
	}
	if len(latest.UsedChunkIDs) != 1 || latest.UsedChunkIDs[0] != 3 {
		t.Errorf("used chunk ids = %v, want [3]", latest.UsedChunkIDs)
	}

	texts, err := s.ListRecentQuestionTexts(studentID, configID, 10)
	if err != nil {
		t.Fatalf("ListRecentQuestionTexts: %v", err)
	}
	if len(texts) != 2 {
		t.Errorf("recent texts = %d, want 2", len(texts))
	}

	used, err := s.ListRecentUsedChunkIDs(studentID, configID, 10)
	if err != nil {
		t.Fatalf("ListRecentUsedChunkIDs: %v", err)
	}
	if len(used) != 3 {
		t.Errorf("used chunks = %v, want 3 distinct ids", used)
	}
}
