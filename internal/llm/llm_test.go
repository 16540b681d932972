package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCoerceJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantVal string
		wantErr bool
	}{
		{"plain object", `{"question": "What is X?"}`, "question", "What is X?", false},
		{"code fence", "```json\n{\"question\": \"What is X?\"}\n```", "question", "What is X?", false},
		{"prose wrapper", `Here is the question: {"question": "What is X?"} Hope it helps.`, "question", "What is X?", false},
		{"no object", "I cannot answer that.", "", "", true},
		{"broken json", `{"question": `, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := coerceJSON(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("coerceJSON() error: %v", err)
			}
			if got := stringField(obj, tt.wantKey); got != tt.wantVal {
				t.Errorf("field %q = %q, want %q", tt.wantKey, got, tt.wantVal)
			}
		})
	}
}

func TestFloatField(t *testing.T) {
	obj := map[string]any{
		"num":    0.75,
		"str":    "0.5",
		"bogus":  "not a number",
		"absent": nil,
	}
	if got := floatField(obj, "num"); got != 0.75 {
		t.Errorf("num = %v, want 0.75", got)
	}
	if got := floatField(obj, "str"); got != 0.5 {
		t.Errorf("str = %v, want 0.5", got)
	}
	if got := floatField(obj, "bogus"); got != 0 {
		t.Errorf("bogus = %v, want 0", got)
	}
	if got := floatField(obj, "missing"); got != 0 {
		t.Errorf("missing = %v, want 0", got)
	}
}

func TestMockClientGenerate(t *testing.T) {
	c := NewMockClient(1)
	q, err := c.GenerateQuestion(context.Background(), GenerateRequest{
		Context:    "A goroutine is a lightweight thread. Channels connect goroutines.",
		Difficulty: 2,
	})
	if err != nil {
		t.Fatalf("GenerateQuestion() error: %v", err)
	}
	if !strings.HasPrefix(q.Question, "Explain: ") || !strings.HasSuffix(q.Question, "?") {
		t.Errorf("unexpected question shape: %q", q.Question)
	}
	if q.IdealAnswer == "" {
		t.Error("ideal answer should not be empty")
	}
}

func TestMockClientGenerateEmptyContext(t *testing.T) {
	c := NewMockClient(1)
	q, err := c.GenerateQuestion(context.Background(), GenerateRequest{Context: ""})
	if err != nil {
		t.Fatalf("GenerateQuestion() error: %v", err)
	}
	if q.Question == "" {
		t.Error("question should fall back to a generic prompt")
	}
}

func TestMockClientGrade(t *testing.T) {
	c := NewMockClient(1)
	ideal := "A goroutine is a lightweight thread managed by the runtime"

	tests := []struct {
		name        string
		answer      string
		wantCorrect bool
	}{
		{"echoed ideal answer", ideal, true},
		{"unrelated answer", "bananas are yellow fruit grown in plantations", false},
		{"empty answer", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := c.GradeAnswer(context.Background(), GradeRequest{
				Question:      "What is a goroutine?",
				IdealAnswer:   ideal,
				StudentAnswer: tt.answer,
			})
			if err != nil {
				t.Fatalf("GradeAnswer() error: %v", err)
			}
			if g.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v (correctness %.2f), want %v", g.IsCorrect, g.Correctness, tt.wantCorrect)
			}
			if g.Correctness < 0 || g.Correctness > 1 {
				t.Errorf("correctness %v out of range", g.Correctness)
			}
			if g.Feedback == "" {
				t.Error("feedback should not be empty")
			}
		})
	}
}

type failingClient struct{}

func (failingClient) GenerateQuestion(context.Context, GenerateRequest) (*GeneratedQuestion, error) {
	return nil, errors.New("backend down")
}

func (failingClient) GradeAnswer(context.Context, GradeRequest) (*GradedAnswer, error) {
	return nil, errors.New("backend down")
}

func TestFallbackClient(t *testing.T) {
	c := NewFallbackClient(failingClient{}, NewMockClient(1))

	q, err := c.GenerateQuestion(context.Background(), GenerateRequest{Context: "Stacks grow and shrink."})
	if err != nil {
		t.Fatalf("fallback generation failed: %v", err)
	}
	if q.Question == "" {
		t.Error("fallback should produce a question")
	}

	g, err := c.GradeAnswer(context.Background(), GradeRequest{
		IdealAnswer:   "stacks grow and shrink dynamically",
		StudentAnswer: "stacks grow and shrink dynamically",
	})
	if err != nil {
		t.Fatalf("fallback grading failed: %v", err)
	}
	if !g.IsCorrect {
		t.Errorf("matching answer should grade correct, got %.2f", g.Correctness)
	}
}
