package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quizforge/adexam/internal/llm/prompts"
)

// GeneratedQuestion is the result of a question generation call.
type GeneratedQuestion struct {
	Question    string `json:"question"`
	IdealAnswer string `json:"ideal_answer"`
}

// GradedAnswer holds the assessment of a single student answer.
type GradedAnswer struct {
	Correctness float64 `json:"correctness"`
	IsCorrect   bool    `json:"is_correct"`
	Feedback    string  `json:"feedback"`
}

// GenerateRequest asks for one question grounded in lecture context.
type GenerateRequest struct {
	Context        string
	Difficulty     int
	AvoidQuestions []string
}

// GradeRequest asks for an assessment of a student answer.
type GradeRequest struct {
	Question      string
	IdealAnswer   string
	Context       string
	StudentAnswer string
}

// Client is the generation/grading capability. Both calls may fail
// transiently; callers treat failures as retryable.
type Client interface {
	GenerateQuestion(ctx context.Context, req GenerateRequest) (*GeneratedQuestion, error)
	GradeAnswer(ctx context.Context, req GradeRequest) (*GradedAnswer, error)
}

// OpenAIClient talks to an OpenAI-compatible chat completions API.
type OpenAIClient struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient creates a client for the given endpoint and model.
func NewOpenAIClient(baseURL, apiKey, modelName string, temperature float32, maxTokens int) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		api:         openai.NewClientWithConfig(config),
		model:       modelName,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Ping verifies the endpoint is reachable.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

func (c *OpenAIClient) chat(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateQuestion produces one question from lecture context.
func (c *OpenAIClient) GenerateQuestion(ctx context.Context, req GenerateRequest) (*GeneratedQuestion, error) {
	raw, err := c.chat(ctx, prompts.GenerateSystem(), prompts.GenerateUser(req.Context, req.Difficulty, req.AvoidQuestions))
	if err != nil {
		return nil, err
	}
	slog.Debug("LLM generation response", "raw", raw)

	obj, err := coerceJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parse generation response: %w (raw: %s)", err, raw)
	}
	gen := &GeneratedQuestion{
		Question:    strings.TrimSpace(stringField(obj, "question")),
		IdealAnswer: strings.TrimSpace(stringField(obj, "ideal_answer")),
	}
	if gen.Question == "" {
		return nil, fmt.Errorf("LLM returned empty question")
	}
	return gen, nil
}

// GradeAnswer assesses a student answer against the ideal answer and
// lecture context. Correctness is clamped to [0,1].
func (c *OpenAIClient) GradeAnswer(ctx context.Context, req GradeRequest) (*GradedAnswer, error) {
	raw, err := c.chat(ctx, prompts.GradeSystem(), prompts.GradeUser(req.Question, req.IdealAnswer, req.Context, req.StudentAnswer))
	if err != nil {
		return nil, err
	}
	slog.Debug("LLM grading response", "raw", raw)

	obj, err := coerceJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}

	correctness := floatField(obj, "correctness")
	correctness = max(0, min(1, correctness))

	isCorrect, ok := obj["is_correct"].(bool)
	if !ok {
		isCorrect = correctness >= 0.5
	}

	return &GradedAnswer{
		Correctness: correctness,
		IsCorrect:   isCorrect,
		Feedback:    strings.TrimSpace(stringField(obj, "feedback")),
	}, nil
}

var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

// coerceJSON parses raw as JSON, falling back to the first {...} block
// for models that wrap their output in prose or code fences.
func coerceJSON(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj, nil
	}
	match := jsonObjectRegex.FindString(raw)
	if match == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(match), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func floatField(obj map[string]any, key string) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return 0
}
