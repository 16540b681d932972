package llm

import (
	"context"
	"log/slog"
)

// FallbackClient tries the primary client first and falls back to the
// secondary when the primary returns an error. The secondary is expected
// to be always available (typically a MockClient).
type FallbackClient struct {
	primary   Client
	secondary Client
}

func NewFallbackClient(primary, secondary Client) *FallbackClient {
	return &FallbackClient{primary: primary, secondary: secondary}
}

func (c *FallbackClient) GenerateQuestion(ctx context.Context, req GenerateRequest) (*GeneratedQuestion, error) {
	q, err := c.primary.GenerateQuestion(ctx, req)
	if err == nil {
		return q, nil
	}
	slog.Warn("primary question generation failed, using fallback", "error", err)
	return c.secondary.GenerateQuestion(ctx, req)
}

func (c *FallbackClient) GradeAnswer(ctx context.Context, req GradeRequest) (*GradedAnswer, error) {
	g, err := c.primary.GradeAnswer(ctx, req)
	if err == nil {
		return g, nil
	}
	slog.Warn("primary grading failed, using fallback", "error", err)
	return c.secondary.GradeAnswer(ctx, req)
}
