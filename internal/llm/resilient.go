package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilientClient wraps a Client with retry and circuit breaking. The
// breaker is shared across both operations so a misbehaving backend
// stops receiving traffic regardless of call type.
type ResilientClient struct {
	inner Client

	genBreaker   circuitbreaker.CircuitBreaker[*GeneratedQuestion]
	gradeBreaker circuitbreaker.CircuitBreaker[*GradedAnswer]
	genRetry     retry.Retry[*GeneratedQuestion]
	gradeRetry   retry.Retry[*GradedAnswer]
}

// ResilientConfig tunes the retry/breaker behavior.
type ResilientConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	BreakerAfter uint32
}

func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     15 * time.Second,
		BreakerAfter: 5,
	}
}

func NewResilientClient(inner Client, cfg ResilientConfig) *ResilientClient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 15 * time.Second
	}
	if cfg.BreakerAfter == 0 {
		cfg.BreakerAfter = 5
	}

	onStateChange := func(from, to circuitbreaker.State) {
		slog.Warn("llm circuit breaker state change", "from", from.String(), "to", to.String())
	}
	breakerConfig := func() circuitbreaker.Config {
		return circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerAfter
			},
			OnStateChange: onStateChange,
		}
	}
	retryConfig := retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			return err != nil &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		},
	}

	return &ResilientClient{
		inner:        inner,
		genBreaker:   circuitbreaker.New[*GeneratedQuestion](breakerConfig()),
		gradeBreaker: circuitbreaker.New[*GradedAnswer](breakerConfig()),
		genRetry:     retry.New[*GeneratedQuestion](retryConfig),
		gradeRetry:   retry.New[*GradedAnswer](retryConfig),
	}
}

func (c *ResilientClient) GenerateQuestion(ctx context.Context, req GenerateRequest) (*GeneratedQuestion, error) {
	return c.genBreaker.Execute(ctx, func(ctx context.Context) (*GeneratedQuestion, error) {
		return c.genRetry.Do(ctx, func(ctx context.Context) (*GeneratedQuestion, error) {
			return c.inner.GenerateQuestion(ctx, req)
		})
	})
}

func (c *ResilientClient) GradeAnswer(ctx context.Context, req GradeRequest) (*GradedAnswer, error) {
	return c.gradeBreaker.Execute(ctx, func(ctx context.Context) (*GradedAnswer, error) {
		return c.gradeRetry.Do(ctx, func(ctx context.Context) (*GradedAnswer, error) {
			return c.inner.GradeAnswer(ctx, req)
		})
	})
}
