package exam

import (
	"math"
	"testing"

	"github.com/quizforge/adexam/internal/model"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		stats AttemptStats
		w     Weights
		want  float64
	}{
		{
			// accuracy 0.9, speed 0.8, consistency 1.0 under weights
			// 0.5/0.3/0.2 blends to 89.
			name: "blended components",
			stats: AttemptStats{
				QuestionsAnswered:        10,
				CorrectnessSum:           9,
				AvgAnswerSeconds:         12,
				MaxConsecutiveIncorrect:  0,
				StopSlowSeconds:          60,
				StopConsecutiveIncorrect: 3,
			},
			w:    Weights{Accuracy: 0.5, Speed: 0.3, Consistency: 0.2},
			want: 89,
		},
		{
			name:  "no questions answered",
			stats: AttemptStats{},
			w:     DefaultWeights(),
			want:  0,
		},
		{
			name: "perfect run",
			stats: AttemptStats{
				QuestionsAnswered:        5,
				CorrectnessSum:           5,
				AvgAnswerSeconds:         0,
				MaxConsecutiveIncorrect:  0,
				StopSlowSeconds:          60,
				StopConsecutiveIncorrect: 3,
			},
			w:    DefaultWeights(),
			want: 100,
		},
		{
			name: "slow answers floor the speed component",
			stats: AttemptStats{
				QuestionsAnswered:        4,
				CorrectnessSum:           4,
				AvgAnswerSeconds:         500,
				MaxConsecutiveIncorrect:  0,
				StopSlowSeconds:          60,
				StopConsecutiveIncorrect: 3,
			},
			w:    Weights{Accuracy: 0.6, Speed: 0.2, Consistency: 0.2},
			want: 80,
		},
		{
			name: "unnormalized weights are scaled",
			stats: AttemptStats{
				QuestionsAnswered:        2,
				CorrectnessSum:           2,
				StopSlowSeconds:          60,
				StopConsecutiveIncorrect: 3,
			},
			w:    Weights{Accuracy: 6, Speed: 2, Consistency: 2},
			want: 100,
		},
		{
			name: "zero weights fall back to defaults",
			stats: AttemptStats{
				QuestionsAnswered:        2,
				CorrectnessSum:           2,
				StopSlowSeconds:          60,
				StopConsecutiveIncorrect: 3,
			},
			w:    Weights{},
			want: 100,
		},
		{
			name: "consecutive incorrect drags consistency",
			stats: AttemptStats{
				QuestionsAnswered:        6,
				CorrectnessSum:           3,
				AvgAnswerSeconds:         0,
				MaxConsecutiveIncorrect:  3,
				StopSlowSeconds:          60,
				StopConsecutiveIncorrect: 3,
			},
			// accuracy 0.5, speed 1, consistency 0
			w:    Weights{Accuracy: 0.6, Speed: 0.2, Consistency: 0.2},
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.stats, tt.w)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 100 {
				t.Errorf("Score() = %v out of range", got)
			}
		})
	}
}

func TestRate(t *testing.T) {
	tests := []struct {
		score float64
		want  model.Rating
	}{
		{100, model.RatingVeryGood},
		{85, model.RatingVeryGood},
		{84.999, model.RatingGood},
		{70, model.RatingGood},
		{69.999, model.RatingNeedsImprovement},
		{50, model.RatingNeedsImprovement},
		{49.999, model.RatingBad},
		{0, model.RatingBad},
	}
	for _, tt := range tests {
		if got := Rate(tt.score); got != tt.want {
			t.Errorf("Rate(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
