package exam

import "github.com/quizforge/adexam/internal/model"

// Weights blend the three score components. They are normalized before
// use, so any positive values work; all-zero weights fall back to the
// defaults.
type Weights struct {
	Accuracy    float64
	Speed       float64
	Consistency float64
}

// DefaultWeights mirrors the service defaults.
func DefaultWeights() Weights {
	return Weights{Accuracy: 0.6, Speed: 0.2, Consistency: 0.2}
}

func (w Weights) normalized() Weights {
	total := w.Accuracy + w.Speed + w.Consistency
	if total <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Accuracy:    w.Accuracy / total,
		Speed:       w.Speed / total,
		Consistency: w.Consistency / total,
	}
}

// AttemptStats is the raw material for scoring, accumulated over a
// finished attempt.
type AttemptStats struct {
	QuestionsAnswered       int
	CorrectnessSum          float64
	AvgAnswerSeconds        float64
	MaxConsecutiveIncorrect int

	// Stop-rule thresholds from the exam config, used to scale the
	// speed and consistency components.
	StopSlowSeconds          int
	StopConsecutiveIncorrect int
}

// Score computes the final 0..100 score. An attempt with no answered
// questions scores zero.
func Score(stats AttemptStats, w Weights) float64 {
	if stats.QuestionsAnswered == 0 {
		return 0
	}
	w = w.normalized()

	accuracy := clamp01(stats.CorrectnessSum / float64(stats.QuestionsAnswered))

	slowRef := float64(max(10, stats.StopSlowSeconds))
	speed := clamp01(1 - stats.AvgAnswerSeconds/slowRef)

	consecRef := float64(max(1, stats.StopConsecutiveIncorrect))
	consistency := clamp01(1 - float64(stats.MaxConsecutiveIncorrect)/consecRef)

	return 100 * (w.Accuracy*accuracy + w.Speed*speed + w.Consistency*consistency)
}

// Rate converts a score to its rating band.
func Rate(score float64) model.Rating {
	return model.RatingFromScore(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
