package llm

import (
	"context"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
)

var sentenceSplit = regexp.MustCompile(`[.\n]+`)

var wordRegex = regexp.MustCompile(`[a-zA-Z]{3,}`)

// MockClient is a deterministic offline generation/grading capability.
// Questions are lifted from the context; grading is token overlap with
// the ideal answer. Used as the local fallback and in tests.
type MockClient struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockClient creates a mock client seeded for reproducibility.
func NewMockClient(seed uint64) *MockClient {
	return &MockClient{rng: rand.New(rand.NewPCG(seed, seed))}
}

func (c *MockClient) GenerateQuestion(_ context.Context, req GenerateRequest) (*GeneratedQuestion, error) {
	var sentences []string
	for _, s := range sentenceSplit.Split(req.Context, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	pick := "the provided lecture context"
	if len(sentences) > 0 {
		// rand.Rand is not safe for concurrent use.
		c.mu.Lock()
		pick = sentences[c.rng.IntN(len(sentences))]
		c.mu.Unlock()
	}
	question := pick
	if len(question) > 180 {
		question = question[:180]
	}
	ideal := pick
	if len(ideal) > 300 {
		ideal = ideal[:300]
	}
	return &GeneratedQuestion{
		Question:    "Explain: " + question + "?",
		IdealAnswer: ideal,
	}, nil
}

func (c *MockClient) GradeAnswer(_ context.Context, req GradeRequest) (*GradedAnswer, error) {
	reference := req.IdealAnswer
	if reference == "" {
		reference = req.Context
	}
	ideal := tokenSet(reference)
	if len(ideal) == 0 {
		return &GradedAnswer{Feedback: "No reference material."}, nil
	}

	answer := tokenSet(req.StudentAnswer)
	overlap := 0
	for tok := range answer {
		if ideal[tok] {
			overlap++
		}
	}
	correctness := min(1, float64(overlap)/float64(len(ideal))*1.5)
	isCorrect := correctness >= 0.55

	feedback := "Needs improvement."
	if isCorrect {
		feedback = "Good."
	}
	return &GradedAnswer{
		Correctness: correctness,
		IsCorrect:   isCorrect,
		Feedback:    feedback,
	}, nil
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range wordRegex.FindAllString(strings.ToLower(s), -1) {
		set[w] = true
	}
	return set
}
