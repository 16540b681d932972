package prompts

import (
	"fmt"
	"strings"
)

const maxAvoidListed = 25

// GenerateSystem returns the system prompt for question generation.
func GenerateSystem() string {
	return "You are an expert university examiner. " +
		"Generate ONE question based only on the provided lecture context. " +
		"Return strict JSON."
}

// GenerateUser builds the user prompt for question generation.
func GenerateUser(context string, difficulty int, avoidQuestions []string) string {
	if len(avoidQuestions) > maxAvoidListed {
		avoidQuestions = avoidQuestions[len(avoidQuestions)-maxAvoidListed:]
	}
	avoid := "- (none)"
	if len(avoidQuestions) > 0 {
		var lines []string
		for _, q := range avoidQuestions {
			if len(q) > 200 {
				q = q[:200]
			}
			lines = append(lines, "- "+q)
		}
		avoid = strings.Join(lines, "\n")
	}

	var sb strings.Builder
	sb.WriteString("Lecture context:\n" + context + "\n\n")
	sb.WriteString(fmt.Sprintf("Difficulty (1 easiest .. 5 hardest): %d\n\n", difficulty))
	sb.WriteString("Avoid repeating these questions (do not copy them, do not paraphrase too closely):\n")
	sb.WriteString(avoid + "\n\n")
	sb.WriteString("Return JSON with:\n")
	sb.WriteString(`{"question": "...", "ideal_answer": "..."}`)
	sb.WriteString("\n")
	return sb.String()
}

// GradeSystem returns the system prompt for answer grading.
func GradeSystem() string {
	return "You are a strict but fair examiner. " +
		"Grade the student's answer using the lecture context and the ideal answer. " +
		"Return strict JSON only."
}

// GradeUser builds the user prompt for answer grading.
func GradeUser(question, idealAnswer, context, studentAnswer string) string {
	var sb strings.Builder
	sb.WriteString("Lecture context:\n" + context + "\n\n")
	sb.WriteString("Question:\n" + question + "\n\n")
	sb.WriteString("Ideal answer:\n" + idealAnswer + "\n\n")
	sb.WriteString("Student answer:\n" + sanitizeAnswer(studentAnswer) + "\n\n")
	sb.WriteString("Return JSON with:\n")
	sb.WriteString(`{"correctness": 0.0, "is_correct": true, "feedback": "..."}`)
	sb.WriteString("\nCorrectness must be between 0 and 1.\n")
	return sb.String()
}

const maxAnswerRunes = 10000

func sanitizeAnswer(answer string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "[No answer provided]"
	}
	runes := []rune(answer)
	if len(runes) > maxAnswerRunes {
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
