package prompts

import (
	"fmt"
	"strings"
	"testing"
)

func TestGenerateUser(t *testing.T) {
	t.Run("contains context and difficulty", func(t *testing.T) {
		prompt := GenerateUser("Photosynthesis converts light to energy.", 3, nil)
		if !strings.Contains(prompt, "Photosynthesis converts light to energy.") {
			t.Error("prompt should contain lecture context")
		}
		if !strings.Contains(prompt, "Difficulty (1 easiest .. 5 hardest): 3") {
			t.Error("prompt should state the difficulty")
		}
		if !strings.Contains(prompt, "- (none)") {
			t.Error("empty avoid list should render as none")
		}
		if !strings.Contains(prompt, `"ideal_answer"`) {
			t.Error("prompt should request the ideal answer field")
		}
	})

	t.Run("lists avoided questions", func(t *testing.T) {
		prompt := GenerateUser("ctx", 2, []string{"What is ATP?", "Define osmosis."})
		if !strings.Contains(prompt, "- What is ATP?") {
			t.Error("prompt should list avoided question")
		}
		if !strings.Contains(prompt, "- Define osmosis.") {
			t.Error("prompt should list avoided question")
		}
		if strings.Contains(prompt, "- (none)") {
			t.Error("prompt should not render none with avoided questions present")
		}
	})

	t.Run("caps the avoid list", func(t *testing.T) {
		var avoid []string
		for i := 0; i < 40; i++ {
			avoid = append(avoid, fmt.Sprintf("question number %d", i))
		}
		prompt := GenerateUser("ctx", 2, avoid)
		if strings.Contains(prompt, "question number 0") {
			t.Error("oldest questions should be dropped beyond the cap")
		}
		if !strings.Contains(prompt, "question number 39") {
			t.Error("newest questions should be kept")
		}
	})

	t.Run("truncates long avoided questions", func(t *testing.T) {
		long := strings.Repeat("x", 300)
		prompt := GenerateUser("ctx", 2, []string{long})
		if strings.Contains(prompt, long) {
			t.Error("avoided question should be truncated")
		}
		if !strings.Contains(prompt, strings.Repeat("x", 200)) {
			t.Error("truncated prefix should remain")
		}
	})
}

func TestGradeUser(t *testing.T) {
	prompt := GradeUser("What is ATP?", "ATP is the energy currency.", "Cells use ATP.", "It powers cells.")
	for _, want := range []string{
		"What is ATP?",
		"ATP is the energy currency.",
		"Cells use ATP.",
		"It powers cells.",
		`"correctness"`,
		"between 0 and 1",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt should contain %q", want)
		}
	}
}

func TestSanitizeAnswer(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"empty", "", "[No answer provided]"},
		{"whitespace only", "  \n\t ", "[No answer provided]"},
		{"normal", "a fine answer", "a fine answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeAnswer(tt.answer); got != tt.want {
				t.Errorf("sanitizeAnswer() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("truncates very long answers", func(t *testing.T) {
		got := sanitizeAnswer(strings.Repeat("a", 20000))
		if !strings.HasSuffix(got, "[Answer truncated due to length]") {
			t.Error("long answer should carry truncation marker")
		}
		if len([]rune(got)) > maxAnswerRunes+100 {
			t.Errorf("truncated answer too long: %d runes", len([]rune(got)))
		}
	})
}
