package i18n

import (
	"context"
	"testing"

	"github.com/quizforge/adexam/internal/model"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := RatingLabel(ctx, model.RatingVeryGood)
	if got != "Very good" {
		t.Errorf("RatingLabel(very_good) = %q, want 'Very good'", got)
	}

	got = EndReasonLabel(ctx, model.EndTimeLimit)
	if got != "Time limit reached" {
		t.Errorf("EndReasonLabel(time_limit) = %q, want 'Time limit reached'", got)
	}
}

func TestTranslateArabic(t *testing.T) {
	ctx := initLang(t, "ar")

	got := RatingLabel(ctx, model.RatingGood)
	if got != "جيد" {
		t.Errorf("RatingLabel(good) = %q, want 'جيد'", got)
	}

	got = EndReasonLabel(ctx, model.EndCompleted)
	if got != "اكتمل الاختبار" {
		t.Errorf("EndReasonLabel(completed) = %q, want 'اكتمل الاختبار'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "exam.score", map[string]any{"Score": 89})
	if got != "Score: 89" {
		t.Errorf("Td(exam.score, 89) = %q, want 'Score: 89'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "no.such.key")
	if got != "no.such.key" {
		t.Errorf("T(no.such.key) = %q, want the key itself", got)
	}
}

func TestFallbackWithoutLocalizer(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	got := RatingLabel(context.Background(), model.RatingBad)
	if got != "Poor" {
		t.Errorf("RatingLabel without localizer = %q, want 'Poor'", got)
	}
}
