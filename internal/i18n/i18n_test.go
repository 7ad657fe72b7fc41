package i18n

import (
	"context"
	"testing"
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

	got := T(ctx, "AnswerAfterTone")
	if got != "Please provide your answer after the tone." {
		t.Errorf("T(AnswerAfterTone) = %q", got)
	}

	got = T(ctx, "AlreadyFirstQuestion")
	if got != "You are already at the first question." {
		t.Errorf("T(AlreadyFirstQuestion) = %q", got)
	}
}

func TestTranslateSwahili(t *testing.T) {
	ctx := initLang(t, "sw")

	got := T(ctx, "AnswerAfterTone")
	if got != "Tafadhali toa jibu lako baada ya mlio." {
		t.Errorf("T(AnswerAfterTone) = %q", got)
	}

	got = T(ctx, "TimeExpired")
	if got != "Muda wa mtihani wako umekwisha." {
		t.Errorf("T(TimeExpired) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "AnswerConfirm", map[string]any{"Answer": "B"})
	want := "You answered B. Is this correct? Say yes to confirm or no to try again."
	if got != want {
		t.Errorf("Td(AnswerConfirm) = %q, want %q", got, want)
	}

	got = Td(ctx, "QuestionPrefix", map[string]any{"Order": 2, "Text": "What is water made of?"})
	if got != "Question 2. What is water made of?" {
		t.Errorf("Td(QuestionPrefix) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "BriefingQuestionCount", 1)
	if got1 != "This exam has 1 question." {
		t.Errorf("Tp(BriefingQuestionCount, 1) = %q", got1)
	}

	got5 := Tp(ctx, "BriefingQuestionCount", 5)
	if got5 != "This exam has 5 questions." {
		t.Errorf("Tp(BriefingQuestionCount, 5) = %q", got5)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want key echoed back", got)
	}
}
