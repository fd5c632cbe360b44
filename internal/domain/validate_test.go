package domain

import (
	"errors"
	"testing"
)

func TestQuizInputNormalizeAppliesDefaults(t *testing.T) {
	in := QuizInput{
		Title: "  Capitals  ",
		Questions: []QuestionInput{
			{Type: OpenText, Text: "Capital of France?", CorrectAnswer: "Paris"},
			{Type: TrueFalse, Text: "Rome is in Italy", CorrectAnswer: "True", Options: []string{"x"}},
			{Type: MultipleChoice, Text: "Capital of Spain?", Options: []string{"Madrid", " ", "Lisbon"}, CorrectAnswer: "madrid", TimeLimit: 10, Points: 200},
		},
	}

	title, questions, err := in.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if title != "Capitals" {
		t.Fatalf("expected trimmed title, got %q", title)
	}
	for i, q := range questions {
		if q.Order != i {
			t.Fatalf("expected contiguous order, question %d has order %d", i, q.Order)
		}
	}
	if questions[0].TimeLimit != DefaultTimeLimit || questions[0].Points != DefaultPoints {
		t.Fatalf("expected defaults, got %+v", questions[0])
	}
	if questions[1].CorrectAnswer != "true" || questions[1].Options != nil {
		t.Fatalf("expected normalized true/false question, got %+v", questions[1])
	}
	if len(questions[2].Options) != 2 || questions[2].Points != 200 {
		t.Fatalf("expected blank option dropped, got %+v", questions[2])
	}
}

func TestQuizInputNormalizeRejects(t *testing.T) {
	cases := map[string]QuizInput{
		"empty title":  {Title: "   ", Questions: []QuestionInput{{Type: OpenText, Text: "q", CorrectAnswer: "a"}}},
		"no questions": {Title: "Quiz"},
		"bad type":     {Title: "Quiz", Questions: []QuestionInput{{Type: "essay", Text: "q", CorrectAnswer: "a"}}},
		"answer not an option": {Title: "Quiz", Questions: []QuestionInput{
			{Type: MultipleChoice, Text: "q", Options: []string{"a", "b"}, CorrectAnswer: "c"},
		}},
		"time limit too long": {Title: "Quiz", Questions: []QuestionInput{
			{Type: OpenText, Text: "q", CorrectAnswer: "a", TimeLimit: 600},
		}},
		"bad boolean": {Title: "Quiz", Questions: []QuestionInput{
			{Type: TrueFalse, Text: "q", CorrectAnswer: "maybe"},
		}},
	}
	for name, in := range cases {
		if _, _, err := in.Normalize(); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestNormalizeNickname(t *testing.T) {
	if got, err := NormalizeNickname("  Alice "); err != nil || got != "Alice" {
		t.Fatalf("expected Alice, got %q (%v)", got, err)
	}
	if _, err := NormalizeNickname("A"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected short nickname to be rejected, got %v", err)
	}
}

func TestStatusRankIsMonotonic(t *testing.T) {
	if !(StatusLobby.Rank() < StatusInProgress.Rank() && StatusInProgress.Rank() < StatusFinished.Rank()) {
		t.Fatalf("status ranks out of order")
	}
	if SessionStatus("paused").Valid() {
		t.Fatalf("unknown status should be invalid")
	}
}
