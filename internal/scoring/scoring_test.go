package scoring

import (
	"testing"

	"github.com/sneportal/voiceexam/internal/model"
)

func mcQuestion(correct string, points int) model.Question {
	return model.Question{
		Type:          model.QuestionMultipleChoice,
		CorrectAnswer: correct,
		Points:        points,
	}
}

func TestScoreMultipleChoice(t *testing.T) {
	tests := []struct {
		name        string
		submitted   string
		correct     string
		wantCorrect bool
		wantPoints  int
	}{
		{"exact letter", "B", "B", true, 2},
		{"lowercase letter", "b", "B", true, 2},
		{"wrong letter", "A", "B", false, 0},
		{"letter inside phrase", "I think it is B", "B", true, 2},
		{"first letter in scan wins", "A or B", "B", false, 0},
		{"lowercase correct answer", "C", "c", true, 2},
		{"no letter at all", "none of them", "B", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCorrect, gotPoints := Score(mcQuestion(tt.correct, 2), tt.submitted)
			if gotCorrect != tt.wantCorrect {
				t.Errorf("correct = %v, want %v", gotCorrect, tt.wantCorrect)
			}
			if gotPoints != tt.wantPoints {
				t.Errorf("points = %d, want %d", gotPoints, tt.wantPoints)
			}
		})
	}
}

func TestScoreTrueFalse(t *testing.T) {
	q := model.Question{Type: model.QuestionTrueFalse, CorrectAnswer: "true", Points: 1}

	tests := []struct {
		name        string
		submitted   string
		wantCorrect bool
	}{
		{"exact true", "true", true},
		{"true inside phrase", "True, I think", true},
		{"false submitted", "false", false},
		{"no verdict defaults incorrect", "perhaps", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCorrect, gotPoints := Score(q, tt.submitted)
			if gotCorrect != tt.wantCorrect {
				t.Errorf("Score(%q) correct = %v, want %v", tt.submitted, gotCorrect, tt.wantCorrect)
			}
			wantPoints := 0
			if tt.wantCorrect {
				wantPoints = q.Points
			}
			if gotPoints != wantPoints {
				t.Errorf("Score(%q) points = %d, want %d", tt.submitted, gotPoints, wantPoints)
			}
		})
	}

	// Expected answer "false" with a "false" submission.
	qFalse := model.Question{Type: model.QuestionTrueFalse, CorrectAnswer: "false", Points: 1}
	if gotCorrect, _ := Score(qFalse, "it is false"); !gotCorrect {
		t.Error("Score(it is false) against false = incorrect, want correct")
	}
	if gotCorrect, _ := Score(qFalse, "true"); gotCorrect {
		t.Error("Score(true) against false = correct, want incorrect")
	}
}

func TestScoreShortAnswer(t *testing.T) {
	q := model.Question{Type: model.QuestionShortAnswer, CorrectAnswer: "Photosynthesis", Points: 3}

	tests := []struct {
		name        string
		submitted   string
		wantCorrect bool
	}{
		{"exact", "Photosynthesis", true},
		{"case insensitive", "photosynthesis", true},
		{"surrounding whitespace", "  photosynthesis ", true},
		{"partial no credit", "photo", false},
		{"different answer", "respiration", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCorrect, gotPoints := Score(q, tt.submitted)
			if gotCorrect != tt.wantCorrect {
				t.Errorf("correct = %v, want %v", gotCorrect, tt.wantCorrect)
			}
			if tt.wantCorrect && gotPoints != 3 {
				t.Errorf("points = %d, want 3", gotPoints)
			}
			if !tt.wantCorrect && gotPoints != 0 {
				t.Errorf("points = %d, want 0", gotPoints)
			}
		})
	}
}
