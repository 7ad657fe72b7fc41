// Package scoring evaluates submitted answers against a question's
// correct-answer specification. Full points for a correct answer, zero
// otherwise; there is no partial credit.
package scoring

import (
	"strings"

	"github.com/sneportal/voiceexam/internal/model"
)

// Score checks a submitted answer against the question and returns the
// correctness verdict and the points earned.
//
// Multiple choice accepts a bare letter, or scans the submission for the
// first of A, B, C, D it contains. The scan duplicates the extraction the
// command interpreter already performs; it is kept on purpose so scoring
// stays safe against any answer string the caller persists, not only ones
// that went through the interpreter.
func Score(q model.Question, submitted string) (bool, int) {
	correct := false

	switch q.Type {
	case model.QuestionMultipleChoice:
		clean := strings.ToUpper(strings.TrimSpace(submitted))
		expected := strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))
		switch clean {
		case "A", "B", "C", "D":
			correct = clean == expected
		default:
			for _, letter := range []string{"A", "B", "C", "D"} {
				if strings.Contains(clean, letter) {
					correct = letter == expected
					break
				}
			}
		}

	case model.QuestionTrueFalse:
		clean := strings.ToLower(strings.TrimSpace(submitted))
		expected := strings.ToLower(strings.TrimSpace(q.CorrectAnswer))
		if strings.Contains(clean, "true") {
			correct = expected == "true"
		} else if strings.Contains(clean, "false") {
			correct = expected == "false"
		}

	case model.QuestionShortAnswer:
		clean := strings.ToLower(strings.TrimSpace(submitted))
		expected := strings.ToLower(strings.TrimSpace(q.CorrectAnswer))
		correct = clean == expected
	}

	if correct {
		return true, q.Points
	}
	return false, 0
}
