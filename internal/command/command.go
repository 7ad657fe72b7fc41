// Package command classifies speech transcripts into exam actions and
// extracts structured answer candidates from free speech.
package command

import (
	"regexp"
	"strings"

	"github.com/sneportal/voiceexam/internal/model"
)

// Type is the broad classification of a transcript.
type Type string

const (
	// TypeNavigation is a recognized navigation phrase.
	TypeNavigation Type = "navigation"
	// TypeConfirmation is a yes/no answer during confirmation.
	TypeConfirmation Type = "confirmation"
	// TypeContent is anything else: free speech handled by the current state.
	TypeContent Type = "content"
)

// NavKind identifies a navigation command.
type NavKind string

const (
	NavGoBack         NavKind = "go_back"
	NavRepeatQuestion NavKind = "repeat_question"
	NavTimeRemaining  NavKind = "time_remaining"
	NavNextQuestion   NavKind = "next_question"
	NavStartExam      NavKind = "start_exam"
)

// Command is a parsed transcript. Exactly one of Nav, Confirmed, or Content
// is meaningful, selected by Type.
type Command struct {
	Type         Type
	Nav          NavKind
	Confirmed    bool
	Content      string
	OriginalText string
}

// Confidence tags the quality of an extracted answer. It is informational
// and does not gate acceptance.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Answer is an answer candidate extracted from a transcript.
type Answer struct {
	Answer       string
	Confidence   Confidence
	OriginalText string
}

type navPhrase struct {
	phrase string
	kind   NavKind
}

type confirmPhrase struct {
	phrase    string
	confirmed bool
}

// Phrase tables are evaluated in order and matched by substring containment,
// so a trigger phrase anywhere in a sentence wins. Overlapping substrings
// ("back" inside "go back") make the ordering behaviorally significant;
// do not reorder.
//
// TODO: substring matching fires mid-sentence ("I'll get back to that"
// triggers go_back); whole-word matching needs field testing first.
var navPhrases = []navPhrase{
	{"go back", NavGoBack},
	{"previous", NavGoBack},
	{"back", NavGoBack},
	{"repeat", NavRepeatQuestion},
	{"repeat question", NavRepeatQuestion},
	{"say again", NavRepeatQuestion},
	{"time", NavTimeRemaining},
	{"time remaining", NavTimeRemaining},
	{"how much time", NavTimeRemaining},
	{"next", NavNextQuestion},
	{"next question", NavNextQuestion},
	{"continue", NavNextQuestion},
	{"start", NavStartExam},
	{"begin", NavStartExam},
	{"ready", NavStartExam},
}

var confirmPhrases = []confirmPhrase{
	{"yes", true},
	{"correct", true},
	{"right", true},
	{"that is correct", true},
	{"that's right", true},
	{"no", false},
	{"incorrect", false},
	{"wrong", false},
	{"not correct", false},
	{"that is wrong", false},
}

// Parse classifies a transcript given the session's current state.
// Confirmation phrases are only recognized while the session is waiting for
// an answer confirmation; everywhere else "yes" is just content.
func Parse(transcript string, state model.SessionState) Command {
	lower := strings.ToLower(strings.TrimSpace(transcript))

	for _, np := range navPhrases {
		if strings.Contains(lower, np.phrase) {
			return Command{Type: TypeNavigation, Nav: np.kind, OriginalText: transcript}
		}
	}

	if state == model.StateAnswerConfirmation {
		for _, cp := range confirmPhrases {
			if strings.Contains(lower, cp.phrase) {
				return Command{Type: TypeConfirmation, Confirmed: cp.confirmed, OriginalText: transcript}
			}
		}
	}

	return Command{Type: TypeContent, Content: transcript, OriginalText: transcript}
}

var (
	bareLetterRegex = regexp.MustCompile(`(?i)^\W*([ABCD])\W*$`)
	optionRegex     = regexp.MustCompile(`(?i)\b(?:option|choice)\s+([ABCD])\b`)
	answerIsRegex   = regexp.MustCompile(`(?i)\b(?:the\s+)?answer\s+is\s+([ABCD])\b`)
)

// ExtractAnswer pulls an answer candidate out of natural speech given the
// question type. A multiple-choice transcript that is nothing but a letter
// scores high confidence; recognized framing phrases ("option B", "the
// answer is B") score medium; anything unrecognized falls through to the
// raw cleaned text with low confidence.
func ExtractAnswer(text string, qt model.QuestionType) Answer {
	clean := strings.TrimSpace(text)

	switch qt {
	case model.QuestionMultipleChoice:
		if m := bareLetterRegex.FindStringSubmatch(clean); m != nil {
			return Answer{Answer: strings.ToUpper(m[1]), Confidence: ConfidenceHigh, OriginalText: text}
		}
		if m := optionRegex.FindStringSubmatch(clean); m != nil {
			return Answer{Answer: strings.ToUpper(m[1]), Confidence: ConfidenceMedium, OriginalText: text}
		}
		if m := answerIsRegex.FindStringSubmatch(clean); m != nil {
			return Answer{Answer: strings.ToUpper(m[1]), Confidence: ConfidenceMedium, OriginalText: text}
		}

	case model.QuestionTrueFalse:
		lower := strings.ToLower(clean)
		// "true" checked first: a transcript containing both reads as true.
		if strings.Contains(lower, "true") {
			return Answer{Answer: "true", Confidence: ConfidenceHigh, OriginalText: text}
		}
		if strings.Contains(lower, "false") {
			return Answer{Answer: "false", Confidence: ConfidenceHigh, OriginalText: text}
		}

	case model.QuestionShortAnswer:
		return Answer{Answer: clean, Confidence: ConfidenceMedium, OriginalText: text}
	}

	return Answer{Answer: clean, Confidence: ConfidenceLow, OriginalText: text}
}

// IsValidAnswer reports whether an extracted answer is acceptable for the
// question type.
func IsValidAnswer(answer string, qt model.QuestionType) bool {
	switch qt {
	case model.QuestionMultipleChoice:
		switch strings.ToUpper(strings.TrimSpace(answer)) {
		case "A", "B", "C", "D":
			return true
		}
		return false
	case model.QuestionTrueFalse:
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "true", "false":
			return true
		}
		return false
	case model.QuestionShortAnswer:
		return strings.TrimSpace(answer) != ""
	}
	return false
}
