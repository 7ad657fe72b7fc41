package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	appI18n "github.com/sneportal/voiceexam/internal/i18n"
	"github.com/sneportal/voiceexam/internal/model"
)

var errNoCurrentQuestion = errors.New("no question at session cursor")

// respond packages a spoken prompt into a full response: synthesized audio
// when the voice backend cooperates, plus the session's progress snapshot.
func (m *Manager) respond(ctx context.Context, sess *model.ExamSession, view *model.ExamView, text string, includeTone bool) *Response {
	resp := &Response{
		SessionID:      sess.SessionID,
		State:          sess.State,
		Text:           text,
		IncludeTone:    includeTone,
		Progress:       sess.ProgressPercentage(len(view.Questions)),
		TimeRemaining:  sess.TimeRemaining,
		QuestionNumber: sess.QuestionIndex + 1,
		TotalQuestions: len(view.Questions),
	}

	audio, err := m.voice.Synthesize(ctx, text, view.Exam.Language.SpeechCode())
	if err != nil {
		// Speech synthesis is best-effort: the client falls back to
		// browser TTS when no audio arrives.
		slog.Warn("speech synthesis failed", "session_id", sess.SessionID, "error", err)
		return resp
	}

	resp.AudioAvailable = true
	resp.AudioData = audio
	resp.AudioContentType = "audio/mpeg"
	return resp
}

// errorResponse builds the retry variant: a message for the student with no
// state packaging and no audio.
func (m *Manager) errorResponse(ctx context.Context, message string) *Response {
	return &Response{
		Text:    message,
		Err:     true,
		Message: message,
	}
}

// briefingText assembles the pre-exam briefing: greeting, exam title,
// question count, duration, available commands, and the start instruction.
func (m *Manager) briefingText(ctx context.Context, sess *model.ExamSession, view *model.ExamView) string {
	parts := []string{
		appI18n.Td(ctx, "BriefingGreeting", map[string]any{
			"Name":  sess.StudentName,
			"Grade": sess.StudentGrade,
		}),
		appI18n.Td(ctx, "BriefingExam", map[string]any{
			"Title":   view.Exam.Title,
			"Subject": view.Subject.Name,
		}),
		appI18n.Tp(ctx, "BriefingQuestionCount", len(view.Questions)),
		appI18n.Td(ctx, "BriefingDuration", map[string]any{"Minutes": view.Exam.DurationMinutes}),
		appI18n.T(ctx, "BriefingCommands"),
		appI18n.T(ctx, "BriefingStart"),
	}
	return strings.Join(parts, " ")
}

// currentQuestionText renders the question under the cursor the way it is
// read aloud: number prefix, question text, then the answer options for
// multiple choice or the true/false instruction.
func (m *Manager) currentQuestionText(ctx context.Context, sess *model.ExamSession, view *model.ExamView) string {
	q := currentQuestion(sess, view)
	if q == nil {
		return appI18n.T(ctx, "NoMoreQuestions")
	}

	parts := []string{
		appI18n.Td(ctx, "QuestionPrefix", map[string]any{
			"Order": sess.QuestionIndex + 1,
			"Text":  q.Text,
		}),
	}

	switch q.Type {
	case model.QuestionMultipleChoice:
		for _, key := range q.OptionKeys() {
			parts = append(parts, appI18n.Td(ctx, "OptionItem", map[string]any{
				"Key":  key,
				"Text": q.Options[key],
			}))
		}
	case model.QuestionTrueFalse:
		parts = append(parts, appI18n.T(ctx, "SayTrueOrFalse"))
	}

	return strings.Join(parts, " ")
}

// completionText announces the finish and the final score out of the exam's
// total points.
func (m *Manager) completionText(ctx context.Context, sess *model.ExamSession, view *model.ExamView) string {
	parts := []string{
		appI18n.Td(ctx, "CompletionCongrats", map[string]any{
			"Name":  sess.StudentName,
			"Title": view.Exam.Title,
		}),
		appI18n.Td(ctx, "CompletionScore", map[string]any{
			"Score": sess.TotalScore,
			"Max":   view.TotalPoints(),
		}),
		appI18n.T(ctx, "CompletionFarewell"),
	}
	return strings.Join(parts, " ")
}

// formatTimeRemaining speaks a duration in whole minutes and seconds.
func formatTimeRemaining(ctx context.Context, seconds int) string {
	if seconds <= 0 {
		return appI18n.Td(ctx, "TimeSecondsOnly", map[string]any{"Seconds": 0})
	}
	minutes := seconds / 60
	secs := seconds % 60
	if minutes > 0 {
		return appI18n.Td(ctx, "TimeMinutesSeconds", map[string]any{
			"Minutes": minutes,
			"Seconds": secs,
		})
	}
	return appI18n.Td(ctx, "TimeSecondsOnly", map[string]any{"Seconds": secs})
}

// questionTypeName returns the localized spoken name of a question type.
func questionTypeName(ctx context.Context, qt model.QuestionType) string {
	switch qt {
	case model.QuestionMultipleChoice:
		return appI18n.T(ctx, "QuestionTypeMultipleChoice")
	case model.QuestionTrueFalse:
		return appI18n.T(ctx, "QuestionTypeTrueFalse")
	case model.QuestionShortAnswer:
		return appI18n.T(ctx, "QuestionTypeShortAnswer")
	default:
		return fmt.Sprintf("%v", qt)
	}
}
