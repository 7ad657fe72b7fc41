// Package flow drives a student through the exam lifecycle: it turns
// transcripts of noisy speech into validated exam actions, tracks the
// session's cursor, time budget, and score, and produces the next spoken
// prompt for every state of the conversational protocol.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/sneportal/voiceexam/internal/command"
	appI18n "github.com/sneportal/voiceexam/internal/i18n"
	"github.com/sneportal/voiceexam/internal/model"
	"github.com/sneportal/voiceexam/internal/scoring"
	"github.com/sneportal/voiceexam/internal/store"
	"github.com/sneportal/voiceexam/internal/voice"
)

// Manager orchestrates voice-flow sessions. It owns all session state
// transitions; nothing else mutates an ExamSession.
type Manager struct {
	store *store.Store
	voice voice.Adapter
}

// New creates a flow manager.
func New(s *store.Store, v voice.Adapter) *Manager {
	return &Manager{store: s, voice: v}
}

// PendingAnswer is the candidate answer held between answer capture and
// confirmation. It is owned by the transport for one confirmation round
// trip and never persisted with the session.
type PendingAnswer struct {
	Answer     string
	Transcript string
}

// Response is the outcome of one voice round trip. Err marks the error
// variant: a prompt asking the student to retry, with no state packaging.
type Response struct {
	SessionID        string             `json:"session_id"`
	State            model.SessionState `json:"state"`
	Text             string             `json:"text"`
	AudioAvailable   bool               `json:"audio_available"`
	AudioData        []byte             `json:"audio_data,omitempty"`
	AudioContentType string             `json:"audio_content_type,omitempty"`
	IncludeTone      bool               `json:"include_tone"`
	Progress         float64            `json:"progress"`
	TimeRemaining    int                `json:"time_remaining"`
	QuestionNumber   int                `json:"current_question"`
	TotalQuestions   int                `json:"total_questions"`
	Err              bool               `json:"error,omitempty"`
	Message          string             `json:"message,omitempty"`
}

// HandleVoiceInput processes one audio clip for a session: transcribe,
// interpret, transition, respond. It never returns an error; failures
// become retry prompts and leave the session untouched. The returned
// pending answer replaces the one passed in (nil clears it).
func (m *Manager) HandleVoiceInput(ctx context.Context, sess *model.ExamSession, audio []byte, pending *PendingAnswer) (*Response, *PendingAnswer) {
	view, ctx, ok := m.prepare(ctx, sess)
	if !ok {
		return m.errorResponse(ctx, appI18n.T(ctx, "ProcessingError")), pending
	}

	if resp := m.expiryGuard(ctx, sess, view); resp != nil {
		return resp, nil
	}

	transcript, err := m.voice.Transcribe(ctx, audio, view.Exam.Language.SpeechCode())
	if err != nil {
		slog.Warn("transcription failed", "session_id", sess.SessionID, "error", err)
		return m.errorResponse(ctx, appI18n.T(ctx, "CouldNotUnderstand")), pending
	}

	return m.dispatch(ctx, sess, view, transcript, pending)
}

// HandleTranscript is HandleVoiceInput for callers that already hold a
// transcript (stored recordings, tests, text fallback input).
func (m *Manager) HandleTranscript(ctx context.Context, sess *model.ExamSession, transcript string, pending *PendingAnswer) (*Response, *PendingAnswer) {
	view, ctx, ok := m.prepare(ctx, sess)
	if !ok {
		return m.errorResponse(ctx, appI18n.T(ctx, "ProcessingError")), pending
	}

	if resp := m.expiryGuard(ctx, sess, view); resp != nil {
		return resp, nil
	}

	return m.dispatch(ctx, sess, view, transcript, pending)
}

// prepare loads the session's exam and injects the exam-language localizer
// into the context. On failure the context carries the default localizer so
// the caller can still speak an error.
func (m *Manager) prepare(ctx context.Context, sess *model.ExamSession) (*model.ExamView, context.Context, bool) {
	view, err := m.store.GetExamView(sess.ExamID)
	if err != nil {
		slog.Error("load exam for session failed", "session_id", sess.SessionID, "exam_id", sess.ExamID, "error", err)
		return nil, appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(string(model.LanguageEnglish))), false
	}
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(string(view.Exam.Language)))
	return view, ctx, true
}

// expiryGuard forces the terminal state when the time budget is exhausted,
// bypassing the state table entirely. Returns nil when time remains.
func (m *Manager) expiryGuard(ctx context.Context, sess *model.ExamSession, view *model.ExamView) *Response {
	if !sess.Expired() {
		return nil
	}
	if !sess.State.Terminal() {
		sess.State = model.StateExamComplete
		now := time.Now()
		sess.CompletedAt = &now
		if err := m.store.UpdateSession(*sess); err != nil {
			slog.Error("persist expired session failed", "session_id", sess.SessionID, "error", err)
		}
	}
	resp := m.errorResponse(ctx, appI18n.T(ctx, "TimeExpired"))
	resp.SessionID = sess.SessionID
	resp.State = model.StateExamComplete
	return resp
}

// dispatch routes one transcript through the state table. Any panic or
// unexpected failure during handling is converted to a generic retry
// prompt; the stored session is never left half-updated.
func (m *Manager) dispatch(ctx context.Context, sess *model.ExamSession, view *model.ExamView, transcript string, pending *PendingAnswer) (resp *Response, next *PendingAnswer) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("voice flow panic", "session_id", sess.SessionID, "state", sess.State, "panic", r)
			resp, next = m.errorResponse(ctx, appI18n.T(ctx, "ProcessingError")), pending
		}
	}()

	if transcript == "" {
		return m.errorResponse(ctx, appI18n.T(ctx, "CouldNotUnderstand")), pending
	}

	cmd := command.Parse(transcript, sess.State)
	slog.Debug("parsed voice command",
		"session_id", sess.SessionID, "state", sess.State, "type", cmd.Type, "nav", cmd.Nav)

	switch sess.State {
	case model.StateSetup, model.StateStudentName:
		// A session still in setup behaves like the name prompt: the first
		// thing we ever ask for is the student's name.
		return m.handleNameInput(ctx, sess, view, transcript, cmd), pending
	case model.StateStudentGrade:
		return m.handleGradeInput(ctx, sess, view, transcript, cmd), pending
	case model.StateExamBriefing:
		return m.handleBriefingResponse(ctx, sess, view, cmd), pending
	case model.StateQuestionReading:
		return m.handleQuestionReading(ctx, sess, view, cmd), pending
	case model.StateAnswerCapture:
		return m.handleAnswerInput(ctx, sess, view, transcript, cmd)
	case model.StateAnswerConfirmation:
		return m.handleConfirmation(ctx, sess, view, cmd, pending)
	}

	return m.errorResponse(ctx, appI18n.T(ctx, "ProcessingError")), pending
}

func (m *Manager) handleNameInput(ctx context.Context, sess *model.ExamSession, view *model.ExamView, transcript string, cmd command.Command) *Response {
	if cmd.Type == command.TypeNavigation {
		return m.handleNavigation(ctx, sess, view, cmd.Nav)
	}

	sess.StudentName = transcript
	sess.State = model.StateStudentGrade
	m.mustUpdate(sess)

	text := appI18n.Td(ctx, "NameThanks", map[string]any{"Name": transcript})
	return m.respond(ctx, sess, view, text, false)
}

func (m *Manager) handleGradeInput(ctx context.Context, sess *model.ExamSession, view *model.ExamView, transcript string, cmd command.Command) *Response {
	if cmd.Type == command.TypeNavigation {
		return m.handleNavigation(ctx, sess, view, cmd.Nav)
	}

	sess.StudentGrade = transcript
	sess.State = model.StateExamBriefing
	m.mustUpdate(sess)

	return m.respond(ctx, sess, view, m.briefingText(ctx, sess, view), false)
}

func (m *Manager) handleBriefingResponse(ctx context.Context, sess *model.ExamSession, view *model.ExamView, cmd command.Command) *Response {
	if cmd.Type == command.TypeNavigation {
		switch cmd.Nav {
		case command.NavStartExam:
			sess.State = model.StateQuestionReading
			m.mustUpdate(sess)
			return m.respond(ctx, sess, view, m.currentQuestionText(ctx, sess, view), false)
		case command.NavRepeatQuestion:
			return m.respond(ctx, sess, view, m.briefingText(ctx, sess, view), false)
		}
	}

	return m.respond(ctx, sess, view, appI18n.T(ctx, "BriefingReprompt"), false)
}

func (m *Manager) handleQuestionReading(ctx context.Context, sess *model.ExamSession, view *model.ExamView, cmd command.Command) *Response {
	if cmd.Type == command.TypeNavigation {
		return m.handleNavigation(ctx, sess, view, cmd.Nav)
	}

	// Any content during reading means the student heard the question.
	sess.State = model.StateAnswerCapture
	m.mustUpdate(sess)
	return m.respond(ctx, sess, view, appI18n.T(ctx, "AnswerAfterTone"), true)
}

func (m *Manager) handleAnswerInput(ctx context.Context, sess *model.ExamSession, view *model.ExamView, transcript string, cmd command.Command) (*Response, *PendingAnswer) {
	if cmd.Type == command.TypeNavigation {
		return m.handleNavigation(ctx, sess, view, cmd.Nav), nil
	}

	q := currentQuestion(sess, view)
	if q == nil {
		return m.errorResponse(ctx, appI18n.T(ctx, "ProcessingError")), nil
	}

	extracted := command.ExtractAnswer(transcript, q.Type)
	if !command.IsValidAnswer(extracted.Answer, q.Type) {
		text := appI18n.Td(ctx, "AnswerInvalid", map[string]any{"Type": questionTypeName(ctx, q.Type)})
		return m.respond(ctx, sess, view, text, true), nil
	}

	sess.State = model.StateAnswerConfirmation
	m.mustUpdate(sess)

	text := appI18n.Td(ctx, "AnswerConfirm", map[string]any{"Answer": extracted.Answer})
	return m.respond(ctx, sess, view, text, false), &PendingAnswer{Answer: extracted.Answer, Transcript: transcript}
}

func (m *Manager) handleConfirmation(ctx context.Context, sess *model.ExamSession, view *model.ExamView, cmd command.Command, pending *PendingAnswer) (*Response, *PendingAnswer) {
	if cmd.Type != command.TypeConfirmation {
		// Navigation and content both fall through: keep the pending answer
		// and ask again.
		return m.respond(ctx, sess, view, appI18n.T(ctx, "ConfirmReprompt"), false), pending
	}

	if !cmd.Confirmed {
		sess.State = model.StateAnswerCapture
		m.mustUpdate(sess)
		return m.respond(ctx, sess, view, appI18n.T(ctx, "AnswerAgainAfterTone"), true), nil
	}

	if pending == nil {
		// Confirmation arrived without a captured answer; recapture.
		sess.State = model.StateAnswerCapture
		m.mustUpdate(sess)
		return m.respond(ctx, sess, view, appI18n.T(ctx, "AnswerAfterTone"), true), nil
	}

	if err := m.saveResponse(sess, view, pending); err != nil {
		slog.Error("save student response failed", "session_id", sess.SessionID, "error", err)
		return m.errorResponse(ctx, appI18n.T(ctx, "ProcessingError")), pending
	}

	sess.QuestionIndex++
	if sess.IsComplete(len(view.Questions)) {
		sess.State = model.StateExamComplete
		now := time.Now()
		sess.CompletedAt = &now
		m.mustUpdate(sess)
		return m.respond(ctx, sess, view, m.completionText(ctx, sess, view), false), nil
	}

	sess.State = model.StateQuestionReading
	m.mustUpdate(sess)
	return m.respond(ctx, sess, view, m.currentQuestionText(ctx, sess, view), false), nil
}

func (m *Manager) handleNavigation(ctx context.Context, sess *model.ExamSession, view *model.ExamView, kind command.NavKind) *Response {
	switch kind {
	case command.NavGoBack:
		if sess.QuestionIndex > 0 {
			sess.QuestionIndex--
			sess.State = model.StateQuestionReading
			m.mustUpdate(sess)
			return m.respond(ctx, sess, view, m.currentQuestionText(ctx, sess, view), false)
		}
		return m.respond(ctx, sess, view, appI18n.T(ctx, "AlreadyFirstQuestion"), false)

	case command.NavRepeatQuestion:
		if currentQuestion(sess, view) != nil {
			return m.respond(ctx, sess, view, m.currentQuestionText(ctx, sess, view), false)
		}
		return m.respond(ctx, sess, view, appI18n.T(ctx, "NoQuestionToRepeat"), false)

	case command.NavTimeRemaining:
		text := appI18n.Td(ctx, "TimeRemainingAnnouncement", map[string]any{
			"Time": formatTimeRemaining(ctx, sess.TimeRemaining),
		})
		return m.respond(ctx, sess, view, text, false)

	case command.NavNextQuestion:
		if sess.State == model.StateQuestionReading {
			sess.State = model.StateAnswerCapture
			m.mustUpdate(sess)
			return m.respond(ctx, sess, view, appI18n.T(ctx, "AnswerAfterTone"), true)
		}
	}

	return m.respond(ctx, sess, view, appI18n.T(ctx, "CommandNotUnderstood"), false)
}

// saveResponse scores and upserts the confirmed answer, then refreshes the
// session total from the stored responses so the two can never drift apart.
func (m *Manager) saveResponse(sess *model.ExamSession, view *model.ExamView, pending *PendingAnswer) error {
	q := currentQuestion(sess, view)
	if q == nil {
		return errNoCurrentQuestion
	}

	isCorrect, points := scoring.Score(*q, pending.Answer)
	if err := m.store.UpsertResponse(model.StudentResponse{
		SessionID:       sess.ID,
		QuestionID:      q.ID,
		TranscribedText: pending.Transcript,
		FinalAnswer:     pending.Answer,
		IsCorrect:       isCorrect,
		PointsEarned:    points,
	}); err != nil {
		return err
	}

	total, err := m.store.SessionScore(sess.ID)
	if err != nil {
		return err
	}
	sess.TotalScore = total
	return nil
}

// mustUpdate persists the session and panics on failure; dispatch's recover
// turns the panic into a generic retry response.
func (m *Manager) mustUpdate(sess *model.ExamSession) {
	if err := m.store.UpdateSession(*sess); err != nil {
		panic(err)
	}
}

// currentQuestion returns the question under the cursor, or nil past the end.
func currentQuestion(sess *model.ExamSession, view *model.ExamView) *model.Question {
	if sess.QuestionIndex < 0 || sess.QuestionIndex >= len(view.Questions) {
		return nil
	}
	return &view.Questions[sess.QuestionIndex]
}
