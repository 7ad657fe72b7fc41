package model

import (
	"sort"
	"time"
)

// Language is the spoken language of an exam.
type Language string

const (
	// LanguageEnglish is English (spoken as en-US).
	LanguageEnglish Language = "en"
	// LanguageSwahili is Kiswahili (spoken as sw-KE).
	LanguageSwahili Language = "sw"
)

// SpeechCode returns the speech-service language code for the exam language.
func (l Language) SpeechCode() string {
	if l == LanguageSwahili {
		return "sw-KE"
	}
	return "en-US"
}

// QuestionType distinguishes how a question is answered and scored.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// SessionState is the position of an exam session in the voice flow.
type SessionState string

const (
	StateSetup              SessionState = "setup"
	StateStudentName        SessionState = "student_name"
	StateStudentGrade       SessionState = "student_grade"
	StateExamBriefing       SessionState = "exam_briefing"
	StateQuestionReading    SessionState = "question_reading"
	StateAnswerCapture      SessionState = "answer_capture"
	StateAnswerConfirmation SessionState = "answer_confirmation"
	StateExamComplete       SessionState = "exam_complete"
)

// Terminal reports whether no further voice input is processed in this state.
func (s SessionState) Terminal() bool {
	return s == StateExamComplete
}

// Subject is a school subject exams belong to.
type Subject struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Exam is an administered spoken exam.
type Exam struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	SubjectID       int64     `json:"subject_id"`
	GradeLevel      string    `json:"grade_level"`
	DurationMinutes int       `json:"duration_minutes"`
	Language        Language  `json:"language"`
	Instructions    string    `json:"instructions"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Question is one question of an exam. Options is set only for multiple
// choice and maps the choice key (A-D) to the choice text.
type Question struct {
	ID            int64             `json:"id"`
	ExamID        int64             `json:"exam_id"`
	Text          string            `json:"text"`
	Type          QuestionType      `json:"type"`
	Options       map[string]string `json:"options,omitempty"`
	CorrectAnswer string            `json:"correct_answer"`
	Order         int               `json:"order"`
	Points        int               `json:"points"`
}

// OptionKeys returns the option keys in stable alphabetical order, so that
// choices are always read out as A, B, C, D.
func (q Question) OptionKeys() []string {
	keys := make([]string, 0, len(q.Options))
	for k := range q.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExamSession is one student's attempt at one exam. SessionID is the
// public identifier handed to the transport; ID is the database key.
type ExamSession struct {
	ID            int64        `json:"id"`
	ExamID        int64        `json:"exam_id"`
	SessionID     string       `json:"session_id"`
	StudentName   string       `json:"student_name"`
	StudentGrade  string       `json:"student_grade"`
	QuestionIndex int          `json:"current_question_index"`
	State         SessionState `json:"state"`
	TimeRemaining int          `json:"time_remaining"` // seconds
	TotalScore    int          `json:"total_score"`
	StartedAt     time.Time    `json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// ProgressPercentage is how far through the question sequence the session is.
func (s ExamSession) ProgressPercentage(totalQuestions int) float64 {
	if totalQuestions == 0 {
		return 0
	}
	return float64(s.QuestionIndex) / float64(totalQuestions) * 100
}

// IsComplete reports whether the cursor has moved past the last question.
func (s ExamSession) IsComplete(totalQuestions int) bool {
	return s.QuestionIndex >= totalQuestions
}

// Expired reports whether the session's time budget is exhausted.
func (s ExamSession) Expired() bool {
	return s.TimeRemaining <= 0
}

// StudentResponse is the single stored answer for a (session, question)
// pair. Re-confirming the same question overwrites it and bumps Attempts.
type StudentResponse struct {
	ID              int64     `json:"id"`
	SessionID       int64     `json:"session_id"`
	QuestionID      int64     `json:"question_id"`
	TranscribedText string    `json:"transcribed_text"`
	FinalAnswer     string    `json:"final_answer"`
	IsCorrect       bool      `json:"is_correct"`
	PointsEarned    int       `json:"points_earned"`
	Attempts        int       `json:"attempts"`
	AnsweredAt      time.Time `json:"answered_at"`
}

// ExamView combines an exam with its subject and questions for display
// and for driving a session.
type ExamView struct {
	Exam      Exam
	Subject   Subject
	Questions []Question
}

// TotalPoints sums the point values of all questions.
func (v ExamView) TotalPoints() int {
	total := 0
	for _, q := range v.Questions {
		total += q.Points
	}
	return total
}

// SessionView combines a session with its exam and stored responses.
type SessionView struct {
	Session   ExamSession
	Exam      ExamView
	Responses []StudentResponse
}
