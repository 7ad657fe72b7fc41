package model

import "time"

// ExamImport is the fixture format consumed by the seed command.
type ExamImport struct {
	Title           string           `json:"title"`
	Subject         string           `json:"subject"`
	SubjectCode     string           `json:"subject_code"`
	GradeLevel      string           `json:"grade_level"`
	DurationMinutes int              `json:"duration_minutes"`
	Language        Language         `json:"language"`
	Instructions    string           `json:"instructions"`
	Questions       []QuestionImport `json:"questions"`
}

// QuestionImport is one question in a fixture file.
type QuestionImport struct {
	Text          string            `json:"text"`
	Type          QuestionType      `json:"type"`
	Options       map[string]string `json:"options,omitempty"`
	CorrectAnswer string            `json:"correct_answer"`
	Points        int               `json:"points"`
}

// ResultsExport is the top-level JSON structure for session result export.
type ResultsExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []SessionResult `json:"sessions"`
}

// SessionResult holds one session's outcome for export.
type SessionResult struct {
	SessionID         string           `json:"session_id"`
	ExamTitle         string           `json:"exam_title"`
	Subject           string           `json:"subject"`
	StudentName       string           `json:"student_name"`
	StudentGrade      string           `json:"student_grade"`
	State             SessionState     `json:"state"`
	StartedAt         time.Time        `json:"started_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	TotalScore        int              `json:"total_score"`
	MaxScore          int              `json:"max_score"`
	TotalQuestions    int              `json:"total_questions"`
	AnsweredQuestions int              `json:"answered_questions"`
	CorrectAnswers    int              `json:"correct_answers"`
	Responses         []ResponseResult `json:"responses"`
}

// ResponseResult is a single answered question in an export.
type ResponseResult struct {
	QuestionOrder   int          `json:"question_order"`
	QuestionText    string       `json:"question_text"`
	QuestionType    QuestionType `json:"question_type"`
	TranscribedText string       `json:"transcribed_text"`
	FinalAnswer     string       `json:"final_answer"`
	CorrectAnswer   string       `json:"correct_answer"`
	IsCorrect       bool         `json:"is_correct"`
	PointsEarned    int          `json:"points_earned"`
	MaxPoints       int          `json:"max_points"`
	Attempts        int          `json:"attempts"`
	AnsweredAt      time.Time    `json:"answered_at"`
}
