package store

import (
	"fmt"

	"github.com/sneportal/voiceexam/internal/model"
)

// ExportAllSessions builds export-ready results from all stored sessions.
func (s *Store) ExportAllSessions() ([]model.SessionResult, error) {
	sessions, err := s.ListSessions(1 << 20)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var results []model.SessionResult
	for _, sess := range sessions {
		view, err := s.GetSessionView(sess.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get session %s: %w", sess.SessionID, err)
		}
		results = append(results, buildSessionResult(view))
	}
	return results, nil
}

func buildSessionResult(view *model.SessionView) model.SessionResult {
	questionsByID := make(map[int64]model.Question, len(view.Exam.Questions))
	for _, q := range view.Exam.Questions {
		questionsByID[q.ID] = q
	}

	correct := 0
	var responses []model.ResponseResult
	for _, r := range view.Responses {
		q := questionsByID[r.QuestionID]
		if r.IsCorrect {
			correct++
		}
		responses = append(responses, model.ResponseResult{
			QuestionOrder:   q.Order,
			QuestionText:    q.Text,
			QuestionType:    q.Type,
			TranscribedText: r.TranscribedText,
			FinalAnswer:     r.FinalAnswer,
			CorrectAnswer:   q.CorrectAnswer,
			IsCorrect:       r.IsCorrect,
			PointsEarned:    r.PointsEarned,
			MaxPoints:       q.Points,
			Attempts:        r.Attempts,
			AnsweredAt:      r.AnsweredAt,
		})
	}

	return model.SessionResult{
		SessionID:         view.Session.SessionID,
		ExamTitle:         view.Exam.Exam.Title,
		Subject:           view.Exam.Subject.Name,
		StudentName:       view.Session.StudentName,
		StudentGrade:      view.Session.StudentGrade,
		State:             view.Session.State,
		StartedAt:         view.Session.StartedAt,
		CompletedAt:       view.Session.CompletedAt,
		TotalScore:        view.Session.TotalScore,
		MaxScore:          view.Exam.TotalPoints(),
		TotalQuestions:    len(view.Exam.Questions),
		AnsweredQuestions: len(view.Responses),
		CorrectAnswers:    correct,
		Responses:         responses,
	}
}
