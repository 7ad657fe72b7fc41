package store

import (
	"testing"
	"time"

	"github.com/sneportal/voiceexam/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestExam(t *testing.T, s *Store, title string, lang model.Language) int64 {
	t.Helper()
	subjectID, err := s.CreateSubject(model.Subject{Name: "Science", Code: "SCI-" + title})
	if err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}
	examID, err := s.CreateExam(model.Exam{
		SubjectID:       subjectID,
		Title:           title,
		GradeLevel:      "Grade 3",
		DurationMinutes: 30,
		Language:        lang,
		Instructions:    "Answer each question after the tone.",
		Active:          true,
	})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	return examID
}

func insertTestQuestion(t *testing.T, s *Store, examID int64, order int, qt model.QuestionType, correct string, points int) int64 {
	t.Helper()
	q := model.Question{
		ExamID:        examID,
		Text:          "Question text",
		Type:          qt,
		CorrectAnswer: correct,
		Order:         order,
		Points:        points,
	}
	if qt == model.QuestionMultipleChoice {
		q.Options = map[string]string{"A": "first", "B": "second", "C": "third", "D": "fourth"}
	}
	id, err := s.InsertQuestion(q)
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
	return id
}

func createTestSession(t *testing.T, s *Store, examID int64) model.ExamSession {
	t.Helper()
	sess := model.ExamSession{
		ExamID:        examID,
		SessionID:     "test-session-1",
		State:         model.StateStudentName,
		TimeRemaining: 1800,
	}
	id, err := s.CreateSession(sess)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	sess.ID = id
	return sess
}

func TestExamRoundTrip(t *testing.T) {
	s := newTestStore(t)

	count, err := s.ExamCount()
	if err != nil {
		t.Fatalf("ExamCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 exams, got %d", count)
	}

	examID := insertTestExam(t, s, "Science Basics", model.LanguageEnglish)
	insertTestQuestion(t, s, examID, 1, model.QuestionMultipleChoice, "B", 2)
	insertTestQuestion(t, s, examID, 2, model.QuestionTrueFalse, "true", 1)
	insertTestQuestion(t, s, examID, 3, model.QuestionShortAnswer, "photosynthesis", 3)

	view, err := s.GetExamView(examID)
	if err != nil {
		t.Fatalf("GetExamView: %v", err)
	}
	if view.Exam.Title != "Science Basics" {
		t.Errorf("title = %q", view.Exam.Title)
	}
	if view.Subject.Name != "Science" {
		t.Errorf("subject = %q", view.Subject.Name)
	}
	if len(view.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(view.Questions))
	}
	for i, q := range view.Questions {
		if q.Order != i+1 {
			t.Errorf("question %d order = %d, want %d", i, q.Order, i+1)
		}
	}
	if view.TotalPoints() != 6 {
		t.Errorf("TotalPoints = %d, want 6", view.TotalPoints())
	}

	// Options survive the JSON round trip.
	mc := view.Questions[0]
	if mc.Options["B"] != "second" {
		t.Errorf("option B = %q, want 'second'", mc.Options["B"])
	}
	if mc.Options == nil || len(mc.Options) != 4 {
		t.Errorf("options = %v, want 4 entries", mc.Options)
	}
	// Non-MC questions have no options.
	if view.Questions[1].Options != nil {
		t.Errorf("true/false options = %v, want nil", view.Questions[1].Options)
	}
}

func TestListActiveExams(t *testing.T) {
	s := newTestStore(t)
	insertTestExam(t, s, "Active Exam", model.LanguageEnglish)

	subjectID, _ := s.CreateSubject(model.Subject{Name: "Math", Code: "MATH"})
	_, err := s.CreateExam(model.Exam{
		SubjectID: subjectID,
		Title:     "Inactive Exam",
		Active:    false,
	})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}

	exams, err := s.ListActiveExams()
	if err != nil {
		t.Fatalf("ListActiveExams: %v", err)
	}
	if len(exams) != 1 {
		t.Fatalf("expected 1 active exam, got %d", len(exams))
	}
	if exams[0].Title != "Active Exam" {
		t.Errorf("title = %q", exams[0].Title)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s, "Lifecycle", model.LanguageSwahili)
	sess := createTestSession(t, s, examID)

	got, err := s.GetSessionBySessionID("test-session-1")
	if err != nil {
		t.Fatalf("GetSessionBySessionID: %v", err)
	}
	if got == nil {
		t.Fatal("session not found")
	}
	if got.State != model.StateStudentName {
		t.Errorf("state = %q, want student_name", got.State)
	}
	if got.TimeRemaining != 1800 {
		t.Errorf("time remaining = %d, want 1800", got.TimeRemaining)
	}

	// Unknown session id returns nil, not an error.
	missing, err := s.GetSessionBySessionID("nope")
	if err != nil {
		t.Fatalf("GetSessionBySessionID(nope): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown session, got %+v", missing)
	}
	missingView, err := s.GetSessionView("nope")
	if err != nil {
		t.Fatalf("GetSessionView(nope): %v", err)
	}
	if missingView != nil {
		t.Errorf("expected nil view for unknown session, got %+v", missingView)
	}

	// Mutate and persist.
	got.StudentName = "Amina"
	got.StudentGrade = "Grade 3"
	got.QuestionIndex = 2
	got.State = model.StateExamComplete
	got.TotalScore = 5
	now := time.Now()
	got.CompletedAt = &now
	if err := s.UpdateSession(*got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	reread, err := s.GetSessionBySessionID("test-session-1")
	if err != nil {
		t.Fatalf("GetSessionBySessionID: %v", err)
	}
	if reread.StudentName != "Amina" || reread.QuestionIndex != 2 || reread.TotalScore != 5 {
		t.Errorf("unexpected session after update: %+v", reread)
	}
	if reread.State != model.StateExamComplete {
		t.Errorf("state = %q, want exam_complete", reread.State)
	}
	if reread.CompletedAt == nil {
		t.Error("completed_at not persisted")
	}
	_ = sess
}

func TestUpsertResponseIncrementsAttempts(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s, "Attempts", model.LanguageEnglish)
	qID := insertTestQuestion(t, s, examID, 1, model.QuestionMultipleChoice, "B", 2)
	sess := createTestSession(t, s, examID)

	first := model.StudentResponse{
		SessionID:       sess.ID,
		QuestionID:      qID,
		TranscribedText: "the answer is A",
		FinalAnswer:     "A",
		IsCorrect:       false,
		PointsEarned:    0,
	}
	if err := s.UpsertResponse(first); err != nil {
		t.Fatalf("UpsertResponse: %v", err)
	}

	got, err := s.GetResponse(sess.ID, qID)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if got == nil {
		t.Fatal("response not found")
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}

	// Re-confirming overwrites instead of duplicating.
	second := model.StudentResponse{
		SessionID:       sess.ID,
		QuestionID:      qID,
		TranscribedText: "actually B",
		FinalAnswer:     "B",
		IsCorrect:       true,
		PointsEarned:    2,
	}
	if err := s.UpsertResponse(second); err != nil {
		t.Fatalf("UpsertResponse: %v", err)
	}

	responses, err := s.ListResponses(sess.ID)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	got = &responses[0]
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}
	if got.FinalAnswer != "B" || !got.IsCorrect || got.PointsEarned != 2 {
		t.Errorf("response not overwritten: %+v", got)
	}
}

func TestSessionScore(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s, "Score", model.LanguageEnglish)
	q1 := insertTestQuestion(t, s, examID, 1, model.QuestionMultipleChoice, "B", 2)
	q2 := insertTestQuestion(t, s, examID, 2, model.QuestionTrueFalse, "true", 1)
	q3 := insertTestQuestion(t, s, examID, 3, model.QuestionShortAnswer, "water", 3)
	sess := createTestSession(t, s, examID)

	score, err := s.SessionScore(sess.ID)
	if err != nil {
		t.Fatalf("SessionScore: %v", err)
	}
	if score != 0 {
		t.Errorf("empty session score = %d, want 0", score)
	}

	for _, r := range []model.StudentResponse{
		{SessionID: sess.ID, QuestionID: q1, FinalAnswer: "B", IsCorrect: true, PointsEarned: 2},
		{SessionID: sess.ID, QuestionID: q2, FinalAnswer: "false", IsCorrect: false, PointsEarned: 0},
		{SessionID: sess.ID, QuestionID: q3, FinalAnswer: "water", IsCorrect: true, PointsEarned: 3},
	} {
		if err := s.UpsertResponse(r); err != nil {
			t.Fatalf("UpsertResponse: %v", err)
		}
	}

	score, err = s.SessionScore(sess.ID)
	if err != nil {
		t.Fatalf("SessionScore: %v", err)
	}
	if score != 5 {
		t.Errorf("score = %d, want 5", score)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("fixtures/exams.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("fixtures/exams.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, err = s.GetImportedFileHash("fixtures/exams.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("hash = %q, want abc123", hash)
	}

	// Overwrite.
	if err := s.SetImportedFileHash("fixtures/exams.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash("fixtures/exams.json")
	if hash != "def456" {
		t.Errorf("hash = %q, want def456", hash)
	}
}

func TestSupervisorAuth(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateSupervisor(model.Supervisor{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: "hash",
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateSupervisor: %v", err)
	}

	sup, err := s.GetSupervisorByUsername("admin")
	if err != nil {
		t.Fatalf("GetSupervisorByUsername: %v", err)
	}
	if sup == nil || sup.ID != id {
		t.Fatalf("supervisor lookup = %+v", sup)
	}

	token, err := s.CreateAuthSession(id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	authSess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if authSess == nil || authSess.SupervisorID != id {
		t.Fatalf("auth session = %+v", authSess)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	authSess, err = s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession after delete: %v", err)
	}
	if authSess != nil {
		t.Error("auth session survived deletion")
	}
}

func TestExportAllSessions(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s, "Export", model.LanguageEnglish)
	q1 := insertTestQuestion(t, s, examID, 1, model.QuestionMultipleChoice, "B", 2)
	sess := createTestSession(t, s, examID)

	if err := s.UpsertResponse(model.StudentResponse{
		SessionID: sess.ID, QuestionID: q1,
		TranscribedText: "B", FinalAnswer: "B", IsCorrect: true, PointsEarned: 2,
	}); err != nil {
		t.Fatalf("UpsertResponse: %v", err)
	}
	got, _ := s.GetSessionBySessionID(sess.SessionID)
	got.TotalScore = 2
	if err := s.UpdateSession(*got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	results, err := s.ExportAllSessions()
	if err != nil {
		t.Fatalf("ExportAllSessions: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ExamTitle != "Export" || r.TotalScore != 2 || r.MaxScore != 2 {
		t.Errorf("unexpected result: %+v", r)
	}
	if r.AnsweredQuestions != 1 || r.CorrectAnswers != 1 {
		t.Errorf("counts: answered=%d correct=%d, want 1/1", r.AnsweredQuestions, r.CorrectAnswers)
	}
	if len(r.Responses) != 1 || r.Responses[0].QuestionOrder != 1 {
		t.Errorf("responses: %+v", r.Responses)
	}
}
