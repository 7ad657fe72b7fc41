package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sneportal/voiceexam/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		grade_level TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL DEFAULT 45,
		language TEXT NOT NULL DEFAULT 'en',
		instructions TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (subject_id) REFERENCES subjects(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		options TEXT,
		correct_answer TEXT NOT NULL,
		ord INTEGER NOT NULL,
		points INTEGER NOT NULL DEFAULT 1,
		UNIQUE (exam_id, ord),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS exam_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		session_id TEXT NOT NULL UNIQUE,
		student_name TEXT NOT NULL DEFAULT '',
		student_grade TEXT NOT NULL DEFAULT '',
		question_index INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT 'setup',
		time_remaining INTEGER NOT NULL,
		total_score INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS student_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		transcribed_text TEXT NOT NULL DEFAULT '',
		final_answer TEXT NOT NULL,
		is_correct INTEGER NOT NULL DEFAULT 0,
		points_earned INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 1,
		answered_at DATETIME NOT NULL,
		UNIQUE (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES exam_sessions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS supervisors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		supervisor_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (supervisor_id) REFERENCES supervisors(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSubject stores a subject.
func (s *Store) CreateSubject(sub model.Subject) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO subjects (name, code, created_at) VALUES (?, ?, ?)`,
		sub.Name, sub.Code, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetSubjectByCode returns a subject by its code, or nil if missing.
func (s *Store) GetSubjectByCode(code string) (*model.Subject, error) {
	var sub model.Subject
	err := s.db.QueryRow(
		`SELECT id, name, code, created_at FROM subjects WHERE code = ?`, code,
	).Scan(&sub.ID, &sub.Name, &sub.Code, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubjects returns all subjects ordered by name.
func (s *Store) ListSubjects() ([]model.Subject, error) {
	rows, err := s.db.Query(`SELECT id, name, code, created_at FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []model.Subject
	for rows.Next() {
		var sub model.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Code, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// CreateExam stores an exam.
func (s *Store) CreateExam(e model.Exam) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO exams (subject_id, title, grade_level, duration_minutes, language, instructions, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SubjectID, e.Title, e.GradeLevel, e.DurationMinutes, e.Language, e.Instructions, e.Active, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(id int64) (model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRow(
		`SELECT id, subject_id, title, grade_level, duration_minutes, language, instructions, active, created_at
		 FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.SubjectID, &e.Title, &e.GradeLevel, &e.DurationMinutes, &e.Language, &e.Instructions, &e.Active, &e.CreatedAt)
	return e, err
}

// ListActiveExams returns all active exams ordered by title.
func (s *Store) ListActiveExams() ([]model.Exam, error) {
	rows, err := s.db.Query(
		`SELECT id, subject_id, title, grade_level, duration_minutes, language, instructions, active, created_at
		 FROM exams WHERE active = 1 ORDER BY title`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Title, &e.GradeLevel, &e.DurationMinutes, &e.Language, &e.Instructions, &e.Active, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// InsertQuestion stores a question. Options are serialized as JSON.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	var options any
	if q.Options != nil {
		data, err := json.Marshal(q.Options)
		if err != nil {
			return 0, fmt.Errorf("marshal options: %w", err)
		}
		options = string(data)
	}
	res, err := s.db.Exec(
		`INSERT INTO questions (exam_id, text, type, options, correct_answer, ord, points)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ExamID, q.Text, q.Type, options, q.CorrectAnswer, q.Order, q.Points,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	row := s.db.QueryRow(
		`SELECT id, exam_id, text, type, options, correct_answer, ord, points FROM questions WHERE id = ?`, id,
	)
	return scanQuestion(row)
}

// ListQuestionsForExam returns an exam's questions in traversal order.
func (s *Store) ListQuestionsForExam(examID int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, text, type, options, correct_answer, ord, points
		 FROM questions WHERE exam_id = ? ORDER BY ord`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (model.Question, error) {
	var q model.Question
	var options sql.NullString
	err := row.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &options, &q.CorrectAnswer, &q.Order, &q.Points)
	if err != nil {
		return q, err
	}
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &q.Options); err != nil {
			return q, fmt.Errorf("unmarshal options for question %d: %w", q.ID, err)
		}
	}
	return q, nil
}

// GetExamView returns an exam together with its subject and ordered questions.
func (s *Store) GetExamView(examID int64) (*model.ExamView, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return nil, err
	}
	var sub model.Subject
	err = s.db.QueryRow(
		`SELECT id, name, code, created_at FROM subjects WHERE id = ?`, exam.SubjectID,
	).Scan(&sub.ID, &sub.Name, &sub.Code, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	questions, err := s.ListQuestionsForExam(examID)
	if err != nil {
		return nil, err
	}
	return &model.ExamView{Exam: exam, Subject: sub, Questions: questions}, nil
}

// CreateSession stores a new exam session.
func (s *Store) CreateSession(sess model.ExamSession) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO exam_sessions (exam_id, session_id, student_name, student_grade, question_index, state, time_remaining, total_score, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ExamID, sess.SessionID, sess.StudentName, sess.StudentGrade,
		sess.QuestionIndex, sess.State, sess.TimeRemaining, sess.TotalScore, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetSessionBySessionID returns a session by its public identifier,
// or nil if not found.
func (s *Store) GetSessionBySessionID(sessionID string) (*model.ExamSession, error) {
	var sess model.ExamSession
	err := s.db.QueryRow(
		`SELECT id, exam_id, session_id, student_name, student_grade, question_index, state, time_remaining, total_score, started_at, completed_at
		 FROM exam_sessions WHERE session_id = ?`, sessionID,
	).Scan(&sess.ID, &sess.ExamID, &sess.SessionID, &sess.StudentName, &sess.StudentGrade,
		&sess.QuestionIndex, &sess.State, &sess.TimeRemaining, &sess.TotalScore, &sess.StartedAt, &sess.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateSession persists the mutable fields of a session.
func (s *Store) UpdateSession(sess model.ExamSession) error {
	_, err := s.db.Exec(
		`UPDATE exam_sessions
		 SET student_name = ?, student_grade = ?, question_index = ?, state = ?,
		     time_remaining = ?, total_score = ?, completed_at = ?
		 WHERE id = ?`,
		sess.StudentName, sess.StudentGrade, sess.QuestionIndex, sess.State,
		sess.TimeRemaining, sess.TotalScore, sess.CompletedAt, sess.ID,
	)
	return err
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(limit int) ([]model.ExamSession, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, session_id, student_name, student_grade, question_index, state, time_remaining, total_score, started_at, completed_at
		 FROM exam_sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.ExamSession
	for rows.Next() {
		var sess model.ExamSession
		if err := rows.Scan(&sess.ID, &sess.ExamID, &sess.SessionID, &sess.StudentName, &sess.StudentGrade,
			&sess.QuestionIndex, &sess.State, &sess.TimeRemaining, &sess.TotalScore, &sess.StartedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpsertResponse stores a student response, keyed by (session, question).
// A re-confirmed answer overwrites the stored one and increments attempts.
func (s *Store) UpsertResponse(r model.StudentResponse) error {
	_, err := s.db.Exec(
		`INSERT INTO student_responses (session_id, question_id, transcribed_text, final_answer, is_correct, points_earned, attempts, answered_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		 ON CONFLICT(session_id, question_id) DO UPDATE SET
		     transcribed_text = excluded.transcribed_text,
		     final_answer = excluded.final_answer,
		     is_correct = excluded.is_correct,
		     points_earned = excluded.points_earned,
		     attempts = attempts + 1,
		     answered_at = excluded.answered_at`,
		r.SessionID, r.QuestionID, r.TranscribedText, r.FinalAnswer, r.IsCorrect, r.PointsEarned, time.Now(),
	)
	return err
}

// GetResponse returns the stored response for a (session, question) pair,
// or nil if the question has not been answered.
func (s *Store) GetResponse(sessionID, questionID int64) (*model.StudentResponse, error) {
	var r model.StudentResponse
	err := s.db.QueryRow(
		`SELECT id, session_id, question_id, transcribed_text, final_answer, is_correct, points_earned, attempts, answered_at
		 FROM student_responses WHERE session_id = ? AND question_id = ?`,
		sessionID, questionID,
	).Scan(&r.ID, &r.SessionID, &r.QuestionID, &r.TranscribedText, &r.FinalAnswer, &r.IsCorrect, &r.PointsEarned, &r.Attempts, &r.AnsweredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResponses returns a session's responses ordered by answer time.
func (s *Store) ListResponses(sessionID int64) ([]model.StudentResponse, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, question_id, transcribed_text, final_answer, is_correct, points_earned, attempts, answered_at
		 FROM student_responses WHERE session_id = ? ORDER BY answered_at, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var responses []model.StudentResponse
	for rows.Next() {
		var r model.StudentResponse
		if err := rows.Scan(&r.ID, &r.SessionID, &r.QuestionID, &r.TranscribedText, &r.FinalAnswer, &r.IsCorrect, &r.PointsEarned, &r.Attempts, &r.AnsweredAt); err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// SessionScore sums the points earned across a session's stored responses.
func (s *Store) SessionScore(sessionID int64) (int, error) {
	var score int
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(points_earned), 0) FROM student_responses WHERE session_id = ?`, sessionID,
	).Scan(&score)
	return score, err
}

// GetSessionView builds a full view of a session with its exam and responses,
// or nil if the session does not exist.
func (s *Store) GetSessionView(sessionID string) (*model.SessionView, error) {
	sess, err := s.GetSessionBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	exam, err := s.GetExamView(sess.ExamID)
	if err != nil {
		return nil, err
	}
	responses, err := s.ListResponses(sess.ID)
	if err != nil {
		return nil, err
	}
	return &model.SessionView{Session: *sess, Exam: *exam, Responses: responses}, nil
}

// ExamCount returns the number of exams in the database.
func (s *Store) ExamCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exams`).Scan(&count)
	return count, err
}
