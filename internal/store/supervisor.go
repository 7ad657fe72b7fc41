package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/sneportal/voiceexam/internal/model"
)

// CreateSupervisor inserts a new supervisor.
func (s *Store) CreateSupervisor(sup model.Supervisor) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO supervisors (username, display_name, password_hash, active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sup.Username, sup.DisplayName, sup.PasswordHash, sup.Active, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create supervisor", "username", sup.Username, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created supervisor", "id", id, "username", sup.Username)
	return id, nil
}

// GetSupervisorByUsername returns a supervisor by username, or nil.
func (s *Store) GetSupervisorByUsername(username string) (*model.Supervisor, error) {
	var sup model.Supervisor
	err := s.db.QueryRow(
		`SELECT id, username, display_name, password_hash, active, created_at
		 FROM supervisors WHERE username = ?`, username,
	).Scan(&sup.ID, &sup.Username, &sup.DisplayName, &sup.PasswordHash, &sup.Active, &sup.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

// GetSupervisorByID returns a supervisor by ID, or nil.
func (s *Store) GetSupervisorByID(id int64) (*model.Supervisor, error) {
	var sup model.Supervisor
	err := s.db.QueryRow(
		`SELECT id, username, display_name, password_hash, active, created_at
		 FROM supervisors WHERE id = ?`, id,
	).Scan(&sup.ID, &sup.Username, &sup.DisplayName, &sup.PasswordHash, &sup.Active, &sup.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

// SupervisorCount returns the total number of supervisors.
func (s *Store) SupervisorCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM supervisors`).Scan(&count)
	return count, err
}
