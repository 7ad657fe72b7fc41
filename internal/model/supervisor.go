package model

import (
	"context"
	"time"
)

// Supervisor is a staff member who administers exams and reviews results.
type Supervisor struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// AuthSession is a supervisor's authentication session.
type AuthSession struct {
	ID           string
	SupervisorID int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type supervisorCtxKey struct{}

// ContextWithSupervisor stores a supervisor in the request context.
func ContextWithSupervisor(ctx context.Context, sup *Supervisor) context.Context {
	return context.WithValue(ctx, supervisorCtxKey{}, sup)
}

// SupervisorFromContext retrieves the authenticated supervisor from context, or nil.
func SupervisorFromContext(ctx context.Context) *Supervisor {
	sup, _ := ctx.Value(supervisorCtxKey{}).(*Supervisor)
	return sup
}
