package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64     `db:"id" json:"id"`
	TenantID     *int64    `db:"tenant_id" json:"tenant_id,omitempty"`
	Username     string    `db:"username" json:"username"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CanAuthor reports whether the user may create quizzes and review grades.
func (u *User) CanAuthor() bool {
	return u != nil && (u.Role == UserRoleTeacher || u.Role == UserRoleAdmin)
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string    `db:"id"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuizRecord is a persisted quiz: the authored Markdown plus its grading
// settings. The parsed Quiz is rebuilt from Markdown on every load.
type QuizRecord struct {
	ID        int64     `db:"id" json:"id"`
	TenantID  *int64    `db:"tenant_id" json:"tenant_id,omitempty"`
	Title     string    `db:"title" json:"title"`
	Markdown  string    `db:"markdown" json:"markdown"`
	Severity  Severity  `db:"severity" json:"severity"`
	Tone      Tone      `db:"tone" json:"tone"`
	Language  Language  `db:"language" json:"language"`
	Shuffle   bool      `db:"shuffle_options" json:"shuffle_options"`
	Active    bool      `db:"active" json:"active"`
	CreatedBy int64     `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GradingConfig returns the grading configuration stored with the quiz.
func (r QuizRecord) GradingConfig() GradingConfig {
	return GradingConfig{Severity: r.Severity, Tone: r.Tone, Language: r.Language}
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	BasePath       string // URL prefix for sub-path deployments, e.g. "/quiz"
	SecureCookies  bool
	DefaultTenant  int64         // 0 means users without a tenant have no quota
	GradingTimeout time.Duration // per external call
	MaxConcurrent  int           // open questions graded in parallel per submission
}
