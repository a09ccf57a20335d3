package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/quizmark/internal/model"
)

const quizColumns = `id, tenant_id, title, markdown, severity, tone, language,
	shuffle_options, active, created_by, created_at, updated_at`

// CreateQuiz stores a quiz and returns its ID. The caller is expected to
// have parsed and validated the Markdown.
func (s *Store) CreateQuiz(r model.QuizRecord) (int64, error) {
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	res, err := s.db.NamedExec(
		`INSERT INTO quizzes (tenant_id, title, markdown, severity, tone, language,
			shuffle_options, active, created_by, created_at, updated_at)
		 VALUES (:tenant_id, :title, :markdown, :severity, :tone, :language,
			:shuffle_options, :active, :created_by, :created_at, :updated_at)`,
		r,
	)
	if err != nil {
		return 0, fmt.Errorf("insert quiz: %w", err)
	}
	return res.LastInsertId()
}

// GetQuiz returns a quiz by ID.
func (s *Store) GetQuiz(id int64) (*model.QuizRecord, error) {
	var r model.QuizRecord
	err := s.db.Get(&r, `SELECT `+quizColumns+` FROM quizzes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quiz %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListQuizzes returns the quizzes visible to a tenant, newest first. A nil
// tenant sees every quiz.
func (s *Store) ListQuizzes(tenantID *int64) ([]model.QuizRecord, error) {
	var quizzes []model.QuizRecord
	var err error
	if tenantID == nil {
		err = s.db.Select(&quizzes, `SELECT `+quizColumns+` FROM quizzes ORDER BY id DESC`)
	} else {
		err = s.db.Select(&quizzes,
			`SELECT `+quizColumns+` FROM quizzes WHERE tenant_id = ? ORDER BY id DESC`, *tenantID)
	}
	return quizzes, err
}

// UpdateQuiz replaces the content and grading settings of a quiz.
func (s *Store) UpdateQuiz(r model.QuizRecord) error {
	r.UpdatedAt = time.Now()
	res, err := s.db.NamedExec(
		`UPDATE quizzes SET title = :title, markdown = :markdown, severity = :severity,
			tone = :tone, language = :language, shuffle_options = :shuffle_options,
			active = :active, updated_at = :updated_at
		 WHERE id = :id`,
		r,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("quiz %d: %w", r.ID, ErrNotFound)
	}
	return nil
}
