package store

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a quiz or submission does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadySubmitted is returned when a student answers a quiz twice.
	ErrAlreadySubmitted = errors.New("quiz already answered")
)

type Store struct {
	db *sqlx.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)
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
	CREATE TABLE IF NOT EXISTS tenants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		monthly_ai_corrections INTEGER NOT NULL DEFAULT 0,
		monthly_quiz_generations INTEGER NOT NULL DEFAULT 0,
		monthly_class_analyses INTEGER NOT NULL DEFAULT 0,
		used_ai_corrections INTEGER NOT NULL DEFAULT 0,
		used_quiz_generations INTEGER NOT NULL DEFAULT 0,
		used_class_analyses INTEGER NOT NULL DEFAULT 0,
		usage_month TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER REFERENCES tenants(id),
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'student',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quizzes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER REFERENCES tenants(id),
		title TEXT NOT NULL,
		markdown TEXT NOT NULL,
		severity TEXT NOT NULL,
		tone TEXT NOT NULL,
		language TEXT NOT NULL,
		shuffle_options BOOLEAN NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		quiz_id INTEGER NOT NULL REFERENCES quizzes(id),
		student_id INTEGER NOT NULL REFERENCES users(id),
		status TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		resolved_max INTEGER NOT NULL DEFAULT 0,
		max_score INTEGER NOT NULL DEFAULT 0,
		analysis TEXT NOT NULL DEFAULT '',
		started_at DATETIME,
		submitted_at DATETIME NOT NULL,
		graded_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id INTEGER NOT NULL REFERENCES submissions(id),
		question_index INTEGER NOT NULL,
		selected TEXT NOT NULL DEFAULT '[]',
		text TEXT NOT NULL DEFAULT '',
		time_spent_seconds INTEGER NOT NULL DEFAULT 0,
		focus_lost INTEGER NOT NULL DEFAULT 0,
		max_points INTEGER NOT NULL,
		score INTEGER,
		feedback TEXT NOT NULL DEFAULT '',
		provenance TEXT NOT NULL DEFAULT '',
		needs_review BOOLEAN NOT NULL DEFAULT 0,
		failure_reason TEXT NOT NULL DEFAULT '',
		UNIQUE (submission_id, question_index)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_quiz ON submissions(quiz_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_student ON submissions(quiz_id, student_id);
	`
	_, err := s.db.Exec(schema)
	return err
}
