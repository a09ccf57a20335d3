package store

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/pavelanni/quizmark/internal/model"
)

const authSessionTTL = 24 * time.Hour

// Only a SHA-256 digest of each token is stored; the token itself lives in
// the user's cookie.
func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateAuthSession starts a session for userID and returns its token.
func (s *Store) CreateAuthSession(userID int64) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		tokenDigest(token), userID, now, now.Add(authSessionTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession resolves a token. It returns nil for unknown and expired
// tokens; expired rows are removed.
func (s *Store) GetAuthSession(token string) (*model.AuthSession, error) {
	id := tokenDigest(token)
	var sess model.AuthSession
	err := s.db.Get(&sess, `SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}
	if !time.Now().Before(sess.ExpiresAt) {
		if _, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, id); err != nil {
			slog.Warn("failed to drop expired session", "user_id", sess.UserID, "error", err)
		}
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession ends the session of token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, tokenDigest(token))
	return err
}

// DeleteUserSessions signs a user out everywhere.
func (s *Store) DeleteUserSessions(userID int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupExpiredSessions removes expired sessions and reports how many.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
