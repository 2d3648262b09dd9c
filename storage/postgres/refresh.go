package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	putRefreshQuery = `INSERT INTO refresh_tokens (user_id, token, issued_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET token = EXCLUDED.token, issued_at = EXCLUDED.issued_at, expires_at = EXCLUDED.expires_at`
	getRefreshQuery    = `SELECT token FROM refresh_tokens WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)`
	deleteRefreshQuery = `DELETE FROM refresh_tokens WHERE user_id = $1`
)

// RefreshTokenStore keeps one refresh token per user in refresh_tokens.
type RefreshTokenStore struct {
	db  DBTX
	now func() time.Time
}

// NewRefreshTokenStore returns a RefreshTokenStore over db.
func NewRefreshTokenStore(db DBTX) *RefreshTokenStore {
	return &RefreshTokenStore{db: db, now: time.Now}
}

// Put upserts the user's token; the last write wins.
func (s *RefreshTokenStore) Put(ctx context.Context, userID, token string, issuedAt time.Time, ttl time.Duration) error {
	if userID == "" || token == "" {
		return errors.New("refresh record requires user id and token")
	}

	var expires sql.NullTime
	if ttl > 0 {
		expires = sql.NullTime{Time: issuedAt.Add(ttl).UTC(), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, putRefreshQuery, userID, token, issuedAt.UTC(), expires); err != nil {
		return unavailable(err)
	}
	return nil
}

// Get returns the unexpired token or "" when none exists.
func (s *RefreshTokenStore) Get(ctx context.Context, userID string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, getRefreshQuery, userID, s.now().UTC()).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", unavailable(err)
	}
	return token, nil
}

// Delete revokes the user's refresh token.
func (s *RefreshTokenStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, deleteRefreshQuery, userID); err != nil {
		return unavailable(err)
	}
	return nil
}
