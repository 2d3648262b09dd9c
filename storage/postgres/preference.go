package postgres

import (
	"context"
	"database/sql"
	"errors"
)

const (
	getPreferenceQuery = `SELECT enable_context_based_auth FROM user_preferences WHERE user_id = $1`
	setPreferenceQuery = `INSERT INTO user_preferences (user_id, enable_context_based_auth, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET enable_context_based_auth = EXCLUDED.enable_context_based_auth, updated_at = now()`
)

// PreferenceStore keeps the context-auth flag in user_preferences.
type PreferenceStore struct {
	db DBTX
}

// NewPreferenceStore returns a PreferenceStore over db.
func NewPreferenceStore(db DBTX) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// ContextAuthEnabled returns the stored flag; found is false when no row exists.
func (s *PreferenceStore) ContextAuthEnabled(ctx context.Context, userID string) (enabled, found bool, err error) {
	err = s.db.QueryRowContext(ctx, getPreferenceQuery, userID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, unavailable(err)
	}
	return enabled, true, nil
}

// SetContextAuthEnabled upserts the flag.
func (s *PreferenceStore) SetContextAuthEnabled(ctx context.Context, userID string, enabled bool) error {
	if _, err := s.db.ExecContext(ctx, setPreferenceQuery, userID, enabled); err != nil {
		return unavailable(err)
	}
	return nil
}
