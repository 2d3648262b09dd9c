package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/ctxAuth/fingerprint"
	"github.com/MrEthical07/ctxAuth/trust"
	"github.com/google/uuid"
)

const trustColumns = `id, user_id, browser, os, network, state, is_primary, created_at, last_seen_at, updated_at`

const recordAttemptQuery = `INSERT INTO trust_contexts (id, user_id, fp_key, browser, os, network, state, is_primary, created_at, last_seen_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 'pending', FALSE, $7, $7, $7)
ON CONFLICT (user_id, fp_key) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
RETURNING ` + trustColumns

// registerPrimaryQuery creates a trusted primary record, or promotes a
// pending one. A blocked record only gets its last_seen_at refreshed.
const registerPrimaryQuery = `INSERT INTO trust_contexts (id, user_id, fp_key, browser, os, network, state, is_primary, created_at, last_seen_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 'trusted', TRUE, $7, $7, $7)
ON CONFLICT (user_id, fp_key) DO UPDATE SET
    last_seen_at = EXCLUDED.last_seen_at,
    state = CASE WHEN trust_contexts.state = 'pending' THEN 'trusted' ELSE trust_contexts.state END,
    updated_at = CASE WHEN trust_contexts.state = 'pending' THEN EXCLUDED.updated_at ELSE trust_contexts.updated_at END,
    is_primary = trust_contexts.is_primary OR trust_contexts.state <> 'blocked'
RETURNING ` + trustColumns

const (
	lookupTrustQuery = `SELECT ` + trustColumns + ` FROM trust_contexts WHERE user_id = $1 AND fp_key = $2`
	getTrustQuery    = `SELECT ` + trustColumns + ` FROM trust_contexts WHERE user_id = $1 AND id = $2`
	deleteTrustQuery = `DELETE FROM trust_contexts WHERE user_id = $1 AND id = $2`
	listTrustQuery   = `SELECT ` + trustColumns + ` FROM trust_contexts WHERE user_id = $1 ORDER BY last_seen_at DESC, id`
)

// TrustStore is the PostgreSQL implementation of trust.Store.
type TrustStore struct {
	db    DBTX
	newID func() string
}

var _ trust.Store = (*TrustStore)(nil)

// NewTrustStore returns a TrustStore over db.
func NewTrustStore(db DBTX) *TrustStore {
	return &TrustStore{db: db, newID: uuid.NewString}
}

// RecordAttempt creates a pending record or refreshes last_seen_at.
func (s *TrustStore) RecordAttempt(ctx context.Context, userID string, fp fingerprint.Fingerprint, now time.Time) (*trust.Record, error) {
	return s.upsert(ctx, recordAttemptQuery, userID, fp, now)
}

// RegisterPrimary creates or promotes the record as the user's primary context.
func (s *TrustStore) RegisterPrimary(ctx context.Context, userID string, fp fingerprint.Fingerprint, now time.Time) (*trust.Record, error) {
	return s.upsert(ctx, registerPrimaryQuery, userID, fp, now)
}

func (s *TrustStore) upsert(ctx context.Context, query, userID string, fp fingerprint.Fingerprint, now time.Time) (*trust.Record, error) {
	if userID == "" {
		return nil, errors.New("trust record requires user id")
	}
	fp = fp.Normalized()

	row := s.db.QueryRowContext(ctx, query,
		s.newID(), userID, fp.Key(), fp.BrowserFamily, fp.OSFamily, fp.NetworkOrigin, now.UTC())
	rec, err := scanTrust(row)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	return rec, nil
}

// Lookup returns the record for (user, fingerprint) without modifying it.
func (s *TrustStore) Lookup(ctx context.Context, userID string, fp fingerprint.Fingerprint) (*trust.Record, error) {
	return s.one(ctx, lookupTrustQuery, userID, fp.Normalized().Key())
}

// Get returns the record with id if it belongs to userID.
func (s *TrustStore) Get(ctx context.Context, userID, id string) (*trust.Record, error) {
	return s.one(ctx, getTrustQuery, userID, id)
}

func (s *TrustStore) one(ctx context.Context, query string, args ...any) (*trust.Record, error) {
	rec, err := scanTrust(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trust.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	return rec, nil
}

// Transition applies the guard from trust.Guard(to, from...) in the UPDATE itself.
// When no row changes, a follow-up read tells a missing record apart from a
// rejected transition.
func (s *TrustStore) Transition(ctx context.Context, userID, id string, to trust.State, now time.Time, from ...trust.State) (*trust.Record, error) {
	sources, err := trust.Guard(to, from...)
	if err != nil {
		return nil, err
	}

	args := []any{userID, id, to.String(), now.UTC()}
	placeholders := make([]string, len(sources))
	for i, src := range sources {
		args = append(args, src)
		placeholders[i] = "$" + strconv.Itoa(len(args))
	}

	query := `UPDATE trust_contexts
SET updated_at = CASE WHEN state = $3 THEN updated_at ELSE $4 END, state = $3
WHERE user_id = $1 AND id = $2 AND state IN (` + strings.Join(placeholders, ", ") + `)
RETURNING ` + trustColumns

	rec, err := scanTrust(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}

	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return nil, trust.ErrInvalidTransition
}

// Delete removes the record.
func (s *TrustStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, deleteTrustQuery, userID, id)
	if err != nil {
		return fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	if n == 0 {
		return trust.ErrNotFound
	}
	return nil
}

// List returns every record owned by userID, most recently seen first.
func (s *TrustStore) List(ctx context.Context, userID string) ([]trust.Record, error) {
	rows, err := s.db.QueryContext(ctx, listTrustQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	defer rows.Close()

	out := []trust.Record{}
	for rows.Next() {
		rec, err := scanTrust(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrust(row scanner) (*trust.Record, error) {
	var (
		rec   trust.Record
		state string
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Fingerprint.BrowserFamily,
		&rec.Fingerprint.OSFamily,
		&rec.Fingerprint.NetworkOrigin,
		&state,
		&rec.Primary,
		&rec.CreatedAt,
		&rec.LastSeenAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.State, err = trust.ParseState(state); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.LastSeenAt = rec.LastSeenAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}
