package postgres

import (
	"context"
	"database/sql"
	"errors"

	ctxAuth "github.com/MrEthical07/ctxAuth"
)

const (
	getUserByEmailQuery    = `SELECT id, email, name, role, email_verified FROM users WHERE lower(email) = lower($1)`
	markEmailVerifiedQuery = `UPDATE users SET email_verified = TRUE WHERE id = $1`
)

// UserDirectory reads the users table. Hosts with their own user schema
// implement ctxAuth.UserDirectory themselves.
type UserDirectory struct {
	db DBTX
}

var _ ctxAuth.UserDirectory = (*UserDirectory)(nil)

// NewUserDirectory returns a UserDirectory over db.
func NewUserDirectory(db DBTX) *UserDirectory {
	return &UserDirectory{db: db}
}

// GetUserByEmail matches email case-insensitively.
func (d *UserDirectory) GetUserByEmail(ctx context.Context, email string) (ctxAuth.UserRecord, error) {
	var u ctxAuth.UserRecord
	err := d.db.QueryRowContext(ctx, getUserByEmailQuery, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.EmailVerified)
	if errors.Is(err, sql.ErrNoRows) {
		return ctxAuth.UserRecord{}, ctxAuth.ErrUserNotFound
	}
	if err != nil {
		return ctxAuth.UserRecord{}, unavailable(err)
	}
	return u, nil
}

// MarkEmailVerified sets email_verified for userID.
func (d *UserDirectory) MarkEmailVerified(ctx context.Context, userID string) error {
	res, err := d.db.ExecContext(ctx, markEmailVerifiedQuery, userID)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ctxAuth.ErrUserNotFound
	}
	return nil
}
