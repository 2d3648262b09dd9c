// Package challenge defines the short-lived, single-use verification codes
// mailed out of band: the [Purpose] vocabulary, the persisted [Record], and the
// [Store] port.
//
// At most one challenge is active per (subject, purpose). Stores enforce this
// by replacing on save, so issuing a new code makes the previous one fail with
// [ErrNotFound] or [ErrMismatch].
package challenge

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no active challenge exists, including after consumption.
	ErrNotFound = errors.New("challenge not found")
	// ErrExpired is returned when the challenge exists but its window has closed.
	ErrExpired = errors.New("challenge expired")
	// ErrMismatch is returned when the submitted code does not match.
	ErrMismatch = errors.New("challenge code mismatch")
	// ErrAttemptsExceeded is returned when the mismatch that hit the attempt cap destroyed the challenge.
	ErrAttemptsExceeded = errors.New("challenge attempts exceeded")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("challenge store unavailable")
)

// Purpose scopes a challenge.
type Purpose string

const (
	// PurposeSignupEmail verifies control of the address given at signup.
	PurposeSignupEmail Purpose = "signup-email-verify"
	// PurposeLoginContext approves a login from an unrecognized context.
	PurposeLoginContext Purpose = "login-context-verify"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeSignupEmail || p == PurposeLoginContext
}

// Record is the persisted form of a challenge. The plaintext code is never stored.
type Record struct {
	Subject   string
	Purpose   Purpose
	CodeHash  [32]byte
	ContextID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Attempts  int
}

// Store persists challenges.
//
// Save replaces any existing challenge for (Subject, Purpose) atomically.
// Verify atomically checks and consumes: on match the record is deleted and
// returned, so two concurrent calls with the same code cannot both succeed.
// Remove deletes the challenge only if its CodeHash still equals codeHash.
// Discard deletes whatever challenge is active.
type Store interface {
	Save(ctx context.Context, record Record) error
	Verify(ctx context.Context, subject string, purpose Purpose, codeHash [32]byte, maxAttempts int, now time.Time) (*Record, error)
	Remove(ctx context.Context, subject string, purpose Purpose, codeHash [32]byte) error
	Discard(ctx context.Context, subject string, purpose Purpose) error
}

// NormalizeSubject lowercases and trims an email subject.
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}

// HashCode returns the digest stored in place of the code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(code)))
}
