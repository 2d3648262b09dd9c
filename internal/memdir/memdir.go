// Package memdir is an in-memory ctxAuth.UserDirectory for development
// servers, examples and load tests.
package memdir

import (
	"context"
	"strings"
	"sync"

	ctxAuth "github.com/MrEthical07/ctxAuth"
)

// Directory keys users by lowercased email.
type Directory struct {
	mu      sync.RWMutex
	byEmail map[string]ctxAuth.UserRecord
}

var _ ctxAuth.UserDirectory = (*Directory)(nil)

// New returns a directory seeded with users.
func New(users ...ctxAuth.UserRecord) *Directory {
	d := &Directory{byEmail: make(map[string]ctxAuth.UserRecord, len(users))}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// Put inserts or replaces u.
func (d *Directory) Put(u ctxAuth.UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[strings.ToLower(strings.TrimSpace(u.Email))] = u
}

// Len returns the number of users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byEmail)
}

// GetUserByEmail implements ctxAuth.UserDirectory.
func (d *Directory) GetUserByEmail(_ context.Context, email string) (ctxAuth.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return ctxAuth.UserRecord{}, ctxAuth.ErrUserNotFound
	}
	return u, nil
}

// MarkEmailVerified implements ctxAuth.UserDirectory.
func (d *Directory) MarkEmailVerified(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, u := range d.byEmail {
		if u.ID == userID {
			u.EmailVerified = true
			d.byEmail[k] = u
			return nil
		}
	}
	return ctxAuth.ErrUserNotFound
}
