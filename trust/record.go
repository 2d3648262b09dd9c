package trust

import (
	"context"
	"sort"
	"time"

	"github.com/MrEthical07/ctxAuth/fingerprint"
)

// Record is one known login context for a user.
type Record struct {
	ID          string
	UserID      string
	Fingerprint fingerprint.Fingerprint
	State       State
	// Primary marks the context registered when the account's email was verified.
	Primary    bool
	CreatedAt  time.Time
	LastSeenAt time.Time
	UpdatedAt  time.Time
}

// Store persists trust records. Every method is owner-scoped: a record id
// belonging to another user behaves as [ErrNotFound].
//
// RecordAttempt and RegisterPrimary must be atomic create-or-touch operations
// keyed by (userID, fp.Key()). Transition must apply the guard from [Guard]
// in the same atomic step as the write, returning [ErrInvalidTransition] when
// the current state is not an allowed source.
type Store interface {
	Lookup(ctx context.Context, userID string, fp fingerprint.Fingerprint) (*Record, error)
	RecordAttempt(ctx context.Context, userID string, fp fingerprint.Fingerprint, now time.Time) (*Record, error)
	RegisterPrimary(ctx context.Context, userID string, fp fingerprint.Fingerprint, now time.Time) (*Record, error)
	Get(ctx context.Context, userID, id string) (*Record, error)
	Transition(ctx context.Context, userID, id string, to State, now time.Time, from ...State) (*Record, error)
	Delete(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string) ([]Record, error)
}

// Promote moves a pending record to trusted. Blocked records are rejected.
func Promote(ctx context.Context, s Store, userID, id string, now time.Time) (*Record, error) {
	return s.Transition(ctx, userID, id, StateTrusted, now)
}

// Block moves a record in any state to blocked.
func Block(ctx context.Context, s Store, userID, id string, now time.Time) (*Record, error) {
	return s.Transition(ctx, userID, id, StateBlocked, now)
}

// Reject blocks a record that is still pending. Trusted and blocked records
// fail with [ErrInvalidTransition] and are left untouched.
func Reject(ctx context.Context, s Store, userID, id string, now time.Time) (*Record, error) {
	return s.Transition(ctx, userID, id, StateBlocked, now, StatePending)
}

// Unblock resets a blocked record to pending so it must be verified again.
func Unblock(ctx context.Context, s Store, userID, id string, now time.Time) (*Record, error) {
	return s.Transition(ctx, userID, id, StatePending, now)
}

// ListByState returns the user's records in the given state, most recently
// seen first.
func ListByState(ctx context.Context, s Store, userID string, state State) ([]Record, error) {
	return filter(ctx, s, userID, func(r Record) bool { return r.State == state })
}

// ListPrimary returns the user's primary contexts that are not blocked.
func ListPrimary(ctx context.Context, s Store, userID string) ([]Record, error) {
	return filter(ctx, s, userID, func(r Record) bool { return r.Primary && r.State != StateBlocked })
}

func filter(ctx context.Context, s Store, userID string, keep func(Record) bool) ([]Record, error) {
	all, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(all))
	for _, r := range all {
		if keep(r) {
			out = append(out, r)
		}
	}
	SortByLastSeen(out)
	return out, nil
}

// SortByLastSeen orders records most recently seen first, breaking ties by id.
func SortByLastSeen(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].LastSeenAt.Equal(records[j].LastSeenAt) {
			return records[i].LastSeenAt.After(records[j].LastSeenAt)
		}
		return records[i].ID < records[j].ID
	})
}
