package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrPreferenceRedisUnavailable wraps backend failures of the preference store.
var ErrPreferenceRedisUnavailable = errors.New("preference redis unavailable")

// PreferenceStore keeps the per-user context-auth flag.
type PreferenceStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewPreferenceStore returns a PreferenceStore using prefix ("pref" when empty).
func NewPreferenceStore(redisClient redis.UniversalClient, prefix string) *PreferenceStore {
	if prefix == "" {
		prefix = "pref"
	}
	return &PreferenceStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PreferenceStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// ContextAuthEnabled returns the stored flag; found is false when unset.
func (s *PreferenceStore) ContextAuthEnabled(ctx context.Context, userID string) (enabled, found bool, err error) {
	v, err := s.redis.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("%w: %v", ErrPreferenceRedisUnavailable, err)
	}
	return v == "1", true, nil
}

// SetContextAuthEnabled stores the flag.
func (s *PreferenceStore) SetContextAuthEnabled(ctx context.Context, userID string, enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	if err := s.redis.Set(ctx, s.key(userID), v, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPreferenceRedisUnavailable, err)
	}
	return nil
}
