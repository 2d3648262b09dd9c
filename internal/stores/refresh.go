package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRefreshRedisUnavailable wraps backend failures of the refresh store.
var ErrRefreshRedisUnavailable = errors.New("refresh token redis unavailable")

// RefreshTokenStore keeps exactly one refresh token per user. Put is an
// atomic upsert so the last issuance always wins.
type RefreshTokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRefreshTokenStore returns a RefreshTokenStore using prefix ("rt" when empty).
func NewRefreshTokenStore(redisClient redis.UniversalClient, prefix string) *RefreshTokenStore {
	if prefix == "" {
		prefix = "rt"
	}
	return &RefreshTokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RefreshTokenStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Put stores token for userID, replacing any previous one.
func (s *RefreshTokenStore) Put(ctx context.Context, userID, token string, issuedAt time.Time, ttl time.Duration) error {
	if userID == "" || token == "" {
		return errors.New("refresh record requires user id and token")
	}

	key := s.key(userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "token", token, "issued_at", strconv.FormatInt(issuedAt.UnixMilli(), 10))
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return nil
}

// Get returns the persisted token or "" when none exists.
func (s *RefreshTokenStore) Get(ctx context.Context, userID string) (string, error) {
	token, err := s.redis.HGet(ctx, s.key(userID), "token").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return token, nil
}

// Delete revokes the user's refresh token.
func (s *RefreshTokenStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return nil
}
