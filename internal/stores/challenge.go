package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/ctxAuth/challenge"
	"github.com/redis/go-redis/v9"
)

// expiredRetention keeps a lapsed challenge around long enough to report
// Expired rather than NotFound.
const expiredRetention = time.Hour

// verifyChallengeLua atomically performs GET→validate→DEL on a challenge.
// KEYS[1] = challenge key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = max attempts (0 disables the cap)
// ARGV[3] = current unix ms
//
// Returns:
//
//	flat field list on success
//	error string: "not_found", "expired", "mismatch", "attempts_exceeded"
//
// Only SHA-256 digests of codes are stored and compared.
var verifyChallengeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end

local expiresAt = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if (not expiresAt) or tonumber(ARGV[3]) >= expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if redis.call('HGET', KEYS[1], 'code_hash') ~= ARGV[1] then
  local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  local maxAttempts = tonumber(ARGV[2])
  if maxAttempts > 0 and attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  return {err='mismatch'}
end

local rec = redis.call('HGETALL', KEYS[1])
redis.call('DEL', KEYS[1])
return rec
`)

// removeChallengeLua deletes the challenge only if it still carries ARGV[1].
var removeChallengeLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'code_hash') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// ChallengeStore is the Redis implementation of challenge.Store.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

var _ challenge.Store = (*ChallengeStore)(nil)

// NewChallengeStore returns a ChallengeStore using prefix ("acv" when empty).
func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "acv"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) key(subject string, purpose challenge.Purpose) string {
	return s.prefix + ":" + string(purpose) + ":" + challenge.NormalizeSubject(subject)
}

// Save replaces any active challenge for (Subject, Purpose).
func (s *ChallengeStore) Save(ctx context.Context, record challenge.Record) error {
	if record.Subject == "" || !record.Purpose.Valid() {
		return errors.New("challenge requires subject and purpose")
	}
	if !record.ExpiresAt.After(record.IssuedAt) {
		return errors.New("challenge expiry must follow issuance")
	}

	key := s.key(record.Subject, record.Purpose)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"subject", challenge.NormalizeSubject(record.Subject),
			"purpose", string(record.Purpose),
			"code_hash", string(record.CodeHash[:]),
			"context_id", record.ContextID,
			"issued_at", strconv.FormatInt(record.IssuedAt.UnixMilli(), 10),
			"expires_at", strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10),
			"attempts", "0",
		)
		pipe.PExpireAt(ctx, key, record.ExpiresAt.Add(expiredRetention))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", challenge.ErrUnavailable, err)
	}
	return nil
}

// Verify checks codeHash and consumes the challenge on match.
func (s *ChallengeStore) Verify(
	ctx context.Context,
	subject string,
	purpose challenge.Purpose,
	codeHash [32]byte,
	maxAttempts int,
	now time.Time,
) (*challenge.Record, error) {
	result, err := verifyChallengeLua.Run(ctx, s.redis,
		[]string{s.key(subject, purpose)},
		string(codeHash[:]),
		maxAttempts,
		now.UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, challenge.ErrNotFound
		case "expired":
			return nil, challenge.ErrExpired
		case "mismatch":
			return nil, challenge.ErrMismatch
		case "attempts_exceeded":
			return nil, challenge.ErrAttemptsExceeded
		default:
			return nil, fmt.Errorf("%w: %v", challenge.ErrUnavailable, err)
		}
	}

	fields, err := flatToMap(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", challenge.ErrUnavailable, err)
	}
	record, err := decodeChallengeFields(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", challenge.ErrUnavailable, err)
	}
	return record, nil
}

// Remove deletes the challenge if it still carries codeHash.
func (s *ChallengeStore) Remove(ctx context.Context, subject string, purpose challenge.Purpose, codeHash [32]byte) error {
	if err := removeChallengeLua.Run(ctx, s.redis, []string{s.key(subject, purpose)}, string(codeHash[:])).Err(); err != nil {
		return fmt.Errorf("%w: %v", challenge.ErrUnavailable, err)
	}
	return nil
}

// Discard deletes any active challenge for (subject, purpose).
func (s *ChallengeStore) Discard(ctx context.Context, subject string, purpose challenge.Purpose) error {
	if err := s.redis.Del(ctx, s.key(subject, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", challenge.ErrUnavailable, err)
	}
	return nil
}

func decodeChallengeFields(fields map[string]string) (*challenge.Record, error) {
	hash := fields["code_hash"]
	if len(hash) != 32 {
		return nil, errors.New("invalid challenge hash length")
	}

	record := &challenge.Record{
		Subject:   fields["subject"],
		Purpose:   challenge.Purpose(fields["purpose"]),
		ContextID: fields["context_id"],
	}
	copy(record.CodeHash[:], hash)

	var err error
	if record.IssuedAt, err = parseUnixMilli(fields["issued_at"]); err != nil {
		return nil, err
	}
	if record.ExpiresAt, err = parseUnixMilli(fields["expires_at"]); err != nil {
		return nil, err
	}
	if v := fields["attempts"]; v != "" {
		if record.Attempts, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid attempts %q", v)
		}
	}
	return record, nil
}
