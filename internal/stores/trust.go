package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/ctxAuth/fingerprint"
	"github.com/MrEthical07/ctxAuth/trust"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	modeAttempt = "attempt"
	modePrimary = "primary"
)

// touchTrustLua creates or touches the record for (user, fingerprint).
// KEYS[1] = fingerprint index key
// KEYS[2] = user set key
// ARGV[1] = candidate id, ARGV[2] = user id
// ARGV[3] = browser, ARGV[4] = os, ARGV[5] = network, ARGV[6] = fingerprint key
// ARGV[7] = now (unix ms), ARGV[8] = record key prefix, ARGV[9] = mode
//
// In primary mode a new record starts trusted, and an existing pending record
// is promoted. Blocked records are never changed beyond last_seen_at.
var touchTrustLua = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
local recKey
if id then
  recKey = ARGV[8] .. id
  if redis.call('EXISTS', recKey) == 0 then
    id = false
  end
end

if not id then
  id = ARGV[1]
  recKey = ARGV[8] .. id
  local state = 'pending'
  local primary = '0'
  if ARGV[9] == 'primary' then
    state = 'trusted'
    primary = '1'
  end
  redis.call('HSET', recKey,
    'id', id, 'user_id', ARGV[2],
    'browser', ARGV[3], 'os', ARGV[4], 'network', ARGV[5], 'fp_key', ARGV[6],
    'state', state, 'primary', primary,
    'created_at', ARGV[7], 'last_seen_at', ARGV[7], 'updated_at', ARGV[7])
  redis.call('SET', KEYS[1], id)
  redis.call('SADD', KEYS[2], id)
  return redis.call('HGETALL', recKey)
end

redis.call('HSET', recKey, 'last_seen_at', ARGV[7])
if ARGV[9] == 'primary' then
  local state = redis.call('HGET', recKey, 'state')
  if state == 'pending' then
    redis.call('HSET', recKey, 'state', 'trusted', 'updated_at', ARGV[7])
  end
  if state ~= 'blocked' then
    redis.call('HSET', recKey, 'primary', '1')
  end
end
return redis.call('HGETALL', recKey)
`)

// transitionTrustLua applies a guarded state change.
// KEYS[1] = record key
// ARGV[1] = owner user id, ARGV[2] = target state, ARGV[3] = now (unix ms)
// ARGV[4..] = allowed source states
var transitionTrustLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'user_id') ~= ARGV[1] then
  return {err='not_found'}
end
local state = redis.call('HGET', KEYS[1], 'state')
local allowed = false
for i = 4, #ARGV do
  if ARGV[i] == state then
    allowed = true
  end
end
if not allowed then
  return {err='invalid_transition'}
end
if state ~= ARGV[2] then
  redis.call('HSET', KEYS[1], 'state', ARGV[2], 'updated_at', ARGV[3])
end
return redis.call('HGETALL', KEYS[1])
`)

// deleteTrustLua removes a record with its index entries.
// KEYS[1] = record key, KEYS[2] = user set key
// ARGV[1] = owner user id, ARGV[2] = fingerprint index prefix for the user
var deleteTrustLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'user_id') ~= ARGV[1] then
  return {err='not_found'}
end
local id = redis.call('HGET', KEYS[1], 'id')
local idx = ARGV[2] .. redis.call('HGET', KEYS[1], 'fp_key')
if redis.call('GET', idx) == id then
  redis.call('DEL', idx)
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], id)
return 1
`)

// TrustStore is the Redis implementation of trust.Store.
type TrustStore struct {
	redis  redis.UniversalClient
	prefix string
	newID  func() string
}

var _ trust.Store = (*TrustStore)(nil)

// NewTrustStore returns a TrustStore using prefix for every key ("ctx" when empty).
func NewTrustStore(redisClient redis.UniversalClient, prefix string) *TrustStore {
	if prefix == "" {
		prefix = "ctx"
	}
	return &TrustStore{
		redis:  redisClient,
		prefix: prefix,
		newID:  func() string { return uuid.NewString() },
	}
}

func (s *TrustStore) recPrefix() string {
	return s.prefix + ":rec:"
}

func (s *TrustStore) recKey(id string) string {
	return s.recPrefix() + id
}

func (s *TrustStore) fpPrefix(userID string) string {
	return s.prefix + ":fp:" + userID + ":"
}

func (s *TrustStore) fpKey(userID string, fp fingerprint.Fingerprint) string {
	return s.fpPrefix(userID) + fp.Key()
}

func (s *TrustStore) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

// RecordAttempt creates a pending record or refreshes last_seen_at.
func (s *TrustStore) RecordAttempt(ctx context.Context, userID string, fp fingerprint.Fingerprint, now time.Time) (*trust.Record, error) {
	return s.touch(ctx, userID, fp, now, modeAttempt)
}

// RegisterPrimary creates or promotes the record as the user's primary context.
func (s *TrustStore) RegisterPrimary(ctx context.Context, userID string, fp fingerprint.Fingerprint, now time.Time) (*trust.Record, error) {
	return s.touch(ctx, userID, fp, now, modePrimary)
}

func (s *TrustStore) touch(ctx context.Context, userID string, fp fingerprint.Fingerprint, now time.Time, mode string) (*trust.Record, error) {
	if userID == "" {
		return nil, errors.New("trust record requires user id")
	}
	fp = fp.Normalized()

	result, err := touchTrustLua.Run(ctx, s.redis,
		[]string{s.fpKey(userID, fp), s.userKey(userID)},
		s.newID(),
		userID,
		fp.BrowserFamily,
		fp.OSFamily,
		fp.NetworkOrigin,
		fp.Key(),
		now.UnixMilli(),
		s.recPrefix(),
		mode,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}

	return decodeTrustResult(result)
}

// Lookup returns the record for (user, fingerprint) without modifying it.
func (s *TrustStore) Lookup(ctx context.Context, userID string, fp fingerprint.Fingerprint) (*trust.Record, error) {
	id, err := s.redis.Get(ctx, s.fpKey(userID, fp.Normalized())).Result()
	if errors.Is(err, redis.Nil) {
		return nil, trust.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	return s.Get(ctx, userID, id)
}

// Get returns the record with id if it belongs to userID.
func (s *TrustStore) Get(ctx context.Context, userID, id string) (*trust.Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	if len(fields) == 0 || fields["user_id"] != userID {
		return nil, trust.ErrNotFound
	}
	return decodeTrustFields(fields)
}

// Transition applies the guard from trust.Guard(to, from...) atomically.
func (s *TrustStore) Transition(ctx context.Context, userID, id string, to trust.State, now time.Time, from ...trust.State) (*trust.Record, error) {
	sources, err := trust.Guard(to, from...)
	if err != nil {
		return nil, err
	}

	args := []interface{}{userID, to.String(), now.UnixMilli()}
	for _, src := range sources {
		args = append(args, src)
	}

	result, err := transitionTrustLua.Run(ctx, s.redis, []string{s.recKey(id)}, args...).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, trust.ErrNotFound
		case "invalid_transition":
			return nil, trust.ErrInvalidTransition
		default:
			return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
		}
	}

	return decodeTrustResult(result)
}

// Delete removes the record and its index entries.
func (s *TrustStore) Delete(ctx context.Context, userID, id string) error {
	err := deleteTrustLua.Run(ctx, s.redis,
		[]string{s.recKey(id), s.userKey(userID)},
		userID,
		s.fpPrefix(userID),
	).Err()
	if err != nil {
		if err.Error() == "not_found" {
			return trust.ErrNotFound
		}
		return fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	return nil
}

// List returns every record owned by userID, most recently seen first.
func (s *TrustStore) List(ctx context.Context, userID string) ([]trust.Record, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return []trust.Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}

	out := make([]trust.Record, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 || fields["user_id"] != userID {
			continue
		}
		rec, err := decodeTrustFields(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
		}
		out = append(out, *rec)
	}
	trust.SortByLastSeen(out)
	return out, nil
}

func decodeTrustResult(result interface{}) (*trust.Record, error) {
	fields, err := flatToMap(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	rec, err := decodeTrustFields(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trust.ErrUnavailable, err)
	}
	return rec, nil
}

func decodeTrustFields(fields map[string]string) (*trust.Record, error) {
	state, err := trust.ParseState(fields["state"])
	if err != nil {
		return nil, err
	}

	rec := &trust.Record{
		ID:     fields["id"],
		UserID: fields["user_id"],
		Fingerprint: fingerprint.Fingerprint{
			BrowserFamily: fields["browser"],
			OSFamily:      fields["os"],
			NetworkOrigin: fields["network"],
		},
		State:   state,
		Primary: fields["primary"] == "1",
	}
	if rec.CreatedAt, err = parseUnixMilli(fields["created_at"]); err != nil {
		return nil, err
	}
	if rec.LastSeenAt, err = parseUnixMilli(fields["last_seen_at"]); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseUnixMilli(fields["updated_at"]); err != nil {
		return nil, err
	}
	return rec, nil
}

func flatToMap(result interface{}) (map[string]string, error) {
	items, ok := result.([]interface{})
	if !ok {
		return nil, errors.New("unexpected lua result type")
	}
	if len(items)%2 != 0 {
		return nil, errors.New("unexpected lua result length")
	}

	out := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, ok1 := items[i].(string)
		v, ok2 := items[i+1].(string)
		if !ok1 || !ok2 {
			return nil, errors.New("unexpected lua field type")
		}
		out[k] = v
	}
	return out, nil
}

func parseUnixMilli(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", v)
	}
	return time.UnixMilli(ms).UTC(), nil
}
