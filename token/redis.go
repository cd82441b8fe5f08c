package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	revokeStatusNotFound       int64 = 0
	revokeStatusAlreadyRevoked int64 = 1
	revokeStatusRevoked        int64 = 2
)

// Conditional revoke: flips revoked_at from unset to the given timestamp in a
// single EVAL. Two concurrent callers cannot both observe status 2.
const markRevokedScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local v = redis.call("HGET", KEYS[1], "revoked_at")
if v and v ~= "" and v ~= "0" then
  return 1
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
return 2
`

var markRevokedLua = redis.NewScript(markRevokedScript)

// Family revocation: walks the chain index and revokes every record that is
// still active, returning the number of transitions performed.
const revokeChainScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, id in ipairs(ids) do
  local key = ARGV[2] .. id
  if redis.call("EXISTS", key) == 1 then
    local v = redis.call("HGET", key, "revoked_at")
    if not v or v == "" or v == "0" then
      redis.call("HSET", key, "revoked_at", ARGV[1])
      revoked = revoked + 1
    end
  else
    redis.call("SREM", KEYS[1], id)
  end
end
return revoked
`

var revokeChainLua = redis.NewScript(revokeChainScript)

// RedisStore is the durable [Store] implementation: one Redis hash per record,
// set indexes per principal and per chain, and Lua scripts for the atomic
// revocation primitives.
//
// Records carry a TTL of remaining lifetime plus the retention grace, so
// revoked ancestors stay queryable for reuse forensics while the chain can
// still be alive; expiry-driven eviction stands in for a retention sweep.
type RedisStore struct {
	redis          redis.UniversalClient
	verifier       Verifier
	prefix         string
	retentionGrace time.Duration
}

// NewRedisStore creates a [RedisStore]. prefix namespaces every key;
// retentionGrace extends record TTLs past ExpiresAt for forensic lookups.
func NewRedisStore(client redis.UniversalClient, verifier Verifier, prefix string, retentionGrace time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "rot"
	}
	return &RedisStore{
		redis:          client,
		verifier:       verifier,
		prefix:         prefix,
		retentionGrace: retentionGrace,
	}
}

func (s *RedisStore) recordKey(recordID string) string {
	return s.prefix + ":rec:" + recordID
}

func (s *RedisStore) recordKeyPrefix() string {
	return s.prefix + ":rec:"
}

func (s *RedisStore) principalKey(principalID string) string {
	return s.prefix + ":pr:" + principalID
}

func (s *RedisStore) chainKey(chainID string) string {
	return s.prefix + ":ch:" + chainID
}

// Persist writes a new record and its index entries in one transaction.
//
//	Performance: 1 TxPipelined round-trip (HSET + 2 SADD + 3 EXPIRE).
func (s *RedisStore) Persist(ctx context.Context, rec *Record) (*Record, error) {
	if rec == nil {
		return nil, errNilRecord
	}
	if rec.ExpiresAt <= rec.CreatedAt {
		return nil, errBadExpiry
	}

	stored := rec.clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	ttl := time.Until(time.Unix(stored.ExpiresAt, 0)) + s.retentionGrace
	if ttl <= 0 {
		return nil, errors.New("record already past retention window")
	}

	recordKey := s.recordKey(stored.ID)
	principalKey := s.principalKey(stored.PrincipalID)
	chainKey := s.chainKey(stored.ChainID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordKey, encodeRecord(stored))
		pipe.Expire(ctx, recordKey, ttl)
		pipe.SAdd(ctx, principalKey, stored.ID)
		pipe.Expire(ctx, principalKey, ttl)
		pipe.SAdd(ctx, chainKey, stored.ID)
		pipe.Expire(ctx, chainKey, ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return stored, nil
}

// Get fetches one record by id.
//
//	Performance: 1 HGETALL.
func (s *RedisStore) Get(ctx context.Context, recordID string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(recordID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeRecord(fields)
}

// FindActiveMatch verifies rawSecret against each of the principal's active
// records. The digest is salted, so a direct index on the hash is impossible;
// the active set per principal is bounded by the chain cap, keeping this
// a small constant number of verifications.
func (s *RedisStore) FindActiveMatch(ctx context.Context, principalID string, rawSecret []byte) (*Record, error) {
	records, err := s.fetchByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, rec := range records {
		if !rec.Active(now) {
			continue
		}
		ok, err := s.verifier.Verify(ctx, rawSecret, rec.SecretHash)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}
	}
	return nil, nil
}

// FindAnyMatch is the forensic search across every retained record of the
// principal, revoked and expired included.
func (s *RedisStore) FindAnyMatch(ctx context.Context, principalID string, rawSecret []byte) (*Record, error) {
	records, err := s.fetchByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		ok, err := s.verifier.Verify(ctx, rawSecret, rec.SecretHash)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}
	}
	return nil, nil
}

// MarkRevoked performs the atomic conditional revoke.
//
//	Performance: 1 Lua EVALSHA.
//	Security: single indivisible write; concurrent rotations of one secret
//	resolve to exactly one winner.
func (s *RedisStore) MarkRevoked(ctx context.Context, recordID string, at int64) (bool, error) {
	status, err := markRevokedLua.Run(ctx, s.redis, []string{s.recordKey(recordID)}, at).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch status {
	case revokeStatusRevoked:
		return true, nil
	case revokeStatusAlreadyRevoked:
		return false, nil
	case revokeStatusNotFound:
		return false, ErrRecordNotFound
	default:
		return false, fmt.Errorf("%w: unknown revoke script status %d", ErrStoreUnavailable, status)
	}
}

// MarkRevokedForChain revokes every still-active record sharing the chain id.
//
//	Performance: 1 Lua EVALSHA over the chain index.
func (s *RedisStore) MarkRevokedForChain(ctx context.Context, chainID string, at int64) (int, error) {
	revoked, err := revokeChainLua.Run(
		ctx,
		s.redis,
		[]string{s.chainKey(chainID)},
		at,
		s.recordKeyPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(revoked), nil
}

// UpdateLastUsed stamps the record's last-use time. Best effort: a record that
// aged out between rotation and stamping is not an error.
func (s *RedisStore) UpdateLastUsed(ctx context.Context, recordID string, at int64) error {
	key := s.recordKey(recordID)

	exists, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if exists == 0 {
		return nil
	}

	if err := s.redis.HSet(ctx, key, fieldLastUsedAt, at).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListActive returns the principal's unrevoked, unexpired records.
func (s *RedisStore) ListActive(ctx context.Context, principalID string) ([]*Record, error) {
	records, err := s.fetchByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	active := make([]*Record, 0, len(records))
	for _, rec := range records {
		if rec.Active(now) {
			active = append(active, rec)
		}
	}
	return active, nil
}

func (s *RedisStore) fetchByPrincipal(ctx context.Context, principalID string) ([]*Record, error) {
	principalKey := s.principalKey(principalID)

	ids, err := s.redis.SMembers(ctx, principalKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]*Record, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		fields, cmdErr := cmd.Result()
		if cmdErr != nil && !errors.Is(cmdErr, redis.Nil) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		if len(fields) == 0 {
			// Record evicted by TTL; drop the dangling index entry.
			stale = append(stale, ids[i])
			continue
		}

		rec, decErr := decodeRecord(fields)
		if decErr != nil {
			return nil, decErr
		}
		records = append(records, rec)
	}

	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, principalKey, stale...).Err()
	}

	return records, nil
}
