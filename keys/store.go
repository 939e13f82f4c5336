package keys

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyStoreUnavailable wraps every failure talking to the backing store.
var ErrKeyStoreUnavailable = errors.New("key store unavailable")

// ErrKeyNotFound is returned when a kid is neither indexed nor stored.
var ErrKeyNotFound = errors.New("signing key not found")

// ErrNoActiveKey is returned when activation could not converge on a key.
var ErrNoActiveKey = errors.New("no active signing key")

// ErrKeyMaterialCorrupt is returned when stored PEM material cannot be parsed.
var ErrKeyMaterialCorrupt = errors.New("key material corrupt")

// ErrUnsupportedAlgorithm is returned for algorithm tags other than EdDSA and RS256.
var ErrUnsupportedAlgorithm = errors.New("unsupported key algorithm")

const (
	createStatusCreated int64 = 1

	revokeStatusUnknown int64 = 0
	revokeStatusRevoked int64 = 1
	revokeStatusAlready int64 = 2
)

// createKeyScript stores a new key, points the active pointer at it and trims
// the retention index in one step. Index scores are strictly increasing in
// creation order even when callers' clocks disagree. With ARGV[9] == "1" the write is
// conditional: an existing active key that still has private material wins.
const createKeyScript = `
local active_key = KEYS[1]
local index_key = KEYS[2]
local material_key = KEYS[3]
local kid = ARGV[1]
local created_at = ARGV[4]
local max_keys = tonumber(ARGV[7])
local material_prefix = ARGV[8]
local conditional = ARGV[9] == "1"

local current = redis.call("GET", active_key)
if conditional and current then
  if redis.call("HEXISTS", material_prefix .. current, "priv") == 1 then
    return {0, current, {}}
  end
end

redis.call("HSET", material_key,
  "alg", ARGV[2],
  "use", ARGV[3],
  "created_at", created_at,
  "active", "1",
  "pub", ARGV[5],
  "priv", ARGV[6])

if current and current ~= kid then
  local previous = material_prefix .. current
  if redis.call("EXISTS", previous) == 1 then
    redis.call("HSET", previous, "active", "0", "deactivated_at", created_at)
  end
end

-- Rank by creation order, not by the caller's clock: a new key always
-- scores above every indexed key, so the trim below never removes it.
local rank = tonumber(created_at)
local newest = redis.call("ZREVRANGE", index_key, 0, 0, "WITHSCORES")
if newest[2] and tonumber(newest[2]) >= rank then
  rank = tonumber(newest[2]) + 1
end

redis.call("SET", active_key, kid)
redis.call("ZADD", index_key, rank, kid)

local evicted = {}
local card = redis.call("ZCARD", index_key)
if card > max_keys then
  local stale = redis.call("ZRANGE", index_key, 0, card - max_keys - 1)
  for _, old in ipairs(stale) do
    redis.call("DEL", material_prefix .. old)
    redis.call("ZREM", index_key, old)
    table.insert(evicted, old)
  end
end

return {1, kid, evicted}
`

var createKeyLua = redis.NewScript(createKeyScript)

const loadActiveScript = `
local kid = redis.call("GET", KEYS[1])
if not kid then
  return {}
end
local f = redis.call("HMGET", ARGV[1] .. kid, "alg", "priv", "pub")
if not f[2] or not f[3] then
  return {kid}
end
return {kid, f[1], f[2], f[3]}
`

var loadActiveLua = redis.NewScript(loadActiveScript)

const revokeKeyScript = `
local active_key = KEYS[1]
local index_key = KEYS[2]
local revoked_key = KEYS[3]
local material_key = KEYS[4]
local kid = ARGV[1]

local exists = redis.call("EXISTS", material_key)
if redis.call("SISMEMBER", revoked_key, kid) == 1 then
  if exists == 1 then
    redis.call("HDEL", material_key, "priv")
  end
  return 2
end

local indexed = redis.call("ZSCORE", index_key, kid)
if not indexed and exists == 0 then
  return 0
end

redis.call("SADD", revoked_key, kid)
if exists == 1 then
  redis.call("HDEL", material_key, "priv")
  redis.call("HSET", material_key, "active", "0", "revoked_at", ARGV[2])
end
if redis.call("GET", active_key) == kid then
  redis.call("DEL", active_key)
end
return 1
`

var revokeKeyLua = redis.NewScript(revokeKeyScript)

// verificationSetScript returns kid, alg, use, created_at, pub for the newest
// ARGV[1] indexed keys that are not revoked, newest first.
const verificationSetScript = `
local kids = redis.call("ZREVRANGE", KEYS[1], 0, tonumber(ARGV[1]) - 1)
local out = {}
for _, kid in ipairs(kids) do
  if redis.call("SISMEMBER", KEYS[2], kid) == 0 then
    local f = redis.call("HMGET", ARGV[2] .. kid, "alg", "use", "created_at", "pub")
    if f[4] then
      table.insert(out, kid)
      table.insert(out, f[1] or "")
      table.insert(out, f[2] or "")
      table.insert(out, f[3] or "0")
      table.insert(out, f[4])
    end
  end
end
return out
`

var verificationSetLua = redis.NewScript(verificationSetScript)

// Store is the Redis adapter behind [Manager].
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a key store rooted at prefix.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "jwks"
	}
	return &Store{redis: rdb, prefix: prefix}
}

func (s *Store) activeKey() string      { return s.prefix + ":active" }
func (s *Store) indexKey() string       { return s.prefix + ":index" }
func (s *Store) revokedKey() string     { return s.prefix + ":revoked" }
func (s *Store) materialPrefix() string { return s.prefix + ":key:" }

func (s *Store) materialKey(kid string) string {
	return s.materialPrefix() + kid
}

type storedKey struct {
	kid       string
	alg       Algorithm
	createdAt time.Time
	priv      string
	pub       string
}

type createResult struct {
	created bool
	kid     string
	evicted []string
}

func (s *Store) create(ctx context.Context, key storedKey, conditional bool, maxKeys int) (createResult, error) {
	cond := "0"
	if conditional {
		cond = "1"
	}
	raw, err := createKeyLua.Run(
		ctx,
		s.redis,
		[]string{s.activeKey(), s.indexKey(), s.materialKey(key.kid)},
		key.kid,
		string(key.alg),
		UseSignature,
		key.createdAt.UnixMilli(),
		key.pub,
		key.priv,
		maxKeys,
		s.materialPrefix(),
		cond,
	).Result()
	if err != nil {
		return createResult{}, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}

	parts, ok := raw.([]interface{})
	if !ok || len(parts) < 2 {
		return createResult{}, fmt.Errorf("%w: invalid create script response", ErrKeyStoreUnavailable)
	}
	code, _ := parts[0].(int64)
	kid, _ := parts[1].(string)

	res := createResult{created: code == createStatusCreated, kid: kid}
	if len(parts) > 2 {
		if evicted, ok := parts[2].([]interface{}); ok {
			for _, v := range evicted {
				if id, ok := v.(string); ok {
					res.evicted = append(res.evicted, id)
				}
			}
		}
	}
	return res, nil
}

// loadActive returns the active key. ok is false when no pointer is set or
// the pointed key has lost its private material.
func (s *Store) loadActive(ctx context.Context) (ActiveKey, bool, error) {
	raw, err := loadActiveLua.Run(ctx, s.redis, []string{s.activeKey()}, s.materialPrefix()).Result()
	if err != nil {
		return ActiveKey{}, false, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	parts, ok := raw.([]interface{})
	if !ok || len(parts) < 4 {
		return ActiveKey{}, false, nil
	}

	kid, _ := parts[0].(string)
	alg, _ := parts[1].(string)
	privPEM, _ := parts[2].(string)
	pubPEM, _ := parts[3].(string)

	priv, err := decodePrivateKey(Algorithm(alg), privPEM)
	if err != nil {
		return ActiveKey{}, false, err
	}
	pub, err := decodePublicKey(Algorithm(alg), pubPEM)
	if err != nil {
		return ActiveKey{}, false, err
	}

	return ActiveKey{
		KID:        kid,
		Algorithm:  Algorithm(alg),
		PrivateKey: priv,
		PublicKey:  pub,
	}, true, nil
}

func (s *Store) revoke(ctx context.Context, kid string, at time.Time) (int64, error) {
	code, err := revokeKeyLua.Run(
		ctx,
		s.redis,
		[]string{s.activeKey(), s.indexKey(), s.revokedKey(), s.materialKey(kid)},
		kid,
		at.UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	return code, nil
}

func (s *Store) verificationSet(ctx context.Context, limit int) ([]PublicKey, error) {
	raw, err := verificationSetLua.Run(
		ctx,
		s.redis,
		[]string{s.indexKey(), s.revokedKey()},
		limit,
		s.materialPrefix(),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	if len(raw)%5 != 0 {
		return nil, fmt.Errorf("%w: invalid verification set response", ErrKeyStoreUnavailable)
	}

	out := make([]PublicKey, 0, len(raw)/5)
	for i := 0; i < len(raw); i += 5 {
		alg := Algorithm(raw[i+1])
		pub, err := decodePublicKey(alg, raw[i+4])
		if err != nil {
			return nil, fmt.Errorf("kid %q: %w", raw[i], err)
		}
		out = append(out, PublicKey{
			KID:       raw[i],
			Algorithm: alg,
			Use:       raw[i+2],
			Key:       pub,
			CreatedAt: parseMillis(raw[i+3]),
		})
	}
	return out, nil
}

func (s *Store) list(ctx context.Context) ([]KeyInfo, error) {
	kids, err := s.redis.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	if len(kids) == 0 {
		return []KeyInfo{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(kids))
	for i, kid := range kids {
		cmds[i] = pipe.HGetAll(ctx, s.materialKey(kid))
	}
	revokedCmd := pipe.SMembersMap(ctx, s.revokedKey())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	revoked := revokedCmd.Val()

	out := make([]KeyInfo, 0, len(kids))
	for i, kid := range kids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		_, isRevoked := revoked[kid]
		_, hasPriv := fields["priv"]
		out = append(out, KeyInfo{
			KID:           kid,
			Algorithm:     Algorithm(fields["alg"]),
			Use:           fields["use"],
			CreatedAt:     parseMillis(fields["created_at"]),
			Active:        fields["active"] == "1",
			Revoked:       isRevoked,
			HasPrivateKey: hasPriv,
			DeactivatedAt: optionalMillis(fields["deactivated_at"]),
			RevokedAt:     optionalMillis(fields["revoked_at"]),
		})
	}
	return out, nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func optionalMillis(v string) *time.Time {
	if v == "" {
		return nil
	}
	t := parseMillis(v)
	return &t
}
