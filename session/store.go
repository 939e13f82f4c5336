package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	createStatusConflict int64 = 0
	createStatusCreated  int64 = 1
)

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusRotated     int64 = 1
	rotateStatusOwner       int64 = 2
	rotateStatusNotActive   int64 = 3
	rotateStatusStale       int64 = 4
	rotateStatusTokenExists int64 = 5
)

const (
	statusChangeNotFound  int64 = 0
	statusChangeApplied   int64 = 1
	statusChangeUnchanged int64 = 2
	statusChangeRejected  int64 = 3
)

// createSessionScript enforces the per-user ceiling and inserts the new
// session in one step. Non-active members are pruned from the user index
// before counting; at most one active session is evicted. ARGV[6:] holds
// the HSET field pairs.
const createSessionScript = `
local session_key = KEYS[1]
local access_idx = KEYS[2]
local refresh_idx = KEYS[3]
local user_key = KEYS[4]
local id = ARGV[1]
local created_at = ARGV[2]
local retention = ARGV[3]
local max_active = tonumber(ARGV[4])
local session_prefix = ARGV[5]

if redis.call("EXISTS", session_key) == 1
  or redis.call("EXISTS", access_idx) == 1
  or redis.call("EXISTS", refresh_idx) == 1 then
  return {0, ""}
end

local members = redis.call("ZRANGE", user_key, 0, -1)
for _, sid in ipairs(members) do
  if redis.call("HGET", session_prefix .. sid, "status") ~= "active" then
    redis.call("ZREM", user_key, sid)
  end
end

local evicted = ""
if max_active > 0 and redis.call("ZCARD", user_key) >= max_active then
  local oldest = redis.call("ZRANGE", user_key, 0, 0)[1]
  if oldest then
    redis.call("HSET", session_prefix .. oldest, "status", "revoked")
    redis.call("ZREM", user_key, oldest)
    evicted = oldest
  end
end

local fields = {}
for i = 6, #ARGV do
  table.insert(fields, ARGV[i])
end
redis.call("HSET", session_key, unpack(fields))
redis.call("PEXPIRE", session_key, retention)
redis.call("SET", access_idx, id, "PX", retention)
redis.call("SET", refresh_idx, id, "PX", retention)
redis.call("ZADD", user_key, created_at, id)
redis.call("PEXPIRE", user_key, retention)

return {1, evicted}
`

var createSessionLua = redis.NewScript(createSessionScript)

// rotateSessionScript is a compare-and-swap on the stored refresh digest.
const rotateSessionScript = `
local presented_idx = KEYS[1]
local session_key = KEYS[2]
local next_access_idx = KEYS[3]
local next_refresh_idx = KEYS[4]
local user_key = KEYS[5]
local id = ARGV[1]
local retention = ARGV[8]

local indexed = redis.call("GET", presented_idx)
if not indexed then
  return {0}
end
if indexed ~= id then
  return {2}
end

local f = redis.call("HMGET", session_key, "user_id", "status", "refresh_hash", "access_hash")
if not f[1] then
  return {0}
end
if f[1] ~= ARGV[2] then
  return {2}
end
if f[2] ~= "active" then
  return {3}
end
if f[3] ~= ARGV[3] then
  return {4}
end
if redis.call("EXISTS", next_access_idx) == 1 or redis.call("EXISTS", next_refresh_idx) == 1 then
  return {5}
end

if f[4] then
  redis.call("DEL", ARGV[9] .. f[4])
end
redis.call("DEL", presented_idx)

redis.call("HSET", session_key,
  "access_hash", ARGV[4],
  "refresh_hash", ARGV[5],
  "expires_at", ARGV[6],
  "refreshed_at", ARGV[7])
redis.call("PEXPIRE", session_key, retention)
redis.call("SET", next_access_idx, id, "PX", retention)
redis.call("SET", next_refresh_idx, id, "PX", retention)
redis.call("PEXPIRE", user_key, retention)

return {1, redis.call("HGETALL", session_key)}
`

var rotateSessionLua = redis.NewScript(rotateSessionScript)

const setStatusScript = `
local f = redis.call("HMGET", KEYS[1], "status", "user_id")
if not f[1] then
  return 0
end
if f[1] == ARGV[2] then
  return 2
end
if f[1] ~= ARGV[1] then
  return 3
end
redis.call("HSET", KEYS[1], "status", ARGV[2])
if ARGV[2] ~= "active" and f[2] then
  redis.call("ZREM", ARGV[3] .. f[2], ARGV[4])
end
return 1
`

var setStatusLua = redis.NewScript(setStatusScript)

// lookupScript resolves a token index and reads the record it points at in
// one round trip.
const lookupScript = `
local id = redis.call("GET", KEYS[1])
if not id then
  return {}
end
return {id, redis.call("HGETALL", ARGV[1] .. id)}
`

var lookupLua = redis.NewScript(lookupScript)

// activeSessionsScript returns {id, hgetall} pairs for active members of a
// user index, oldest first.
const activeSessionsScript = `
local out = {}
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
for _, sid in ipairs(members) do
  local key = ARGV[1] .. sid
  if redis.call("HGET", key, "status") == "active" then
    table.insert(out, sid)
    table.insert(out, redis.call("HGETALL", key))
  end
end
return out
`

var activeSessionsLua = redis.NewScript(activeSessionsScript)

// Store is the Redis [Backend]. Every key it writes expires after the
// configured retention, refreshed on each create and rotate. Callers must
// pass at least the refresh-token lifetime.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ Backend = (*Store)(nil)

// NewStore creates a session [Store] backed by the given Redis client.
// An empty prefix defaults to "sess".
func NewStore(rdb redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if prefix == "" {
		prefix = "sess"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Store{redis: rdb, prefix: prefix, retention: retention}
}

func (s *Store) sessionPrefix() string { return s.prefix + ":s:" }
func (s *Store) accessPrefix() string  { return s.prefix + ":at:" }
func (s *Store) refreshPrefix() string { return s.prefix + ":rt:" }

func (s *Store) sessionKey(id string) string {
	return s.sessionPrefix() + id
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Create inserts sess and enforces the ceiling atomically.
//
//	Performance: 1 Lua script, O(active sessions of the user).
func (s *Store) Create(ctx context.Context, sess *Session, accessToken, refreshToken string, maxActive int) (string, error) {
	if sess == nil || sess.ID == "" || sess.UserID == "" {
		return "", errors.New("session: id and user id are required")
	}
	sess.AccessHash = HashToken(accessToken)
	sess.RefreshHash = HashToken(refreshToken)
	if sess.Status == "" {
		sess.Status = StatusActive
	}

	args := []interface{}{
		sess.ID,
		sess.CreatedAt.UnixMilli(),
		s.retention.Milliseconds(),
		maxActive,
		s.sessionPrefix(),
	}
	args = append(args, encodeFields(sess)...)

	raw, err := createSessionLua.Run(
		ctx,
		s.redis,
		[]string{
			s.sessionKey(sess.ID),
			s.accessPrefix() + sess.AccessHash,
			s.refreshPrefix() + sess.RefreshHash,
			s.userKey(sess.UserID),
		},
		args...,
	).Slice()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(raw) < 2 {
		return "", fmt.Errorf("%w: invalid create script response", ErrStoreUnavailable)
	}

	code, _ := raw[0].(int64)
	if code == createStatusConflict {
		return "", ErrTokenConflict
	}
	evicted, _ := raw[1].(string)
	return evicted, nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeFields(id, fields)
}

// GetByAccessToken resolves the session currently bound to an access token.
func (s *Store) GetByAccessToken(ctx context.Context, token string) (*Session, error) {
	return s.lookup(ctx, s.accessPrefix()+HashToken(token))
}

// GetByRefreshToken resolves the session currently bound to a refresh token.
func (s *Store) GetByRefreshToken(ctx context.Context, token string) (*Session, error) {
	return s.lookup(ctx, s.refreshPrefix()+HashToken(token))
}

func (s *Store) lookup(ctx context.Context, indexKey string) (*Session, error) {
	raw, err := lookupLua.Run(ctx, s.redis, []string{indexKey}, s.sessionPrefix()).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(raw) < 2 {
		return nil, ErrSessionNotFound
	}
	id, _ := raw[0].(string)
	pairs, _ := raw[1].([]interface{})
	return decodeFields(id, pairsToMap(pairs))
}

// Rotate replaces the session's token pair if and only if the presented
// refresh token is still current. Of several concurrent rotations with the
// same presented token exactly one succeeds; the rest see
// [ErrSessionNotFound] or [ErrStaleRefresh].
//
//	Performance: 1 Lua script.
func (s *Store) Rotate(ctx context.Context, req RotateRequest) (*Session, error) {
	presented := HashToken(req.PresentedRefresh)
	nextAccess := HashToken(req.NextAccess)
	nextRefresh := HashToken(req.NextRefresh)

	raw, err := rotateSessionLua.Run(
		ctx,
		s.redis,
		[]string{
			s.refreshPrefix() + presented,
			s.sessionKey(req.SessionID),
			s.accessPrefix() + nextAccess,
			s.refreshPrefix() + nextRefresh,
			s.userKey(req.UserID),
		},
		req.SessionID,
		req.UserID,
		presented,
		nextAccess,
		nextRefresh,
		req.ExpiresAt.UnixMilli(),
		req.RefreshedAt.UnixMilli(),
		s.retention.Milliseconds(),
		s.accessPrefix(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrStoreUnavailable)
	}

	code, _ := raw[0].(int64)
	switch code {
	case rotateStatusRotated:
		if len(raw) < 2 {
			return nil, fmt.Errorf("%w: invalid rotate script response", ErrStoreUnavailable)
		}
		pairs, _ := raw[1].([]interface{})
		return decodeFields(req.SessionID, pairsToMap(pairs))
	case rotateStatusNotFound:
		return nil, ErrSessionNotFound
	case rotateStatusOwner:
		return nil, ErrOwnerMismatch
	case rotateStatusNotActive:
		return nil, ErrNotActive
	case rotateStatusStale:
		return nil, ErrStaleRefresh
	case rotateStatusTokenExists:
		return nil, ErrTokenConflict
	default:
		return nil, fmt.Errorf("%w: unexpected rotate status %d", ErrStoreUnavailable, code)
	}
}

// SetStatus transitions a session from one status to another. Terminal
// sessions reject the move with [ErrNotActive] unless they already hold the
// target status, in which case the call is a no-op.
func (s *Store) SetStatus(ctx context.Context, id string, from, to Status) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("session: invalid status transition %q -> %q", from, to)
	}
	code, err := setStatusLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(id)},
		string(from),
		string(to),
		s.prefix+":u:",
		id,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch code {
	case statusChangeApplied, statusChangeUnchanged:
		return nil
	case statusChangeNotFound:
		return ErrSessionNotFound
	case statusChangeRejected:
		return ErrNotActive
	default:
		return fmt.Errorf("%w: unexpected status change result %d", ErrStoreUnavailable, code)
	}
}

// ListActive returns the user's active sessions, oldest first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	raw, err := activeSessionsLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.sessionPrefix()).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]*Session, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		id, _ := raw[i].(string)
		pairs, _ := raw[i+1].([]interface{})
		sess, err := decodeFields(id, pairsToMap(pairs))
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// OldestActive returns the user's oldest active session.
func (s *Store) OldestActive(ctx context.Context, userID string) (*Session, error) {
	sessions, err := s.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrSessionNotFound
	}
	return sessions[0], nil
}

// CountActive returns the number of active sessions held by userID.
func (s *Store) CountActive(ctx context.Context, userID string) (int, error) {
	sessions, err := s.ListActive(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}
