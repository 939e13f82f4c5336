package session

import (
	"fmt"
	"strconv"
	"time"
)

const (
	fieldUserID      = "user_id"
	fieldAccessHash  = "access_hash"
	fieldRefreshHash = "refresh_hash"
	fieldStatus      = "status"
	fieldExpiresAt   = "expires_at"
	fieldCreatedAt   = "created_at"
	fieldRefreshedAt = "refreshed_at"
)

// encodeFields flattens s into HSET arguments. Timestamps are unix
// milliseconds.
func encodeFields(s *Session) []interface{} {
	return []interface{}{
		fieldUserID, s.UserID,
		fieldAccessHash, s.AccessHash,
		fieldRefreshHash, s.RefreshHash,
		fieldStatus, string(s.Status),
		fieldExpiresAt, s.ExpiresAt.UnixMilli(),
		fieldCreatedAt, s.CreatedAt.UnixMilli(),
		fieldRefreshedAt, s.RefreshedAt.UnixMilli(),
	}
}

func decodeFields(id string, fields map[string]string) (*Session, error) {
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	userID := fields[fieldUserID]
	status := Status(fields[fieldStatus])
	if userID == "" || !status.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrSessionCorrupt, id)
	}

	expiresAt, err := decodeMillis(fields[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: expires_at: %v", ErrSessionCorrupt, id, err)
	}
	createdAt, err := decodeMillis(fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: created_at: %v", ErrSessionCorrupt, id, err)
	}
	refreshedAt, err := decodeMillis(fields[fieldRefreshedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: refreshed_at: %v", ErrSessionCorrupt, id, err)
	}

	return &Session{
		ID:          id,
		UserID:      userID,
		AccessHash:  fields[fieldAccessHash],
		RefreshHash: fields[fieldRefreshHash],
		Status:      status,
		ExpiresAt:   expiresAt,
		CreatedAt:   createdAt,
		RefreshedAt: refreshedAt,
	}, nil
}

// pairsToMap converts a flat HGETALL reply returned from Lua.
func pairsToMap(raw []interface{}) map[string]string {
	out := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		k, _ := raw[i].(string)
		v, _ := raw[i+1].(string)
		out[k] = v
	}
	return out
}

func decodeMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
