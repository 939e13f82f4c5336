// Package session provides the session record, the storage contract the
// engine depends on, and the default Redis-backed implementation.
//
// # Storage model
//
// Sessions are stored as Redis hashes with token-digest indexes and one
// sorted set per user holding that user's active session ids:
//
//   - <prefix>:s:<id>        hash (user_id, status, digests, timestamps)
//   - <prefix>:at:<digest>   access-token digest -> session id
//   - <prefix>:rt:<digest>   refresh-token digest -> session id
//   - <prefix>:u:<user>      sorted set of active ids scored by created-at ms
//
// Creation with the per-user ceiling, refresh rotation and status
// transitions are each one Lua script, so the ceiling is never exceeded and
// exactly one of several concurrent rotations of the same refresh token
// wins.
//
// # Architecture boundaries
//
// This package owns [Store], [Backend] and the [Session] model. It does NOT
// verify tokens or decide authentication outcomes; those belong to the
// engine.
//
// # What this package must NOT do
//
//   - Import goIssuer, jwt, or keys (no upward imports).
//   - Store raw token values. Only SHA-256 digests are persisted.
package session
