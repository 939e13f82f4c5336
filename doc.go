// Package goIssuer issues and validates signed bearer credentials backed by
// server-side sessions. It combines three parts:
//
//   - keys: a rotating signing key ring in Redis with a bounded retention
//     window, revocation and JWKS publication.
//   - jwt: the token codec that signs with the active key and verifies
//     against the published set.
//   - session: the session store (Redis by default, Postgres via
//     session/pgstore) holding token digests, status and expiry.
//
// [Engine] methods are safe to call from multiple goroutines and from many
// processes sharing the same Redis instance.
//
// # Architecture boundaries
//
// goIssuer is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (Credentials, AuthResult, SessionInfo). Flow orchestration
// lives in internal/flows and reports typed failure kinds; this package maps
// them onto the public error classes ([ErrUnauthorized], [ErrNotFound],
// [ErrConflict], [ErrInternal]) in one place.
//
// # What this package must NOT do
//
//   - Expose private key material or raw token values through metrics,
//     audit events or logs.
//   - Cache private keys or tokens across requests.
//   - Perform I/O in [Builder.Build]; the first signing call provisions a
//     key when none is active.
//
// # Session lifecycle
//
// Sessions move from active to revoked (RevokeSession, or eviction under the
// per-user ceiling) or from active to expired (observed by ValidateBearer).
// Both target states are terminal. A refresh rotates both tokens of a
// session in one compare-and-swap on the presented refresh token.
package goIssuer
