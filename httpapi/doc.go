// Package httpapi mounts a goIssuer.Engine on a gorilla/mux router.
//
// Public routes:
//
//	GET    /.well-known/jwks.json          verification key set
//	GET    /healthz                        Redis reachability
//	POST   /v1/token/refresh               rotate a refresh token
//	GET    /v1/session                     current session (bearer)
//	POST   /v1/logout                      revoke current session (bearer)
//
// Admin routes, gated by [Options.Authorize]:
//
//	POST   /admin/sessions                 create a session for a user id
//	DELETE /admin/sessions/{id}            revoke a session
//	GET    /admin/users/{user_id}/sessions list active sessions
//	GET    /admin/keys                     list signing keys
//	POST   /admin/keys/rotate              rotate the signing key
//	DELETE /admin/keys/{kid}               revoke a signing key
//
// Errors are JSON objects with an error_code and error_message. Token
// values are never logged.
package httpapi
