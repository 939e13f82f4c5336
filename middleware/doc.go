// Package middleware adapts goIssuer.Engine bearer validation to net/http.
//
// [Guard] reads the access token from the Authorization header and an
// optional refresh token from [HeaderRefreshToken], calls
// Engine.ValidateBearer and stores the result in the request context. When
// validation rotated the credentials, the new pair is written to the
// response headers before the wrapped handler runs.
//
// # What this package must NOT do
//
//   - Parse or sign tokens itself (delegated to the Engine).
//   - Access Redis directly.
//   - Log or echo token values.
package middleware
