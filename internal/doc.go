// Package internal holds helpers private to goIssuer: session id
// generation and the flow and rate-limit sub-packages.
//
// # Sub-packages
//
//   - flows: pure-function orchestrators for every Engine session operation
//   - rate: Redis-backed fixed-window counters used by the HTTP layer
package internal
