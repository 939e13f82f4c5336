// Package rate provides a Redis-backed fixed-window counter.
//
// # Window semantics
//
// INCR plus a conditional EXPIRE on the first hit. Keys are
// "<prefix>:<caller key>"; the HTTP layer uses the client address as the
// caller key on refresh requests.
package rate
