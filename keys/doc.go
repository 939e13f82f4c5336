// Package keys owns the lifecycle of asymmetric signing keys: generation,
// activation, retention-window trimming, revocation, and publication of the
// verification key set.
//
// # Storage model
//
// Key material lives in a shared Redis instance so that every service
// instance observes the same active key and the same verification window:
//
//   - <prefix>:active   string, kid of the key used for new signatures
//   - <prefix>:index    sorted set, kid scored by creation time (unix ms)
//   - <prefix>:revoked  set of kids that must never be published again
//   - <prefix>:key:<id> hash with algorithm, use, timestamps and PEM material
//
// Every multi-key mutation (activation, rotation with trimming, revocation)
// runs as a single Lua script, so readers never observe an index entry
// without material or material that is no longer indexed.
//
// # Architecture boundaries
//
// This package does NOT sign or parse tokens; the jwt package consumes
// [Manager] through a narrow key-source interface. Private keys are loaded
// per call and never cached in process memory.
package keys
