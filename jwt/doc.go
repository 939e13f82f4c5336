// Package jwt is the token codec: it signs access and refresh tokens with
// the active key from a key source and verifies them against the published
// verification key set.
//
// Every verification failure that is the token's fault surfaces as a
// *VerifyError with a Reason. Failures of the key source itself are
// returned unchanged and never disguised as a bad token.
package jwt
