// Package flows contains pure-function orchestrators for every session
// lifecycle operation of the Engine.
//
// Each flow function (RunCreate, RunRefresh, RunValidate, RunRevoke) accepts
// a typed dependency struct and returns a result carrying a FailureKind.
// The root package maps failure kinds onto its public error taxonomy in one
// place, so flows never decide which error a caller sees.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store and the token codec.
// They do NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goIssuer (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
