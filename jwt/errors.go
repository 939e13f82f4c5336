package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken matches every *VerifyError via errors.Is.
var ErrInvalidToken = errors.New("invalid token")

var (
	errMissingKID  = errors.New("missing kid")
	errUnknownKID  = errors.New("unknown kid")
	errAlgMismatch = errors.New("algorithm does not match key")
)

// Reason says why a token failed verification.
type Reason int

const (
	// ReasonMalformed means the token does not parse as a signed JWT.
	ReasonMalformed Reason = iota + 1
	// ReasonUnknownKey means the kid is missing or not in the verification set.
	ReasonUnknownKey
	// ReasonBadSignature means the signature or algorithm does not match the key.
	ReasonBadSignature
	// ReasonExpired means exp is past, leeway included.
	ReasonExpired
	// ReasonNotYetValid means the token is not valid yet or its iat is too far ahead.
	ReasonNotYetValid
	// ReasonIssuerMismatch means iss is not the configured issuer.
	ReasonIssuerMismatch
	// ReasonWrongKind means an access token was presented as refresh, or the reverse.
	ReasonWrongKind
	// ReasonMissingClaim means sub, sid or another required claim is empty.
	ReasonMissingClaim
)

var reasonNames = map[Reason]string{
	ReasonMalformed:      "malformed",
	ReasonUnknownKey:     "unknown_key",
	ReasonBadSignature:   "bad_signature",
	ReasonExpired:        "expired",
	ReasonNotYetValid:    "not_yet_valid",
	ReasonIssuerMismatch: "issuer_mismatch",
	ReasonWrongKind:      "wrong_kind",
	ReasonMissingClaim:   "missing_claim",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// VerifyError is returned by Codec.Verify for any token-level rejection.
type VerifyError struct {
	Reason Reason
	Err    error
}

func newVerifyError(reason Reason, err error) *VerifyError {
	return &VerifyError{Reason: reason, Err: err}
}

func (e *VerifyError) Error() string {
	if e.Err == nil {
		return "invalid token: " + e.Reason.String()
	}
	return "invalid token: " + e.Reason.String() + ": " + e.Err.Error()
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Is reports ErrInvalidToken as a match.
func (e *VerifyError) Is(target error) bool {
	return target == ErrInvalidToken
}

// classify maps parser errors onto reasons. Order matters: the parser
// joins several sentinels for some failures.
func classify(err error) *VerifyError {
	switch {
	case errors.Is(err, errMissingKID), errors.Is(err, errUnknownKID):
		return newVerifyError(ReasonUnknownKey, err)
	case errors.Is(err, errAlgMismatch), errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newVerifyError(ReasonBadSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newVerifyError(ReasonMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newVerifyError(ReasonExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return newVerifyError(ReasonNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return newVerifyError(ReasonIssuerMismatch, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return newVerifyError(ReasonMissingClaim, err)
	default:
		return newVerifyError(ReasonMalformed, err)
	}
}
