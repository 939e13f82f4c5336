package jwt

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIssuer/keys"
	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access tokens from refresh tokens. It is carried in
// the "typ" claim so one kind can never be presented as the other.
type Kind string

const (
	// KindAccess marks short-lived bearer tokens.
	KindAccess Kind = "access"
	// KindRefresh marks tokens that may only be exchanged for a new pair.
	KindRefresh Kind = "refresh"
)

const nonceBytes = 16

// ErrSigningFailed is returned when no token could be produced.
var ErrSigningFailed = errors.New("token signing failed")

// KeySource is the slice of the key lifecycle manager the codec needs.
// keys.Manager satisfies it.
type KeySource interface {
	GetActiveSigningKey(ctx context.Context) (keys.ActiveKey, error)
	GetVerificationKeySet(ctx context.Context) ([]keys.PublicKey, error)
}

// Config holds issuer identity and token lifetimes.
type Config struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
	// MaxFutureIAT bounds how far in the future an iat may sit. Defaults
	// to 10 minutes.
	MaxFutureIAT time.Duration
}

// TokenClaims is the closed claim set carried by every issued token.
type TokenClaims struct {
	Kind  Kind   `json:"typ"`
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// Claims is the verified view of a token handed to callers.
type Claims struct {
	Subject   string
	SessionID string
	Issuer    string
	Kind      Kind
	KeyID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies tokens against keys held by a [KeySource].
// It holds no key material between calls.
type Codec struct {
	keys   KeySource
	config Config
}

// NewCodec validates cfg and returns a [Codec].
func NewCodec(src KeySource, cfg Config) (*Codec, error) {
	if src == nil {
		return nil, errors.New("key source is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	return &Codec{keys: src, config: cfg}, nil
}

// TTL returns the lifetime of tokens of the given kind.
func (c *Codec) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return c.config.RefreshTTL
	}
	return c.config.AccessTTL
}

// Sign mints a token of kind for subject with jti set to sessionID.
// The header carries the active key's kid. On any failure the returned
// string is empty and the error wraps [ErrSigningFailed].
func (c *Codec) Sign(ctx context.Context, subject, sessionID string, kind Kind, now time.Time) (string, error) {
	if subject == "" || sessionID == "" {
		return "", fmt.Errorf("%w: subject and session id are required", ErrSigningFailed)
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("%w: unknown token kind %q", ErrSigningFailed, kind)
	}

	key, err := c.keys.GetActiveSigningKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	method, err := signingMethod(key.Algorithm)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	nonce, err := newNonce()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	claims := TokenClaims{
		Kind:  kind,
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        sessionID,
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL(kind))),
		},
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.KID

	signed, err := token.SignedString(key.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return signed, nil
}

// Verify checks signature, issuer, time bounds, required claims and kind.
// Token problems are reported as *[VerifyError]; key store failures are
// returned as they are so callers can tell an outage from a bad token.
func (c *Codec) Verify(ctx context.Context, tokenStr string, kind Kind, now time.Time) (*Claims, error) {
	if tokenStr == "" {
		return nil, newVerifyError(ReasonMalformed, errors.New("empty token"))
	}

	set, err := c.keys.GetVerificationKeySet(ctx)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg(), jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(c.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.config.Leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var kid string
	token, err := parser.ParseWithClaims(tokenStr, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ = t.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKID
		}
		for _, k := range set {
			if k.KID != kid {
				continue
			}
			if string(k.Algorithm) != t.Method.Alg() {
				return nil, fmt.Errorf("%w: token alg %s, key alg %s", errAlgMismatch, t.Method.Alg(), k.Algorithm)
			}
			return k.Key, nil
		}
		return nil, errUnknownKID
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, newVerifyError(ReasonMalformed, jwt.ErrTokenInvalidClaims)
	}
	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, newVerifyError(ReasonMissingClaim, jwt.ErrTokenRequiredClaimMissing)
	}
	if claims.IssuedAt.After(now.Add(c.config.MaxFutureIAT)) {
		return nil, newVerifyError(ReasonNotYetValid, errors.New("token iat too far in the future"))
	}
	if claims.Kind != kind {
		return nil, newVerifyError(ReasonWrongKind, fmt.Errorf("want %s token, got %q", kind, claims.Kind))
	}

	return &Claims{
		Subject:   claims.Subject,
		SessionID: claims.ID,
		Issuer:    claims.Issuer,
		Kind:      claims.Kind,
		KeyID:     kid,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func signingMethod(alg keys.Algorithm) (jwt.SigningMethod, error) {
	switch alg {
	case keys.AlgEdDSA:
		return jwt.SigningMethodEdDSA, nil
	case keys.AlgRS256:
		return jwt.SigningMethodRS256, nil
	default:
		return nil, fmt.Errorf("%w: %q", keys.ErrUnsupportedAlgorithm, alg)
	}
}

func newNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
