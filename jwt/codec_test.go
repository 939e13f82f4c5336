package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goIssuer/keys"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticKeys struct {
	active keys.ActiveKey
	set    []keys.PublicKey
	err    error
}

func (s *staticKeys) GetActiveSigningKey(context.Context) (keys.ActiveKey, error) {
	if s.err != nil {
		return keys.ActiveKey{}, s.err
	}
	return s.active, nil
}

func (s *staticKeys) GetVerificationKeySet(context.Context) ([]keys.PublicKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.set, nil
}

func newStaticKeys(tb testing.TB) *staticKeys {
	tb.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		tb.Fatalf("generate ed25519 key: %v", err)
	}
	return &staticKeys{
		active: keys.ActiveKey{KID: "k1", Algorithm: keys.AlgEdDSA, PrivateKey: priv, PublicKey: pub},
		set:    []keys.PublicKey{{KID: "k1", Algorithm: keys.AlgEdDSA, Use: keys.UseSignature, Key: pub}},
	}
}

func newTestCodec(t *testing.T, src KeySource) *Codec {
	t.Helper()
	c, err := NewCodec(src, Config{
		Issuer:     "issuer-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	return c
}

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	var verr *VerifyError
	require.True(t, errors.As(err, &verr), "expected *VerifyError, got %v", err)
	assert.ErrorIs(t, err, ErrInvalidToken)
	return verr.Reason
}

func TestSignVerifyRoundTrip(t *testing.T) {
	c := newTestCodec(t, newStaticKeys(t))
	now := time.Now()

	token, err := c.Sign(context.Background(), "user-1", "sess-1", KindAccess, now)
	require.NoError(t, err)

	claims, err := c.Verify(context.Background(), token, KindAccess, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "issuer-test", claims.Issuer)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.Equal(t, "k1", claims.KeyID)
	assert.Equal(t, now.Add(15*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestSignProducesDistinctTokens(t *testing.T) {
	c := newTestCodec(t, newStaticKeys(t))
	now := time.Now()

	a, err := c.Sign(context.Background(), "user-1", "sess-1", KindAccess, now)
	require.NoError(t, err)
	b, err := c.Sign(context.Background(), "user-1", "sess-1", KindAccess, now)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	c := newTestCodec(t, newStaticKeys(t))
	now := time.Now()

	token, err := c.Sign(context.Background(), "user-1", "sess-1", KindAccess, now)
	require.NoError(t, err)

	_, err = c.Verify(context.Background(), token, KindAccess, now.Add(16*time.Minute))
	assert.Equal(t, ReasonExpired, reasonOf(t, err))
}

func TestVerifyHonoursLeeway(t *testing.T) {
	src := newStaticKeys(t)
	c, err := NewCodec(src, Config{
		Issuer:     "issuer-test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Leeway:     30 * time.Second,
	})
	require.NoError(t, err)
	now := time.Now()

	token, err := c.Sign(context.Background(), "user-1", "sess-1", KindAccess, now)
	require.NoError(t, err)

	_, err = c.Verify(context.Background(), token, KindAccess, now.Add(time.Minute+10*time.Second))
	assert.NoError(t, err)
}

func TestVerifyRejectsIssuerChange(t *testing.T) {
	src := newStaticKeys(t)
	c := newTestCodec(t, src)
	now := time.Now()

	token, err := c.Sign(context.Background(), "user-1", "sess-1", KindAccess, now)
	require.NoError(t, err)

	other, err := NewCodec(src, Config{Issuer: "someone-else", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	require.NoError(t, err)
	_, err = other.Verify(context.Background(), token, KindAccess, now)
	assert.Equal(t, ReasonIssuerMismatch, reasonOf(t, err))
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	c := newTestCodec(t, newStaticKeys(t))
	now := time.Now()

	refresh, err := c.Sign(context.Background(), "user-1", "sess-1", KindRefresh, now)
	require.NoError(t, err)

	_, err = c.Verify(context.Background(), refresh, KindAccess, now)
	assert.Equal(t, ReasonWrongKind, reasonOf(t, err))

	claims, err := c.Verify(context.Background(), refresh, KindRefresh, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestVerifyRejectsUnknownKey(t *testing.T) {
	src := newStaticKeys(t)
	c := newTestCodec(t, src)
	now := time.Now()

	token, err := c.Sign(context.Background(), "user-1", "sess-1", KindAccess, now)
	require.NoError(t, err)

	// Key dropped out of the published set, for example after revocation.
	src.set = nil
	_, err = c.Verify(context.Background(), token, KindAccess, now)
	assert.Equal(t, ReasonUnknownKey, reasonOf(t, err))
}

func TestVerifyRejectsForgedSignature(t *testing.T) {
	src := newStaticKeys(t)
	c := newTestCodec(t, src)
	now := time.Now()

	// Sign with a different private key under the same kid.
	_, forged, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	attacker := &staticKeys{active: keys.ActiveKey{KID: "k1", Algorithm: keys.AlgEdDSA, PrivateKey: forged}}
	token, err := newTestCodec(t, attacker).Sign(context.Background(), "user-1", "sess-1", KindAccess, now)
	require.NoError(t, err)

	_, err = c.Verify(context.Background(), token, KindAccess, now)
	assert.Equal(t, ReasonBadSignature, reasonOf(t, err))
}

func TestVerifyRejectsAlgorithmConfusion(t *testing.T) {
	src := newStaticKeys(t)
	c := newTestCodec(t, src)

	claims := TokenClaims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		ID:        "sess-1",
		Issuer:    "issuer-test",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	tok.Header["kid"] = "k1"
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	require.NoError(t, err)

	_, err = c.Verify(context.Background(), token, KindAccess, time.Now())
	reasonOf(t, err)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	src := newStaticKeys(t)
	c := newTestCodec(t, src)
	now := time.Now()

	claims := TokenClaims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
		ID:        "sess-1",
		Issuer:    "issuer-test",
		IssuedAt:  gjwt.NewNumericDate(now),
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k1"
	token, err := tok.SignedString(src.active.PrivateKey)
	require.NoError(t, err)

	_, err = c.Verify(context.Background(), token, KindAccess, now)
	assert.Equal(t, ReasonMissingClaim, reasonOf(t, err))
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	c := newTestCodec(t, newStaticKeys(t))

	for _, input := range []string{"", "abc", "a.b.c", strings.Repeat("x", 64)} {
		_, err := c.Verify(context.Background(), input, KindAccess, time.Now())
		reasonOf(t, err)
	}
}

func TestKeySourceFailureIsNotAVerifyError(t *testing.T) {
	src := newStaticKeys(t)
	c := newTestCodec(t, src)
	now := time.Now()

	token, err := c.Sign(context.Background(), "user-1", "sess-1", KindAccess, now)
	require.NoError(t, err)

	src.err = keys.ErrKeyStoreUnavailable
	_, err = c.Verify(context.Background(), token, KindAccess, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, keys.ErrKeyStoreUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidToken)

	_, err = c.Sign(context.Background(), "user-1", "sess-1", KindAccess, now)
	assert.ErrorIs(t, err, ErrSigningFailed)
	assert.ErrorIs(t, err, keys.ErrKeyStoreUnavailable)
}

func TestRS256RoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	src := &staticKeys{
		active: keys.ActiveKey{KID: "r1", Algorithm: keys.AlgRS256, PrivateKey: priv, PublicKey: &priv.PublicKey},
		set:    []keys.PublicKey{{KID: "r1", Algorithm: keys.AlgRS256, Key: &priv.PublicKey}},
	}
	c := newTestCodec(t, src)
	now := time.Now()

	token, err := c.Sign(context.Background(), "user-1", "sess-1", KindRefresh, now)
	require.NoError(t, err)
	_, err = c.Verify(context.Background(), token, KindRefresh, now)
	assert.NoError(t, err)
}

func TestNewCodecValidation(t *testing.T) {
	src := newStaticKeys(t)
	cases := []Config{
		{AccessTTL: time.Minute, RefreshTTL: time.Hour},
		{Issuer: "i", RefreshTTL: time.Hour},
		{Issuer: "i", AccessTTL: time.Hour, RefreshTTL: time.Minute},
		{Issuer: "i", AccessTTL: time.Minute, RefreshTTL: time.Hour, Leeway: time.Hour},
	}
	for _, cfg := range cases {
		_, err := NewCodec(src, cfg)
		assert.Error(t, err, "config %+v", cfg)
	}
	_, err := NewCodec(nil, Config{Issuer: "i", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	assert.Error(t, err)
}
