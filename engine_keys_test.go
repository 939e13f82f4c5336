package goIssuer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRotateKeysKeepsOldTokensValid(t *testing.T) {
	clock := newTestClock()
	engine, _, done := newTestEngine(t, testConfig(), clock)
	defer done()
	ctx := context.Background()

	creds, err := engine.CreateSession(ctx, "U")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	clock.Advance(time.Second)
	kid, err := engine.RotateKeys(ctx)
	if err != nil {
		t.Fatalf("RotateKeys failed: %v", err)
	}
	if kid == "" {
		t.Fatal("expected rotated kid")
	}

	if _, err := engine.ValidateBearer(ctx, creds.AccessToken, ""); err != nil {
		t.Fatalf("expected token signed by the previous key to validate, got %v", err)
	}

	set, err := engine.VerificationKeySet(ctx)
	if err != nil {
		t.Fatalf("VerificationKeySet failed: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 published keys, got %d", len(set))
	}
	if set[0].KID != kid {
		t.Fatalf("expected newest key first, got %s", set[0].KID)
	}
	if got := engine.MetricsSnapshot().Counters[MetricKeyRotated]; got != 1 {
		t.Fatalf("expected one rotation, got %d", got)
	}
}

func TestRevokeKeyInvalidatesItsTokens(t *testing.T) {
	clock := newTestClock()
	engine, _, done := newTestEngine(t, testConfig(), clock)
	defer done()
	ctx := context.Background()

	creds, err := engine.CreateSession(ctx, "U")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	set, err := engine.VerificationKeySet(ctx)
	if err != nil || len(set) != 1 {
		t.Fatalf("expected one key, got %d (%v)", len(set), err)
	}
	oldKID := set[0].KID

	if err := engine.RevokeKey(ctx, oldKID); err != nil {
		t.Fatalf("RevokeKey failed: %v", err)
	}
	if err := engine.RevokeKey(ctx, oldKID); err != nil {
		t.Fatalf("expected repeated revoke to be a no-op, got %v", err)
	}

	if _, err := engine.ValidateBearer(ctx, creds.AccessToken, ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected token of revoked key to be rejected, got %v", err)
	}
	// The refresh token was signed by the same key.
	if _, err := engine.RefreshSession(ctx, creds.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected refresh token of revoked key to be rejected, got %v", err)
	}

	// Revoking the active key makes the next signing call provision one.
	next, err := engine.CreateSession(ctx, "U")
	if err != nil {
		t.Fatalf("CreateSession after revoke failed: %v", err)
	}
	if _, err := engine.ValidateBearer(ctx, next.AccessToken, ""); err != nil {
		t.Fatalf("expected new token to validate, got %v", err)
	}

	infos, err := engine.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	revoked := 0
	for _, info := range infos {
		if info.KID == oldKID && info.Revoked {
			revoked++
		}
	}
	if revoked != 1 {
		t.Fatalf("expected revoked key in listing, got %+v", infos)
	}
}

func TestRevokeUnknownKey(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig(), newTestClock())
	defer done()

	err := engine.RevokeKey(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	if !errors.Is(err, ErrKeyNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected key not found, got %v", err)
	}
}

func TestJWKSDocument(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig(), newTestClock())
	defer done()
	ctx := context.Background()

	if _, err := engine.RotateKeys(ctx); err != nil {
		t.Fatalf("RotateKeys failed: %v", err)
	}
	doc, err := engine.JWKS(ctx)
	if err != nil {
		t.Fatalf("JWKS failed: %v", err)
	}

	var parsed struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		t.Fatalf("JWKS is not JSON: %v", err)
	}
	if len(parsed.Keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(parsed.Keys))
	}
	if _, ok := parsed.Keys[0]["d"]; ok {
		t.Fatal("private component leaked into JWKS")
	}
	if parsed.Keys[0]["kid"] == "" {
		t.Fatal("expected kid in JWKS entry")
	}
}

func TestKeyStoreOutageIsInternal(t *testing.T) {
	engine, mr, done := newTestEngine(t, testConfig(), newTestClock())
	defer done()

	mr.SetError("server unavailable")
	defer mr.SetError("")

	if _, err := engine.RotateKeys(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if _, err := engine.JWKS(context.Background()); !errors.Is(err, ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
