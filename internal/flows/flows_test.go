package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goIssuer/jwt"
	"github.com/MrEthical07/goIssuer/session"
)

var flowEpoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// fakeTokens mints "<kind>|<sub>|<sid>|<n>" strings and parses them back.
type fakeTokens struct {
	n       int
	signErr error
	keyErr  error
}

func (f *fakeTokens) sign(_ context.Context, sub, sid string, kind jwt.Kind, _ time.Time) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	f.n++
	return strings.Join([]string{string(kind), sub, sid, strconv.Itoa(f.n)}, "|"), nil
}

func (f *fakeTokens) verify(_ context.Context, token string, kind jwt.Kind, _ time.Time) (*jwt.Claims, error) {
	if f.keyErr != nil {
		return nil, f.keyErr
	}
	parts := strings.Split(token, "|")
	if len(parts) != 4 || parts[0] != string(kind) {
		return nil, &jwt.VerifyError{Reason: jwt.ReasonMalformed, Err: errors.New("bad token")}
	}
	return &jwt.Claims{Subject: parts[1], SessionID: parts[2], Kind: kind}, nil
}

// fakeStore is an in-memory session store keyed by raw tokens.
type fakeStore struct {
	sessions  map[string]*session.Session
	byAccess  map[string]string
	byRefresh map[string]string
	err       error
	statusErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:  map[string]*session.Session{},
		byAccess:  map[string]string{},
		byRefresh: map[string]string{},
	}
}

func (s *fakeStore) Create(_ context.Context, sess *session.Session, access, refresh string, _ int) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	s.byAccess[access] = sess.ID
	s.byRefresh[refresh] = sess.ID
	return "", nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*session.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) GetByAccessToken(ctx context.Context, token string) (*session.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.Get(ctx, s.byAccess[token])
}

func (s *fakeStore) GetByRefreshToken(ctx context.Context, token string) (*session.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.Get(ctx, s.byRefresh[token])
}

func (s *fakeStore) Rotate(_ context.Context, req session.RotateRequest) (*session.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.byRefresh[req.PresentedRefresh] != req.SessionID {
		return nil, session.ErrStaleRefresh
	}
	delete(s.byRefresh, req.PresentedRefresh)
	s.byAccess[req.NextAccess] = req.SessionID
	s.byRefresh[req.NextRefresh] = req.SessionID
	sess := s.sessions[req.SessionID]
	sess.ExpiresAt = req.ExpiresAt
	sess.RefreshedAt = req.RefreshedAt
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) SetStatus(_ context.Context, id string, from, to session.Status) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	if sess.Status == to {
		return nil
	}
	if sess.Status != from {
		return session.ErrNotActive
	}
	sess.Status = to
	return nil
}

type flowFixture struct {
	tokens *fakeTokens
	store  *fakeStore
	now    time.Time
	svc    Service
}

func newFlowFixture() *flowFixture {
	f := &flowFixture{tokens: &fakeTokens{}, store: newFakeStore(), now: flowEpoch}
	clock := func() time.Time { return f.now }
	ids := 0
	f.svc = New(Deps{
		Create: CreateDeps{
			NewSessionID: func() (string, error) {
				ids++
				return "sid" + strconv.Itoa(ids), nil
			},
			Sign:         f.tokens.sign,
			AccessTTL:    15 * time.Minute,
			MaxActive:    5,
			Now:          clock,
			SessionStore: f.store,
		},
		Refresh: RefreshDeps{
			Verify:       f.tokens.verify,
			Sign:         f.tokens.sign,
			AccessTTL:    15 * time.Minute,
			Now:          clock,
			SessionStore: f.store,
		},
		Validate: ValidateDeps{
			Verify:       f.tokens.verify,
			Now:          clock,
			Leeway:       30 * time.Second,
			SessionStore: f.store,
		},
		Revoke: RevokeDeps{SessionStore: f.store},
	})
	return f
}

func (f *flowFixture) create(t *testing.T, userID string) CreateResult {
	t.Helper()
	res := f.svc.Create(context.Background(), userID)
	if res.Failure != CreateFailureNone {
		t.Fatalf("create failed: kind=%d err=%v", res.Failure, res.Err)
	}
	return res
}

func TestCreateUserLookup(t *testing.T) {
	deps := CreateDeps{
		UserExists: func(context.Context, string) (bool, error) { return false, nil },
	}
	if res := RunCreate(context.Background(), "ghost", deps); res.Failure != CreateFailureUserNotFound {
		t.Fatalf("expected user not found, got %d", res.Failure)
	}

	deps.UserExists = func(context.Context, string) (bool, error) { return false, errors.New("directory down") }
	if res := RunCreate(context.Background(), "u", deps); res.Failure != CreateFailureUserLookup {
		t.Fatalf("expected user lookup failure, got %d", res.Failure)
	}
}

func TestCreateClassifiesStoreErrors(t *testing.T) {
	f := newFlowFixture()

	f.store.err = session.ErrTokenConflict
	if res := f.svc.Create(context.Background(), "u1"); res.Failure != CreateFailureConflict {
		t.Fatalf("expected conflict, got %d", res.Failure)
	}

	f.store.err = session.ErrStoreUnavailable
	if res := f.svc.Create(context.Background(), "u1"); res.Failure != CreateFailurePersist {
		t.Fatalf("expected persist failure, got %d", res.Failure)
	}
}

func TestCreateSignFailure(t *testing.T) {
	f := newFlowFixture()
	f.tokens.signErr = errors.New("key store down")

	res := f.svc.Create(context.Background(), "u1")
	if res.Failure != CreateFailureSign {
		t.Fatalf("expected sign failure, got %d", res.Failure)
	}
	if len(f.store.sessions) != 0 {
		t.Fatal("expected nothing persisted after a signing failure")
	}
}

func TestCreateSetsExpiryFromAccessTTL(t *testing.T) {
	f := newFlowFixture()
	res := f.create(t, "u1")

	if !res.Session.ExpiresAt.Equal(flowEpoch.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.Session.ExpiresAt)
	}
	if res.Session.Status != session.StatusActive {
		t.Fatalf("expected active session, got %s", res.Session.Status)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")

	res := f.svc.Refresh(context.Background(), created.AccessToken)
	if res.Failure != RefreshFailureVerify {
		t.Fatalf("expected verify failure for an access token, got %d", res.Failure)
	}
}

func TestRefreshKeyStoreOutage(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")
	f.tokens.keyErr = errors.New("redis down")

	if res := f.svc.Refresh(context.Background(), created.RefreshToken); res.Failure != RefreshFailureKeyStore {
		t.Fatalf("expected key store failure, got %d", res.Failure)
	}
}

func TestRefreshOwnerMismatch(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")

	// Rebind the stored session to another user behind the token's back.
	f.store.sessions[created.SessionID].UserID = "u2"

	res := f.svc.Refresh(context.Background(), created.RefreshToken)
	if res.Failure != RefreshFailureOwnerMismatch {
		t.Fatalf("expected owner mismatch, got %d", res.Failure)
	}
}

func TestRefreshNotActive(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")
	f.store.sessions[created.SessionID].Status = session.StatusRevoked

	if res := f.svc.Refresh(context.Background(), created.RefreshToken); res.Failure != RefreshFailureNotActive {
		t.Fatalf("expected not active, got %d", res.Failure)
	}
}

func TestRefreshExtendsExpiryAndConsumesToken(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")
	f.now = f.now.Add(10 * time.Minute)

	res := f.svc.Refresh(context.Background(), created.RefreshToken)
	if res.Failure != RefreshFailureNone {
		t.Fatalf("refresh failed: kind=%d err=%v", res.Failure, res.Err)
	}
	if res.SessionID != created.SessionID {
		t.Fatalf("expected same session id, got %s", res.SessionID)
	}
	if !res.Session.ExpiresAt.Equal(f.now.Add(15 * time.Minute)) {
		t.Fatalf("expected expiry to move to now+ttl, got %v", res.Session.ExpiresAt)
	}

	again := f.svc.Refresh(context.Background(), created.RefreshToken)
	if again.Failure != RefreshFailureSessionNotFound {
		t.Fatalf("expected consumed token to resolve nowhere, got %d", again.Failure)
	}
}

func TestValidateExpiresSessionOnce(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")

	// Just inside the leeway.
	f.now = flowEpoch.Add(15*time.Minute + 29*time.Second)
	if res := f.svc.Validate(context.Background(), created.AccessToken, ""); res.Failure != ValidateFailureNone {
		t.Fatalf("expected success inside leeway, got %d", res.Failure)
	}

	f.now = flowEpoch.Add(15*time.Minute + 30*time.Second)
	res := f.svc.Validate(context.Background(), created.AccessToken, "")
	if res.Failure != ValidateFailureExpired || !res.ExpiredNow {
		t.Fatalf("expected expiry transition, got kind=%d expiredNow=%v", res.Failure, res.ExpiredNow)
	}
	if f.store.sessions[created.SessionID].Status != session.StatusExpired {
		t.Fatal("expected stored status expired")
	}

	res = f.svc.Validate(context.Background(), created.AccessToken, "")
	if res.Failure != ValidateFailureExpired || res.ExpiredNow {
		t.Fatalf("expected plain expired on second call, got kind=%d expiredNow=%v", res.Failure, res.ExpiredNow)
	}
}

func TestValidateExpiryTransitionFailureWarns(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")
	f.store.statusErr = session.ErrStoreUnavailable

	var warned bool
	deps := f.svc.deps.Validate
	deps.Warn = func(string, ...any) { warned = true }
	f.now = flowEpoch.Add(time.Hour)

	res := RunValidate(context.Background(), created.AccessToken, "", deps)
	if res.Failure != ValidateFailureExpired || res.ExpiredNow {
		t.Fatalf("expected expired without transition, got kind=%d expiredNow=%v", res.Failure, res.ExpiredNow)
	}
	if !warned {
		t.Fatal("expected a warning for the failed transition")
	}
}

func TestValidateMismatchedSession(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")
	f.store.sessions[created.SessionID].UserID = "u2"

	if res := f.svc.Validate(context.Background(), created.AccessToken, ""); res.Failure != ValidateFailureMismatch {
		t.Fatalf("expected mismatch, got %d", res.Failure)
	}
}

func TestValidateKeyStoreSkipsRefresh(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")
	f.tokens.keyErr = errors.New("redis down")

	res := f.svc.Validate(context.Background(), created.AccessToken, created.RefreshToken)
	if res.Failure != ValidateFailureKeyStore {
		t.Fatalf("expected key store failure, got %d", res.Failure)
	}
	if res.Refreshed != nil {
		t.Fatal("expected no refresh attempt during a key store outage")
	}
}

func TestValidateFallsBackToRefresh(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")

	res := f.svc.Validate(context.Background(), "garbage", created.RefreshToken)
	if res.Failure != ValidateFailureNone || res.Refreshed == nil {
		t.Fatalf("expected refresh fallback success, got kind=%d", res.Failure)
	}
	if res.SessionID != created.SessionID {
		t.Fatalf("expected session %s, got %s", created.SessionID, res.SessionID)
	}

	res = f.svc.Validate(context.Background(), "garbage", created.RefreshToken)
	if res.Failure != ValidateFailureRefresh {
		t.Fatalf("expected refresh failure on reuse, got %d", res.Failure)
	}
}

func TestRevokeOutcomes(t *testing.T) {
	f := newFlowFixture()
	created := f.create(t, "u1")
	ctx := context.Background()

	if res := f.svc.Revoke(ctx, created.SessionID); res.Failure != RevokeFailureNone || res.UserID != "u1" {
		t.Fatalf("expected revoke success, got %+v", res)
	}
	if res := f.svc.Revoke(ctx, created.SessionID); res.Failure != RevokeFailureNone {
		t.Fatalf("expected second revoke to be a no-op, got %d", res.Failure)
	}
	if res := f.svc.Revoke(ctx, "missing"); res.Failure != RevokeFailureNotFound {
		t.Fatalf("expected not found, got %d", res.Failure)
	}

	other := f.create(t, "u1")
	f.store.sessions[other.SessionID].Status = session.StatusExpired
	if res := f.svc.Revoke(ctx, other.SessionID); res.Failure != RevokeFailureTerminal {
		t.Fatalf("expected terminal for an expired session, got %d", res.Failure)
	}

	f.store.err = session.ErrStoreUnavailable
	if res := f.svc.Revoke(ctx, created.SessionID); res.Failure != RevokeFailureStore {
		t.Fatalf("expected store failure, got %d", res.Failure)
	}
}
