package keys

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxKeys = 5
	defaultRSABits = 2048
	activateFlight = "activate"
)

// Config controls key generation and the retention window.
type Config struct {
	Algorithm   Algorithm
	RSABits     int
	MaxKeys     int
	RedisPrefix string

	// Now overrides the clock used for created/deactivated/revoked stamps.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Algorithm == "" {
		c.Algorithm = AlgEdDSA
	}
	if c.RSABits == 0 {
		c.RSABits = defaultRSABits
	}
	if c.MaxKeys == 0 {
		c.MaxKeys = defaultMaxKeys
	}
	if c.RedisPrefix == "" {
		c.RedisPrefix = "jwks"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Validate reports whether the configuration can drive a [Manager].
func (c Config) Validate() error {
	switch c.Algorithm {
	case AlgEdDSA, AlgRS256:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, c.Algorithm)
	}
	if c.MaxKeys < 1 {
		return errors.New("keys: MaxKeys must be >= 1")
	}
	if c.Algorithm == AlgRS256 && c.RSABits < minRSABits {
		return fmt.Errorf("keys: RSABits must be >= %d", minRSABits)
	}
	return nil
}

// Manager is the Key Lifecycle Manager. It is safe for concurrent use and
// for use from many processes sharing one Redis instance.
type Manager struct {
	store *Store
	cfg   Config
	group singleflight.Group

	generate func(Algorithm, int) (crypto.Signer, error)
	newKID   func() string
}

// NewManager builds a [Manager] over rdb. Zero-valued config fields take
// defaults: EdDSA, a window of 5 keys and the "jwks" prefix.
func NewManager(rdb redis.UniversalClient, cfg Config) (*Manager, error) {
	if rdb == nil {
		return nil, errors.New("keys: redis client is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		store:    NewStore(rdb, cfg.RedisPrefix),
		cfg:      cfg,
		generate: generateKey,
		newKID:   func() string { return ulid.Make().String() },
	}, nil
}

// Algorithm returns the algorithm used for newly generated keys.
func (m *Manager) Algorithm() Algorithm {
	return m.cfg.Algorithm
}

// EnsureActiveKey returns the active signing key, provisioning one when no
// key is active. Concurrent callers in this process share one generation;
// callers in other processes race on a conditional write and the losers
// adopt the winner's key.
//
//	Performance: 1 Lua read when a key is active.
func (m *Manager) EnsureActiveKey(ctx context.Context) (ActiveKey, error) {
	key, ok, err := m.store.loadActive(ctx)
	if err != nil {
		return ActiveKey{}, err
	}
	if ok {
		return key, nil
	}

	// The flight outlives any single caller; each caller still honours its
	// own cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(activateFlight, func() (interface{}, error) {
		return m.activate(flightCtx)
	})
	select {
	case <-ctx.Done():
		return ActiveKey{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ActiveKey{}, res.Err
		}
		return res.Val.(ActiveKey), nil
	}
}

// GetActiveSigningKey is the signing accessor used by the token codec.
func (m *Manager) GetActiveSigningKey(ctx context.Context) (ActiveKey, error) {
	return m.EnsureActiveKey(ctx)
}

func (m *Manager) activate(ctx context.Context) (ActiveKey, error) {
	// Another flight may have finished between our read and Do.
	key, ok, err := m.store.loadActive(ctx)
	if err != nil {
		return ActiveKey{}, err
	}
	if ok {
		return key, nil
	}

	candidate, stored, err := m.newKey()
	if err != nil {
		return ActiveKey{}, err
	}
	res, err := m.store.create(ctx, stored, true, m.cfg.MaxKeys)
	if err != nil {
		return ActiveKey{}, err
	}
	if res.created {
		return candidate, nil
	}

	key, ok, err = m.store.loadActive(ctx)
	if err != nil {
		return ActiveKey{}, err
	}
	if !ok {
		return ActiveKey{}, ErrNoActiveKey
	}
	return key, nil
}

// RotateKeys generates a fresh key and makes it active. The previous active
// key stays in the verification set until it falls out of the retention
// window. Keys evicted by the trim lose their material in the same step.
func (m *Manager) RotateKeys(ctx context.Context) (string, crypto.Signer, error) {
	candidate, stored, err := m.newKey()
	if err != nil {
		return "", nil, err
	}
	res, err := m.store.create(ctx, stored, false, m.cfg.MaxKeys)
	if err != nil {
		return "", nil, err
	}
	if !res.created {
		return "", nil, ErrNoActiveKey
	}
	return candidate.KID, candidate.PrivateKey, nil
}

// RevokeKey removes kid from publication and deletes its private material.
// Revoking the active key clears the active pointer so the next signing
// call provisions a new key. Revoking an already revoked kid is a no-op.
func (m *Manager) RevokeKey(ctx context.Context, kid string) error {
	if kid == "" {
		return ErrKeyNotFound
	}
	code, err := m.store.revoke(ctx, kid, m.cfg.Now())
	if err != nil {
		return err
	}
	switch code {
	case revokeStatusRevoked, revokeStatusAlready:
		return nil
	case revokeStatusUnknown:
		return ErrKeyNotFound
	default:
		return fmt.Errorf("%w: unexpected revoke status %d", ErrKeyStoreUnavailable, code)
	}
}

// GetVerificationKeySet returns the public keys of the newest MaxKeys
// indexed keys minus revoked ones, newest first.
func (m *Manager) GetVerificationKeySet(ctx context.Context) ([]PublicKey, error) {
	return m.store.verificationSet(ctx, m.cfg.MaxKeys)
}

// ListKeys returns material-free metadata for every indexed key.
func (m *Manager) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	return m.store.list(ctx)
}

// JWKS returns the verification key set as an RFC 7517 JSON document.
func (m *Manager) JWKS(ctx context.Context) ([]byte, error) {
	set, err := m.GetVerificationKeySet(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeJWKS(set)
}

func (m *Manager) newKey() (ActiveKey, storedKey, error) {
	priv, err := m.generate(m.cfg.Algorithm, m.cfg.RSABits)
	if err != nil {
		return ActiveKey{}, storedKey{}, fmt.Errorf("generate key: %w", err)
	}
	privPEM, err := encodePrivateKey(priv)
	if err != nil {
		return ActiveKey{}, storedKey{}, err
	}
	pubPEM, err := encodePublicKey(priv.Public())
	if err != nil {
		return ActiveKey{}, storedKey{}, err
	}

	kid := m.newKID()
	active := ActiveKey{
		KID:        kid,
		Algorithm:  m.cfg.Algorithm,
		PrivateKey: priv,
		PublicKey:  priv.Public(),
	}
	stored := storedKey{
		kid:       kid,
		alg:       m.cfg.Algorithm,
		createdAt: m.cfg.Now(),
		priv:      privPEM,
		pub:       pubPEM,
	}
	return active, stored, nil
}
