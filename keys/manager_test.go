package keys

import (
	"context"
	"crypto"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newTestManager(t *testing.T, rdb redis.UniversalClient, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(rdb, cfg)
	require.NoError(t, err)
	return m
}

func countingGenerator(counter *int64) func(Algorithm, int) (crypto.Signer, error) {
	return func(alg Algorithm, bits int) (crypto.Signer, error) {
		atomic.AddInt64(counter, 1)
		return generateKey(alg, bits)
	}
}

func TestEnsureActiveKeySingleProcessGeneratesOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	m := newTestManager(t, rdb, Config{})

	var generated int64
	m.generate = countingGenerator(&generated)

	var g errgroup.Group
	kids := make([]string, 16)
	for i := range kids {
		g.Go(func() error {
			key, err := m.EnsureActiveKey(context.Background())
			if err != nil {
				return err
			}
			kids[i] = key.KID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), atomic.LoadInt64(&generated))
	for _, kid := range kids {
		assert.Equal(t, kids[0], kid)
	}
}

func TestEnsureActiveKeySurvivesCancelledCaller(t *testing.T) {
	_, rdb := newTestRedis(t)
	m := newTestManager(t, rdb, Config{})

	started := make(chan struct{})
	release := make(chan struct{})
	var generated int64
	m.generate = func(alg Algorithm, bits int) (crypto.Signer, error) {
		if atomic.AddInt64(&generated, 1) == 1 {
			close(started)
		}
		<-release
		return generateKey(alg, bits)
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.EnsureActiveKey(ctx)
		firstErr <- err
	}()
	<-started

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	key, err := m.EnsureActiveKey(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, key.KID)
	assert.Equal(t, int64(1), atomic.LoadInt64(&generated), "the cancelled caller's generation should complete")
}

func TestEnsureActiveKeyConvergesAcrossInstances(t *testing.T) {
	_, rdb := newTestRedis(t)

	managers := make([]*Manager, 4)
	for i := range managers {
		managers[i] = newTestManager(t, rdb, Config{})
	}

	var g errgroup.Group
	kids := make([]string, 12)
	for i := range kids {
		m := managers[i%len(managers)]
		g.Go(func() error {
			key, err := m.EnsureActiveKey(context.Background())
			if err != nil {
				return err
			}
			kids[i] = key.KID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, kid := range kids {
		assert.Equal(t, kids[0], kid)
	}

	indexed, err := rdb.ZCard(context.Background(), "jwks:index").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), indexed, "losing generations must not be persisted")

	active, err := rdb.Get(context.Background(), "jwks:active").Result()
	require.NoError(t, err)
	assert.Equal(t, kids[0], active)
}

func TestRotateKeysKeepsRetentionWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newStepClock()
	m := newTestManager(t, rdb, Config{MaxKeys: 3, Now: clock.Now})
	ctx := context.Background()

	var rotated []string
	for i := 0; i < 5; i++ {
		kid, priv, err := m.RotateKeys(ctx)
		require.NoError(t, err)
		require.NotNil(t, priv)
		rotated = append(rotated, kid)
	}

	set, err := m.GetVerificationKeySet(ctx)
	require.NoError(t, err)
	require.Len(t, set, 3)
	assert.Equal(t, rotated[4], set[0].KID)
	assert.Equal(t, rotated[3], set[1].KID)
	assert.Equal(t, rotated[2], set[2].KID)

	for _, evicted := range rotated[:2] {
		assert.False(t, mr.Exists("jwks:key:"+evicted), "evicted key %s still has material", evicted)
	}

	active, err := m.GetActiveSigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, rotated[4], active.KID)
}

func TestRotateKeysRanksNewestDespiteClockSkew(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ahead := newStepClock()
	behind := time.Date(2025, 12, 31, 23, 59, 58, 0, time.UTC)

	a := newTestManager(t, rdb, Config{MaxKeys: 2, Now: ahead.Now})
	b := newTestManager(t, rdb, Config{MaxKeys: 2, Now: func() time.Time { return behind }})
	ctx := context.Background()

	_, _, err := a.RotateKeys(ctx)
	require.NoError(t, err)
	second, _, err := a.RotateKeys(ctx)
	require.NoError(t, err)
	skewed, _, err := b.RotateKeys(ctx)
	require.NoError(t, err)

	set, err := a.GetVerificationKeySet(ctx)
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, skewed, set[0].KID)
	assert.Equal(t, second, set[1].KID)
	assert.True(t, mr.Exists("jwks:key:"+skewed), "new key lost its material")

	active, err := a.GetActiveSigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, skewed, active.KID)
	assert.NotNil(t, active.PrivateKey)
}

func TestRotateKeysDeactivatesPreviousKey(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := newStepClock()
	m := newTestManager(t, rdb, Config{Now: clock.Now})
	ctx := context.Background()

	first, _, err := m.RotateKeys(ctx)
	require.NoError(t, err)
	second, _, err := m.RotateKeys(ctx)
	require.NoError(t, err)

	infos, err := m.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, second, infos[0].KID)
	assert.True(t, infos[0].Active)
	assert.Nil(t, infos[0].DeactivatedAt)

	assert.Equal(t, first, infos[1].KID)
	assert.False(t, infos[1].Active)
	assert.True(t, infos[1].HasPrivateKey)
	assert.NotNil(t, infos[1].DeactivatedAt)
}

func TestRevokedKeyIsNeverPublished(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newStepClock()
	m := newTestManager(t, rdb, Config{Now: clock.Now})
	ctx := context.Background()

	var rotated []string
	for i := 0; i < 3; i++ {
		kid, _, err := m.RotateKeys(ctx)
		require.NoError(t, err)
		rotated = append(rotated, kid)
	}

	require.NoError(t, m.RevokeKey(ctx, rotated[1]))
	require.NoError(t, m.RevokeKey(ctx, rotated[1]), "revoking twice is a no-op")

	set, err := m.GetVerificationKeySet(ctx)
	require.NoError(t, err)
	require.Len(t, set, 2)
	for _, k := range set {
		assert.NotEqual(t, rotated[1], k.KID)
	}
	assert.Empty(t, mr.HGet("jwks:key:"+rotated[1], "priv"))

	// A later rotation must not resurrect it.
	_, _, err = m.RotateKeys(ctx)
	require.NoError(t, err)
	set, err = m.GetVerificationKeySet(ctx)
	require.NoError(t, err)
	for _, k := range set {
		assert.NotEqual(t, rotated[1], k.KID)
	}
}

func TestRevokeUnknownKey(t *testing.T) {
	_, rdb := newTestRedis(t)
	m := newTestManager(t, rdb, Config{})

	err := m.RevokeKey(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, m.RevokeKey(context.Background(), ""), ErrKeyNotFound)
}

func TestRevokeActiveKeyProvisionsReplacement(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := newStepClock()
	m := newTestManager(t, rdb, Config{Now: clock.Now})
	ctx := context.Background()

	first, err := m.EnsureActiveKey(ctx)
	require.NoError(t, err)
	require.NoError(t, m.RevokeKey(ctx, first.KID))

	next, err := m.EnsureActiveKey(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.KID, next.KID)

	set, err := m.GetVerificationKeySet(ctx)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, next.KID, set[0].KID)
}

func TestRS256KeysRoundTripThroughStore(t *testing.T) {
	_, rdb := newTestRedis(t)
	m := newTestManager(t, rdb, Config{Algorithm: AlgRS256})
	ctx := context.Background()

	created, err := m.EnsureActiveKey(ctx)
	require.NoError(t, err)

	loaded, err := m.GetActiveSigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.KID, loaded.KID)
	assert.Equal(t, AlgRS256, loaded.Algorithm)
	assert.True(t, created.PrivateKey.Public().(interface{ Equal(crypto.PublicKey) bool }).Equal(loaded.PublicKey))
}

func TestJWKSDocument(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := newStepClock()
	m := newTestManager(t, rdb, Config{Now: clock.Now})
	ctx := context.Background()

	first, _, err := m.RotateKeys(ctx)
	require.NoError(t, err)
	second, _, err := m.RotateKeys(ctx)
	require.NoError(t, err)

	raw, err := m.JWKS(ctx)
	require.NoError(t, err)

	var doc struct {
		Keys []map[string]interface{} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Keys, 2)

	seen := map[string]bool{}
	for _, k := range doc.Keys {
		seen[k["kid"].(string)] = true
		assert.Equal(t, "OKP", k["kty"])
		assert.Equal(t, "EdDSA", k["alg"])
		assert.Equal(t, "sig", k["use"])
		assert.NotContains(t, k, "d", "private parameters must never be published")
	}
	assert.True(t, seen[first])
	assert.True(t, seen[second])
}

func TestStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	m := newTestManager(t, rdb, Config{})
	mr.Close()

	_, err := m.EnsureActiveKey(context.Background())
	assert.ErrorIs(t, err, ErrKeyStoreUnavailable)

	_, err = m.GetVerificationKeySet(context.Background())
	assert.ErrorIs(t, err, ErrKeyStoreUnavailable)
}

func TestConfigValidate(t *testing.T) {
	_, rdb := newTestRedis(t)

	_, err := NewManager(rdb, Config{Algorithm: "HS256"})
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = NewManager(rdb, Config{MaxKeys: -1})
	assert.Error(t, err)

	_, err = NewManager(nil, Config{})
	assert.Error(t, err)
}
