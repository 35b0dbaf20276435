package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, clock *fakeClock) ports.Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *fakeClock) ports.Store {
			return NewMemoryStore(16, clock)
		},
		"redis": func(t *testing.T, clock *fakeClock) ports.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client, "test:")
		},
	}
}

func newIdentity(did string) *core.Identity {
	return &core.Identity{
		DID:               did,
		PublicCredential:  "p-" + did,
		PrivateCredential: "s-" + did,
		Scheme:            "shared-secret",
		CreatedAt:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_Identities(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, &fakeClock{now: time.Now()})

			_, err := s.GetIdentity(ctx, "did:test:abc")
			assert.ErrorIs(t, err, core.ErrIdentityNotFound)

			identity := newIdentity("did:test:abc")
			require.NoError(t, s.CreateIdentity(ctx, identity))

			got, err := s.GetIdentity(ctx, "did:test:abc")
			require.NoError(t, err)
			assert.Equal(t, identity.DID, got.DID)
			assert.Equal(t, identity.PublicCredential, got.PublicCredential)
			assert.Equal(t, identity.PrivateCredential, got.PrivateCredential)
			assert.Equal(t, identity.Scheme, got.Scheme)
			assert.True(t, identity.CreatedAt.Equal(got.CreatedAt))

			// identities are immutable: a second create never overwrites
			other := newIdentity("did:test:abc")
			other.PublicCredential = "other"
			assert.ErrorIs(t, s.CreateIdentity(ctx, other), core.ErrIdentityExists)

			got, err = s.GetIdentity(ctx, "did:test:abc")
			require.NoError(t, err)
			assert.Equal(t, "p-did:test:abc", got.PublicCredential)
		})
	}
}

func TestStore_ChallengeSingleUse(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			s := factory(t, &fakeClock{now: now})

			_, err := s.ConsumeChallenge(ctx, "did:test:abc")
			assert.ErrorIs(t, err, core.ErrChallengeNotFound)

			require.NoError(t, s.PutChallenge(ctx, &core.Challenge{
				DID: "did:test:abc", Value: "c1", IssuedAt: now, ExpiresAt: now.Add(5 * time.Minute),
			}))

			got, err := s.ConsumeChallenge(ctx, "did:test:abc")
			require.NoError(t, err)
			assert.Equal(t, "c1", got.Value)
			assert.Equal(t, "did:test:abc", got.DID)

			_, err = s.ConsumeChallenge(ctx, "did:test:abc")
			assert.ErrorIs(t, err, core.ErrChallengeNotFound)
		})
	}
}

func TestStore_ChallengeOverwrite(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			s := factory(t, &fakeClock{now: now})

			for _, v := range []string{"c1", "c2"} {
				require.NoError(t, s.PutChallenge(ctx, &core.Challenge{
					DID: "did:test:abc", Value: v, IssuedAt: now, ExpiresAt: now.Add(time.Minute),
				}))
			}
			require.NoError(t, s.PutChallenge(ctx, &core.Challenge{
				DID: "did:test:other", Value: "x1", IssuedAt: now, ExpiresAt: now.Add(time.Minute),
			}))

			got, err := s.ConsumeChallenge(ctx, "did:test:abc")
			require.NoError(t, err)
			assert.Equal(t, "c2", got.Value)

			got, err = s.ConsumeChallenge(ctx, "did:test:other")
			require.NoError(t, err)
			assert.Equal(t, "x1", got.Value)
		})
	}
}

func TestStore_ConcurrentConsume(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			s := factory(t, &fakeClock{now: now})

			require.NoError(t, s.PutChallenge(ctx, &core.Challenge{
				DID: "did:test:abc", Value: "c1", IssuedAt: now, ExpiresAt: now.Add(time.Minute),
			}))

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				winners int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.ConsumeChallenge(ctx, "did:test:abc"); err == nil {
						mu.Lock()
						winners++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, winners)
		})
	}
}

func TestMemoryStore_ChallengeExpiresWithClock(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	s := NewMemoryStore(16, clock)

	require.NoError(t, s.PutChallenge(ctx, &core.Challenge{
		DID: "did:test:abc", Value: "c1", IssuedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Minute),
	}))

	clock.Advance(2 * time.Minute)

	_, err := s.ConsumeChallenge(ctx, "did:test:abc")
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestMemoryStore_CapacityEvictsOldest(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	s := NewMemoryStore(2, clock)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.PutChallenge(ctx, &core.Challenge{
			DID: fmt.Sprintf("did:test:%d", i), Value: "c", IssuedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Minute),
		}))
	}

	_, err := s.ConsumeChallenge(ctx, "did:test:0")
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)

	_, err = s.ConsumeChallenge(ctx, "did:test:2")
	assert.NoError(t, err)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, nil)

	identity := newIdentity("did:test:abc")
	require.NoError(t, s.CreateIdentity(ctx, identity))
	identity.PublicCredential = "mutated"

	got, err := s.GetIdentity(ctx, "did:test:abc")
	require.NoError(t, err)
	got.PrivateCredential = "mutated"

	again, err := s.GetIdentity(ctx, "did:test:abc")
	require.NoError(t, err)
	assert.Equal(t, "p-did:test:abc", again.PublicCredential)
	assert.Equal(t, "s-did:test:abc", again.PrivateCredential)
}

func TestRedisStore_ChallengeTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, "")
	now := time.Now()

	require.NoError(t, s.PutChallenge(ctx, &core.Challenge{
		DID: "did:test:abc", Value: "c1", IssuedAt: now, ExpiresAt: now.Add(time.Minute),
	}))

	assert.True(t, mr.Exists(DefaultRedisPrefix+"challenge:did:test:abc"))
	assert.Equal(t, time.Minute, mr.TTL(DefaultRedisPrefix+"challenge:did:test:abc"))

	mr.FastForward(2 * time.Minute)

	_, err := s.ConsumeChallenge(ctx, "did:test:abc")
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	s := NewRedisStore(client, "")
	mr.Close()

	_, err := s.GetIdentity(ctx, "did:test:abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrIdentityNotFound)
}
