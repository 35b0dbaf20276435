package store

import (
	"context"
	"errors"
	"sync"

	"github.com/bluele/gcache"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/ports"
)

// DefaultChallengeCapacity bounds the number of outstanding challenges held in memory
const DefaultChallengeCapacity = 10000

// MemoryStore is an in-memory implementation of the Store interface.
// Identities live for the lifetime of the process; challenges sit in an LRU
// cache that also evicts them once they expire.
type MemoryStore struct {
	identities map[string]*core.Identity
	challenges gcache.Cache
	clock      ports.Clock
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(capacity int, clock ports.Clock) ports.Store {
	if capacity <= 0 {
		capacity = DefaultChallengeCapacity
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &MemoryStore{
		identities: make(map[string]*core.Identity),
		challenges: gcache.New(capacity).LRU().Clock(clock).Build(),
		clock:      clock,
	}
}

// CreateIdentity stores a new identity
func (s *MemoryStore) CreateIdentity(ctx context.Context, identity *core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[identity.DID]; exists {
		return core.ErrIdentityExists
	}

	stored := *identity
	s.identities[identity.DID] = &stored
	return nil
}

// GetIdentity returns a copy of the identity registered under did
func (s *MemoryStore) GetIdentity(ctx context.Context, did string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.identities[did]
	if !exists {
		return nil, core.ErrIdentityNotFound
	}

	found := *identity
	return &found, nil
}

// PutChallenge stores the challenge, replacing any previous one for the DID
func (s *MemoryStore) PutChallenge(ctx context.Context, challenge *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *challenge
	if stored.ExpiresAt.IsZero() {
		return s.challenges.Set(stored.DID, &stored)
	}

	ttl := stored.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		// Already dead on arrival, but it still replaces the previous challenge
		s.challenges.Remove(stored.DID)
		return nil
	}

	return s.challenges.SetWithExpire(stored.DID, &stored, ttl)
}

// ConsumeChallenge returns and removes the challenge for did
func (s *MemoryStore) ConsumeChallenge(ctx context.Context, did string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := s.challenges.Get(did)
	if err != nil {
		if errors.Is(err, gcache.KeyNotFoundError) {
			return nil, core.ErrChallengeNotFound
		}
		return nil, err
	}
	s.challenges.Remove(did)

	challenge, ok := value.(*core.Challenge)
	if !ok {
		return nil, core.ErrChallengeNotFound
	}
	return challenge, nil
}
