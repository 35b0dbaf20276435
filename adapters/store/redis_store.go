package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/ports"
)

// DefaultRedisPrefix namespaces every key written by RedisStore
const DefaultRedisPrefix = "didgate:"

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

type identityRecord struct {
	DID               string    `json:"did"`
	PublicCredential  string    `json:"public_credential"`
	PrivateCredential string    `json:"private_credential,omitempty"`
	Scheme            string    `json:"scheme"`
	CreatedAt         time.Time `json:"created_at"`
}

type challengeRecord struct {
	DID       string    `json:"did"`
	Value     string    `json:"value"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.UniversalClient, prefix string) ports.Store {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) identityKey(did string) string {
	return s.prefix + "identity:" + did
}

func (s *RedisStore) challengeKey(did string) string {
	return s.prefix + "challenge:" + did
}

// CreateIdentity stores the identity with SETNX so an existing DID is never overwritten
func (s *RedisStore) CreateIdentity(ctx context.Context, identity *core.Identity) error {
	data, err := json.Marshal(identityRecord{
		DID:               identity.DID,
		PublicCredential:  identity.PublicCredential,
		PrivateCredential: identity.PrivateCredential,
		Scheme:            identity.Scheme,
		CreatedAt:         identity.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.identityKey(identity.DID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}
	if !created {
		return core.ErrIdentityExists
	}

	return nil
}

// GetIdentity loads the identity registered under did
func (s *RedisStore) GetIdentity(ctx context.Context, did string) (*core.Identity, error) {
	data, err := s.client.Get(ctx, s.identityKey(did)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	var record identityRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}

	return &core.Identity{
		DID:               record.DID,
		PublicCredential:  record.PublicCredential,
		PrivateCredential: record.PrivateCredential,
		Scheme:            record.Scheme,
		CreatedAt:         record.CreatedAt,
	}, nil
}

// PutChallenge stores the challenge with a TTL matching its lifetime
func (s *RedisStore) PutChallenge(ctx context.Context, challenge *core.Challenge) error {
	data, err := json.Marshal(challengeRecord{
		DID:       challenge.DID,
		Value:     challenge.Value,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	var ttl time.Duration
	if !challenge.ExpiresAt.IsZero() {
		ttl = challenge.ExpiresAt.Sub(challenge.IssuedAt)
		if ttl <= 0 {
			return s.client.Del(ctx, s.challengeKey(challenge.DID)).Err()
		}
	}

	if err := s.client.Set(ctx, s.challengeKey(challenge.DID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	return nil
}

// ConsumeChallenge takes the challenge with GETDEL so only one caller ever sees it
func (s *RedisStore) ConsumeChallenge(ctx context.Context, did string) (*core.Challenge, error) {
	data, err := s.client.GetDel(ctx, s.challengeKey(did)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}

	var record challengeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}

	return &core.Challenge{
		DID:       record.DID,
		Value:     record.Value,
		IssuedAt:  record.IssuedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}
