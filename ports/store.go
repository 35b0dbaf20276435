package ports

import (
	"context"

	"github.com/layer-3/didgate/core"
)

// IdentityRegistry holds registered identities.
// Identities are immutable once created and never deleted.
type IdentityRegistry interface {
	// CreateIdentity stores a new identity, failing with core.ErrIdentityExists if the DID is taken
	CreateIdentity(ctx context.Context, identity *core.Identity) error
	// GetIdentity returns the identity for did or core.ErrIdentityNotFound
	GetIdentity(ctx context.Context, did string) (*core.Identity, error)
}

// ChallengeStore holds at most one outstanding challenge per DID
type ChallengeStore interface {
	// PutChallenge stores the challenge, replacing any previous one for the same DID
	PutChallenge(ctx context.Context, challenge *core.Challenge) error
	// ConsumeChallenge atomically returns and deletes the challenge for did,
	// or fails with core.ErrChallengeNotFound
	ConsumeChallenge(ctx context.Context, did string) (*core.Challenge, error)
}

// Store combines both registries, as implemented by the memory and redis adapters
type Store interface {
	IdentityRegistry
	ChallengeStore
}
