package core

import "errors"

// Service boundary errors. Every failure leaving the auth service wraps exactly one of these.
var (
	ErrMissingParameters = errors.New("missing parameters")
	ErrUnknownDID        = errors.New("did not registered")
	ErrNoActiveChallenge = errors.New("no active login challenge")
	ErrChallengeMismatch = errors.New("challenge mismatch")
	ErrInvalidProof      = errors.New("invalid proof")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInternal          = errors.New("internal fault")
)

// Store errors
var (
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrIdentityExists    = errors.New("identity already exists")
	ErrChallengeNotFound = errors.New("challenge not found")
)

// Kind is the stable, externally visible error category
type Kind string

const (
	KindMissingParameters Kind = "missing_parameters"
	KindUnknownDID        Kind = "unknown_did"
	KindNoActiveChallenge Kind = "no_active_challenge"
	KindChallengeMismatch Kind = "challenge_mismatch"
	KindInvalidProof      Kind = "invalid_proof"
	KindUnauthorized      Kind = "unauthorized"
	KindInternal          Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrMissingParameters, KindMissingParameters},
	{ErrUnknownDID, KindUnknownDID},
	{ErrNoActiveChallenge, KindNoActiveChallenge},
	{ErrChallengeMismatch, KindChallengeMismatch},
	{ErrInvalidProof, KindInvalidProof},
	{ErrUnauthorized, KindUnauthorized},
}

// KindOf maps an error to its Kind. Anything not wrapping a boundary error is internal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Err returns the boundary error for k, ErrInternal for unknown kinds
func (k Kind) Err() error {
	for _, entry := range kinds {
		if entry.kind == k {
			return entry.err
		}
	}
	return ErrInternal
}
