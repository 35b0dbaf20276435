package service

import (
	"crypto/subtle"
	"fmt"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/ports"
)

// Verifier checks a login attempt against the challenge taken from the store
type Verifier struct {
	scheme ports.ProofScheme
}

// NewVerifier creates a verifier applying scheme to every identity
func NewVerifier(scheme ports.ProofScheme) *Verifier {
	return &Verifier{scheme: scheme}
}

// Verify checks the presented challenge and then the proof.
// The caller owns the challenge lifecycle; Verify never touches the store.
func (v *Verifier) Verify(identity *core.Identity, stored *core.Challenge, presented string, proof string) error {
	if subtle.ConstantTimeCompare([]byte(stored.Value), []byte(presented)) != 1 {
		return core.ErrChallengeMismatch
	}

	if identity.Scheme != "" && identity.Scheme != v.scheme.Name() {
		return fmt.Errorf("identity minted by %q, configured scheme is %q: %w",
			identity.Scheme, v.scheme.Name(), core.ErrInvalidProof)
	}

	if err := v.scheme.Verify(identity, stored.Value, proof); err != nil {
		return fmt.Errorf("proof rejected: %w", err)
	}

	return nil
}
