package ports

import "github.com/layer-3/didgate/core"

// ProofScheme generates credentials, derives DIDs and checks login proofs.
// Exactly one scheme is configured per deployment.
type ProofScheme interface {
	// Name identifies the scheme in config and in stored identities
	Name() string
	// Generate creates a new credential pair
	Generate() (core.Credentials, error)
	// DeriveDID deterministically derives the DID from a public credential
	DeriveDID(publicCredential string) (string, error)
	// RetainsPrivate reports whether the server has to keep the private credential to verify proofs
	RetainsPrivate() bool
	// Verify checks proof for challenge against the identity, returning core.ErrInvalidProof on mismatch
	Verify(identity *core.Identity, challenge string, proof string) error
	// Prove builds the proof a client presents for challenge
	Prove(privateCredential string, challenge string) (string, error)
}
