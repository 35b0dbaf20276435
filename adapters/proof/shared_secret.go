package proof

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/internal/random"
	"github.com/layer-3/didgate/ports"
)

const SchemeSharedSecret = "shared-secret"

// SharedSecret is the demo scheme: the proof is the private credential itself.
// The server has to keep the "private" credential to compare against, so anyone
// with read access to the registry can impersonate every identity.
type SharedSecret struct {
	method string
}

// NewSharedSecret creates the shared-secret scheme minting did:<method>: DIDs
func NewSharedSecret(method string) ports.ProofScheme {
	if method == "" {
		method = "demo"
	}
	return &SharedSecret{method: method}
}

func (s *SharedSecret) Name() string { return SchemeSharedSecret }

func (s *SharedSecret) RetainsPrivate() bool { return true }

// Generate creates two unrelated 32 byte random hex strings
func (s *SharedSecret) Generate() (core.Credentials, error) {
	private, err := random.Hex(32)
	if err != nil {
		return core.Credentials{}, fmt.Errorf("failed to generate private credential: %w", err)
	}
	public, err := random.Hex(32)
	if err != nil {
		return core.Credentials{}, fmt.Errorf("failed to generate public credential: %w", err)
	}
	return core.Credentials{Public: public, Private: private}, nil
}

// DeriveDID returns did:<method>: followed by the first 32 hex chars of sha256(public)
func (s *SharedSecret) DeriveDID(publicCredential string) (string, error) {
	if publicCredential == "" {
		return "", fmt.Errorf("empty public credential")
	}
	sum := sha256.Sum256([]byte(publicCredential))
	return fmt.Sprintf("did:%s:%s", s.method, hex.EncodeToString(sum[:])[:32]), nil
}

func (s *SharedSecret) Verify(identity *core.Identity, challenge string, proof string) error {
	if identity.PrivateCredential == "" {
		return fmt.Errorf("identity has no retained secret: %w", core.ErrInvalidProof)
	}
	if subtle.ConstantTimeCompare([]byte(identity.PrivateCredential), []byte(proof)) != 1 {
		return core.ErrInvalidProof
	}
	return nil
}

// Prove echoes the private credential
func (s *SharedSecret) Prove(privateCredential string, challenge string) (string, error) {
	return privateCredential, nil
}
