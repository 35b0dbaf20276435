package proof

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/multiformats/go-multibase"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/ports"
)

const SchemeEd25519 = "ed25519"

// ed25519PubMulticodec is the uvarint encoding of multicodec 0xed (ed25519-pub)
var ed25519PubMulticodec = []byte{0xed, 0x01}

// Ed25519 proves control by signing the challenge string.
// Public credentials are multibase base58btc keys and DIDs follow did:key.
type Ed25519 struct{}

// NewEd25519 creates the ed25519 signature scheme
func NewEd25519() ports.ProofScheme {
	return &Ed25519{}
}

func (e *Ed25519) Name() string { return SchemeEd25519 }

func (e *Ed25519) RetainsPrivate() bool { return false }

// Generate creates a key pair. The private credential is the hex encoded seed.
func (e *Ed25519) Generate() (core.Credentials, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return core.Credentials{}, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	public, err := multibase.Encode(multibase.Base58BTC, pub)
	if err != nil {
		return core.Credentials{}, fmt.Errorf("failed to encode public key: %w", err)
	}

	return core.Credentials{Public: public, Private: hex.EncodeToString(priv.Seed())}, nil
}

// DeriveDID builds did:key:z... from the multicodec prefixed public key
func (e *Ed25519) DeriveDID(publicCredential string) (string, error) {
	pub, err := decodeEd25519Public(publicCredential)
	if err != nil {
		return "", err
	}

	methodID, err := multibase.Encode(multibase.Base58BTC, append(append([]byte{}, ed25519PubMulticodec...), pub...))
	if err != nil {
		return "", fmt.Errorf("failed to encode did:key: %w", err)
	}

	return "did:key:" + methodID, nil
}

// Verify checks a base64 ed25519 signature over the challenge string
func (e *Ed25519) Verify(identity *core.Identity, challenge string, proof string) error {
	pub, err := decodeEd25519Public(identity.PublicCredential)
	if err != nil {
		return fmt.Errorf("stored public credential unusable: %w", core.ErrInvalidProof)
	}

	sig, err := base64.StdEncoding.DecodeString(proof)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", core.ErrInvalidProof)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("signature must be %d bytes: %w", ed25519.SignatureSize, core.ErrInvalidProof)
	}

	if !ed25519.Verify(pub, []byte(challenge), sig) {
		return core.ErrInvalidProof
	}
	return nil
}

// Prove signs the challenge with the hex encoded seed
func (e *Ed25519) Prove(privateCredential string, challenge string) (string, error) {
	seed, err := hex.DecodeString(privateCredential)
	if err != nil {
		return "", fmt.Errorf("failed to decode private credential: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("private credential must be a %d byte seed", ed25519.SeedSize)
	}

	sig := ed25519.Sign(ed25519.NewKeyFromSeed(seed), []byte(challenge))
	return base64.StdEncoding.EncodeToString(sig), nil
}

func decodeEd25519Public(publicCredential string) (ed25519.PublicKey, error) {
	enc, raw, err := multibase.Decode(publicCredential)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public credential: %w", err)
	}
	if enc != multibase.Base58BTC {
		return nil, fmt.Errorf("public credential must be base58btc multibase")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public credential must be %d bytes", ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
