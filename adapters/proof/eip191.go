package proof

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/ports"
)

const SchemeEIP191 = "eip191"

// EIP191 proves control with a personal_sign signature over the challenge.
// DIDs are did:pkh on the configured chain, so any Ethereum wallet can log in.
type EIP191 struct {
	chainID int64
}

// NewEIP191 creates the EIP-191 scheme for chainID
func NewEIP191(chainID int64) ports.ProofScheme {
	if chainID <= 0 {
		chainID = 1
	}
	return &EIP191{chainID: chainID}
}

func (e *EIP191) Name() string { return SchemeEIP191 }

func (e *EIP191) RetainsPrivate() bool { return false }

// Generate creates a secp256k1 key pair, both hex encoded
func (e *EIP191) Generate() (core.Credentials, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return core.Credentials{}, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}

	return core.Credentials{
		Public:  hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
		Private: hexutil.Encode(crypto.FromECDSA(key)),
	}, nil
}

// DeriveDID returns did:pkh:eip155:<chain>:<checksummed address>
func (e *EIP191) DeriveDID(publicCredential string) (string, error) {
	addr, err := addressFromPublic(publicCredential)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("did:pkh:eip155:%d:%s", e.chainID, addr.Hex()), nil
}

// Verify recovers the signer of the challenge and compares it with the identity's address
func (e *EIP191) Verify(identity *core.Identity, challenge string, proof string) error {
	expected, err := addressFromPublic(identity.PublicCredential)
	if err != nil {
		return fmt.Errorf("stored public credential unusable: %w", core.ErrInvalidProof)
	}

	sig, err := hexutil.Decode(proof)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", core.ErrInvalidProof)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidProof)
	}

	// Wallets use 27/28 for the recovery id, go-ethereum expects 0/1
	sig = append([]byte{}, sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(challenge)), sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", core.ErrInvalidProof)
	}

	if crypto.PubkeyToAddress(*pub) != expected {
		return core.ErrInvalidProof
	}
	return nil
}

// Prove signs the challenge the way personal_sign does
func (e *EIP191) Prove(privateCredential string, challenge string) (string, error) {
	key, err := privateFromHex(privateCredential)
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}

func addressFromPublic(publicCredential string) (common.Address, error) {
	raw, err := hexutil.Decode(publicCredential)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode public credential: %w", err)
	}
	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid secp256k1 public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func privateFromHex(privateCredential string) (*ecdsa.PrivateKey, error) {
	raw, err := hexutil.Decode(privateCredential)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private credential: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 private key: %w", err)
	}
	return key, nil
}
