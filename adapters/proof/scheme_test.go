package proof

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/ports"
)

func register(t *testing.T, scheme ports.ProofScheme) (*core.Identity, core.Credentials) {
	t.Helper()

	creds, err := scheme.Generate()
	require.NoError(t, err)

	did, err := scheme.DeriveDID(creds.Public)
	require.NoError(t, err)

	identity := &core.Identity{DID: did, PublicCredential: creds.Public, Scheme: scheme.Name()}
	if scheme.RetainsPrivate() {
		identity.PrivateCredential = creds.Private
	}
	return identity, creds
}

func TestSchemes_RoundTrip(t *testing.T) {
	for _, name := range Schemes {
		t.Run(name, func(t *testing.T) {
			scheme, err := New(name)
			require.NoError(t, err)
			assert.Equal(t, name, scheme.Name())

			identity, creds := register(t, scheme)

			proof, err := scheme.Prove(creds.Private, "c1")
			require.NoError(t, err)
			assert.NoError(t, scheme.Verify(identity, "c1", proof))
		})
	}
}

func TestSchemes_RejectForeignCredential(t *testing.T) {
	for _, name := range Schemes {
		t.Run(name, func(t *testing.T) {
			scheme, err := New(name)
			require.NoError(t, err)

			first, _ := register(t, scheme)
			_, second := register(t, scheme)

			proof, err := scheme.Prove(second.Private, "c1")
			require.NoError(t, err)

			err = scheme.Verify(first, "c1", proof)
			assert.True(t, errors.Is(err, core.ErrInvalidProof), "got %v", err)
		})
	}
}

func TestSchemes_DeriveDIDDeterministic(t *testing.T) {
	for _, name := range Schemes {
		t.Run(name, func(t *testing.T) {
			scheme, err := New(name)
			require.NoError(t, err)

			creds, err := scheme.Generate()
			require.NoError(t, err)

			a, err := scheme.DeriveDID(creds.Public)
			require.NoError(t, err)
			b, err := scheme.DeriveDID(creds.Public)
			require.NoError(t, err)

			assert.Equal(t, a, b)
			assert.True(t, strings.HasPrefix(a, "did:"))
		})
	}
}

func TestNew_UnknownScheme(t *testing.T) {
	_, err := New("rot13")
	assert.Error(t, err)
}

func TestSharedSecret(t *testing.T) {
	scheme := NewSharedSecret("demo")
	identity, creds := register(t, scheme)

	assert.Len(t, creds.Private, 64)
	assert.Len(t, creds.Public, 64)
	assert.Regexp(t, `^did:demo:[0-9a-f]{32}$`, identity.DID)

	// the challenge plays no part in the proof itself
	assert.NoError(t, scheme.Verify(identity, "anything", creds.Private))
	assert.ErrorIs(t, scheme.Verify(identity, "c1", creds.Private+"0"), core.ErrInvalidProof)
	assert.ErrorIs(t, scheme.Verify(identity, "c1", ""), core.ErrInvalidProof)

	stripped := *identity
	stripped.PrivateCredential = ""
	assert.ErrorIs(t, scheme.Verify(&stripped, "c1", ""), core.ErrInvalidProof)
}

func TestSharedSecret_KnownDID(t *testing.T) {
	scheme := NewSharedSecret("demo")

	// sha256("abc") = ba7816bf8f01cfea414140de5dae2223...
	did, err := scheme.DeriveDID("abc")
	require.NoError(t, err)
	assert.Equal(t, "did:demo:ba7816bf8f01cfea414140de5dae2223", did)

	_, err = scheme.DeriveDID("")
	assert.Error(t, err)
}

func TestEd25519(t *testing.T) {
	scheme := NewEd25519()
	identity, creds := register(t, scheme)

	assert.True(t, strings.HasPrefix(identity.DID, "did:key:z6Mk"), identity.DID)
	assert.True(t, strings.HasPrefix(creds.Public, "z"))
	assert.Empty(t, identity.PrivateCredential)

	proof, err := scheme.Prove(creds.Private, "c1")
	require.NoError(t, err)

	assert.ErrorIs(t, scheme.Verify(identity, "c2", proof), core.ErrInvalidProof)
	assert.ErrorIs(t, scheme.Verify(identity, "c1", "not base64!"), core.ErrInvalidProof)
	assert.ErrorIs(t, scheme.Verify(identity, "c1", "c2lnbmF0dXJl"), core.ErrInvalidProof)
	// the raw private credential is not a proof under a signature scheme
	assert.ErrorIs(t, scheme.Verify(identity, "c1", creds.Private), core.ErrInvalidProof)

	_, err = scheme.Prove("zz", "c1")
	assert.Error(t, err)
	_, err = scheme.DeriveDID("not-multibase")
	assert.Error(t, err)
}

func TestEIP191(t *testing.T) {
	scheme := NewEIP191(1)
	identity, creds := register(t, scheme)

	assert.Regexp(t, `^did:pkh:eip155:1:0x[0-9a-fA-F]{40}$`, identity.DID)
	assert.Empty(t, identity.PrivateCredential)

	proof, err := scheme.Prove(creds.Private, "c1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(proof, "0x"))

	assert.ErrorIs(t, scheme.Verify(identity, "c2", proof), core.ErrInvalidProof)
	assert.ErrorIs(t, scheme.Verify(identity, "c1", "0x1234"), core.ErrInvalidProof)
	assert.ErrorIs(t, scheme.Verify(identity, "c1", "signature"), core.ErrInvalidProof)
}

func TestEIP191_ChainInDID(t *testing.T) {
	creds, err := NewEIP191(1).Generate()
	require.NoError(t, err)

	did, err := NewEIP191(137).DeriveDID(creds.Public)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(did, "did:pkh:eip155:137:0x"), did)
}
