package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/didgate/adapters/proof"
	"github.com/layer-3/didgate/adapters/store"
	"github.com/layer-3/didgate/adapters/tokenizer"
	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/ports"
	"github.com/layer-3/didgate/service"
	api "github.com/layer-3/didgate/transport/http"
)

func newServer(t *testing.T, scheme ports.ProofScheme) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore(store.DefaultChallengeCapacity, ports.SystemClock{})
	tok, err := tokenizer.NewJWTTokenizer([]byte("client-test-secret-0123456789"))
	require.NoError(t, err)

	svc := service.NewAuthService(st, scheme, tok)
	srv := httptest.NewServer(api.SetupRouter(svc, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SignUpLoginMe(t *testing.T) {
	for _, name := range proof.Schemes {
		t.Run(name, func(t *testing.T) {
			scheme, err := proof.New(name)
			require.NoError(t, err)

			srv := newServer(t, scheme)
			c := New(srv.URL+"/", scheme, WithHTTPClient(srv.Client()))
			ctx := context.Background()

			reg, err := c.SignUp(ctx)
			require.NoError(t, err)
			assert.Equal(t, name, reg.Scheme)
			assert.Equal(t, reg.DID, c.DID())
			assert.Empty(t, c.Token())

			session, err := c.Login(ctx)
			require.NoError(t, err)
			assert.Equal(t, reg.DID, session.DID)
			assert.Equal(t, session.Token, c.Token())
			assert.Equal(t, tokenizer.DefaultSessionTTL, session.ExpiresAt.Sub(session.IssuedAt))

			me, err := c.Me(ctx)
			require.NoError(t, err)
			assert.Equal(t, &core.Principal{DID: reg.DID, Purpose: core.PurposeLogin}, me)
		})
	}
}

func TestClient_LoginWithoutIdentity(t *testing.T) {
	scheme := proof.NewSharedSecret("demo")
	c := New(newServer(t, scheme).URL, scheme)

	_, err := c.Login(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = c.Me(context.Background())
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestClient_ErrorsCarryKind(t *testing.T) {
	scheme := proof.NewSharedSecret("demo")
	srv := newServer(t, scheme)
	ctx := context.Background()

	c := New(srv.URL, scheme)
	c.SetIdentity("did:demo:unregistered", "secret")

	_, err := c.Login(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownDID)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, core.KindUnknownDID, apiErr.Kind)
	assert.Equal(t, "DID not registered", apiErr.Message)
}

func TestClient_WrongKey(t *testing.T) {
	scheme := proof.NewSharedSecret("demo")
	srv := newServer(t, scheme)
	ctx := context.Background()

	c := New(srv.URL, scheme)
	reg, err := c.SignUp(ctx)
	require.NoError(t, err)

	c.SetIdentity(reg.DID, "not-my-key")
	_, err = c.Login(ctx)
	assert.ErrorIs(t, err, core.ErrInvalidProof)
	assert.Empty(t, c.Token())
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, proof.NewSharedSecret("demo")).SignUp(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.ErrorIs(t, err, core.ErrInternal)
}
