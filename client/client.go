// Package client talks to a didgate server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/ports"
	api "github.com/layer-3/didgate/transport/http"
)

// ErrNoIdentity is returned by Login before SignUp or SetIdentity
var ErrNoIdentity = errors.New("no DID or private key, sign up first")

// APIError is a non-2xx response. It unwraps to the matching core boundary error.
type APIError struct {
	Status  int
	Kind    core.Kind
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("didgate: %d %s: %s", e.Status, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Kind.Err()
}

// Client holds one identity and its latest session token
type Client struct {
	baseURL    string
	httpClient *http.Client
	scheme     ports.ProofScheme

	mu      sync.RWMutex
	did     string
	private string
	token   string
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which times out after 10s
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a client for the server at baseURL (e.g. http://localhost:9000).
// scheme must match the server's configured proof scheme.
func New(baseURL string, scheme ports.ProofScheme, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		scheme:     scheme,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetIdentity restores a previously registered identity
func (c *Client) SetIdentity(did, privateCredential string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.did, c.private, c.token = did, privateCredential, ""
}

// DID returns the current identity, empty before SignUp or SetIdentity
func (c *Client) DID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.did
}

// Token returns the session token from the last successful Login
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SignUp registers a new identity and keeps its credentials
func (c *Client) SignUp(ctx context.Context) (*core.Registration, error) {
	var resp api.SignupResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", nil, "", &resp); err != nil {
		return nil, err
	}

	c.SetIdentity(resp.DID, resp.PrivateKey)

	return &core.Registration{
		DID:               resp.DID,
		PublicCredential:  resp.PublicKey,
		PrivateCredential: resp.PrivateKey,
		Scheme:            resp.Scheme,
	}, nil
}

// Login runs the challenge-response exchange and keeps the session token
func (c *Client) Login(ctx context.Context) (*core.Session, error) {
	c.mu.RLock()
	did, private := c.did, c.private
	c.mu.RUnlock()

	if did == "" || private == "" {
		return nil, ErrNoIdentity
	}

	var challenge api.ChallengeResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login-challenge", api.ChallengeRequest{DID: did}, "", &challenge); err != nil {
		return nil, fmt.Errorf("login challenge: %w", err)
	}

	proof, err := c.scheme.Prove(private, challenge.Challenge)
	if err != nil {
		return nil, fmt.Errorf("prove challenge: %w", err)
	}

	var verified api.VerifyResponse
	req := api.VerifyRequest{DID: did, Challenge: challenge.Challenge, Proof: proof}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login-verify", req, "", &verified); err != nil {
		return nil, fmt.Errorf("login verify: %w", err)
	}

	c.mu.Lock()
	c.token = verified.Token
	c.mu.Unlock()

	now := time.Now()
	return &core.Session{
		DID:       verified.DID,
		Purpose:   core.PurposeLogin,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(verified.ExpiresIn) * time.Second),
		Token:     verified.Token,
	}, nil
}

// Me returns the caller behind the current session token
func (c *Client) Me(ctx context.Context) (*core.Principal, error) {
	token := c.Token()
	if token == "" {
		return nil, core.ErrUnauthorized
	}

	var me api.MeResponse
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, token, &me); err != nil {
		return nil, err
	}
	return &core.Principal{DID: me.DID, Purpose: me.Purpose}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Kind: core.KindInternal, Message: resp.Status}
		var payload api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Kind != "" {
			apiErr.Kind = payload.Kind
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
