package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/internal/random"
	"github.com/layer-3/didgate/ports"
)

// DefaultChallengeTTL bounds how long a challenge stays answerable
const DefaultChallengeTTL = 5 * time.Minute

// challengeBytes is the amount of randomness in a challenge value
const challengeBytes = 16

// AuthService handles authentication business logic
type AuthService struct {
	identities ports.IdentityRegistry
	challenges ports.ChallengeStore
	scheme     ports.ProofScheme
	verifier   *Verifier
	sessions   ports.SessionIssuer
	eventPub   ports.EventPublisher
	clock      ports.Clock
	logger     *slog.Logger

	challengeTTL time.Duration
}

// Option configures an AuthService
type Option func(*AuthService)

// WithChallengeTTL overrides DefaultChallengeTTL. Zero disables challenge expiry.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *AuthService) { s.challengeTTL = ttl }
}

// WithClock overrides the wall clock
func WithClock(clock ports.Clock) Option {
	return func(s *AuthService) { s.clock = clock }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) { s.logger = logger }
}

// WithEventPublisher publishes auth events after each operation
func WithEventPublisher(pub ports.EventPublisher) Option {
	return func(s *AuthService) { s.eventPub = pub }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	store ports.Store,
	scheme ports.ProofScheme,
	sessions ports.SessionIssuer,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		identities:   store,
		challenges:   store,
		scheme:       scheme,
		verifier:     NewVerifier(scheme),
		sessions:     sessions,
		clock:        ports.SystemClock{},
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		challengeTTL: DefaultChallengeTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scheme returns the name of the configured proof scheme
func (s *AuthService) Scheme() string {
	return s.scheme.Name()
}

// Register mints a brand new identity. Every call yields an unrelated DID.
func (s *AuthService) Register(ctx context.Context) (*core.Registration, error) {
	creds, err := s.scheme.Generate()
	if err != nil {
		return nil, s.internal("register", "failed to generate credentials", err)
	}

	did, err := s.scheme.DeriveDID(creds.Public)
	if err != nil {
		return nil, s.internal("register", "failed to derive did", err)
	}

	identity := &core.Identity{
		DID:              did,
		PublicCredential: creds.Public,
		Scheme:           s.scheme.Name(),
		CreatedAt:        s.clock.Now().UTC(),
	}
	if s.scheme.RetainsPrivate() {
		identity.PrivateCredential = creds.Private
	}

	if err := s.identities.CreateIdentity(ctx, identity); err != nil {
		return nil, s.internal("register", "failed to store identity", err, "did", did)
	}

	s.logger.Info("identity registered", "did", did, "scheme", identity.Scheme)
	if s.eventPub != nil {
		if err := s.eventPub.PublishRegistered(ctx, did, identity.Scheme); err != nil {
			s.logger.Warn("failed to publish registration event", "did", did, "error", err)
		}
	}

	return &core.Registration{
		DID:               did,
		PublicCredential:  creds.Public,
		PrivateCredential: creds.Private,
		Scheme:            identity.Scheme,
	}, nil
}

// BeginLogin issues a fresh challenge for did, replacing any outstanding one
func (s *AuthService) BeginLogin(ctx context.Context, did string) (*core.Challenge, error) {
	if did == "" {
		return nil, fmt.Errorf("%w: did is required", core.ErrMissingParameters)
	}

	if _, err := s.lookup(ctx, "begin login", did); err != nil {
		return nil, err
	}

	value, err := random.Hex(challengeBytes)
	if err != nil {
		return nil, s.internal("begin login", "failed to generate challenge", err, "did", did)
	}

	now := s.clock.Now()
	challenge := &core.Challenge{
		DID:      did,
		Value:    value,
		IssuedAt: now,
	}
	if s.challengeTTL > 0 {
		challenge.ExpiresAt = now.Add(s.challengeTTL)
	}

	if err := s.challenges.PutChallenge(ctx, challenge); err != nil {
		return nil, s.internal("begin login", "failed to store challenge", err, "did", did)
	}

	s.logger.Debug("login challenge issued", "did", did, "expires_at", challenge.ExpiresAt)
	return challenge, nil
}

// CompleteLogin verifies the proof for the outstanding challenge and mints a session.
// Once the DID is known the challenge is consumed whatever the outcome, including a
// missing challenge or proof, so each BeginLogin allows exactly one attempt.
func (s *AuthService) CompleteLogin(ctx context.Context, did, challenge, proof string) (*core.Session, error) {
	if did == "" {
		return nil, fmt.Errorf("%w: did, challenge and proof are required", core.ErrMissingParameters)
	}

	identity, err := s.lookup(ctx, "complete login", did)
	if err != nil {
		return nil, err
	}

	stored, err := s.challenges.ConsumeChallenge(ctx, did)
	if err != nil && !errors.Is(err, core.ErrChallengeNotFound) {
		return nil, s.internal("complete login", "failed to consume challenge", err, "did", did)
	}

	if challenge == "" || proof == "" {
		return nil, s.rejected(ctx, did, fmt.Errorf("%w: challenge and proof are required", core.ErrMissingParameters))
	}
	if stored == nil {
		return nil, s.rejected(ctx, did, fmt.Errorf("%w for %s", core.ErrNoActiveChallenge, did))
	}

	if stored.Expired(s.clock.Now()) {
		return nil, s.rejected(ctx, did, fmt.Errorf("%w: challenge expired at %s",
			core.ErrNoActiveChallenge, stored.ExpiresAt.Format(time.RFC3339)))
	}

	if err := s.verifier.Verify(identity, stored, challenge, proof); err != nil {
		return nil, s.rejected(ctx, did, err)
	}

	session, err := s.sessions.Issue(did)
	if err != nil {
		return nil, s.internal("complete login", "failed to issue session", err, "did", did)
	}

	s.logger.Info("login succeeded", "did", did, "token_id", session.ID)
	if s.eventPub != nil {
		if err := s.eventPub.PublishLoginSucceeded(ctx, did, session.ID); err != nil {
			s.logger.Warn("failed to publish login event", "did", did, "error", err)
		}
	}

	return session, nil
}

// Authorize validates a session token and returns the caller. It never touches the stores.
func (s *AuthService) Authorize(ctx context.Context, token string) (*core.Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", core.ErrUnauthorized)
	}

	principal, err := s.sessions.Validate(token)
	if err != nil {
		s.logger.Debug("token rejected", "error", err)
		if !errors.Is(err, core.ErrUnauthorized) {
			err = fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
		}
		return nil, err
	}

	return principal, nil
}

func (s *AuthService) lookup(ctx context.Context, op string, did string) (*core.Identity, error) {
	identity, err := s.identities.GetIdentity(ctx, did)
	if errors.Is(err, core.ErrIdentityNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownDID, did)
	}
	if err != nil {
		return nil, s.internal(op, "failed to look up identity", err, "did", did)
	}
	return identity, nil
}

// rejected logs and publishes a failed login attempt and returns err unchanged
func (s *AuthService) rejected(ctx context.Context, did string, err error) error {
	kind := core.KindOf(err)
	s.logger.Info("login rejected", "did", did, "kind", kind, "error", err)
	if s.eventPub != nil {
		if pubErr := s.eventPub.PublishLoginFailed(ctx, did, string(kind)); pubErr != nil {
			s.logger.Warn("failed to publish login failure event", "did", did, "error", pubErr)
		}
	}
	return err
}

// internal logs the cause and returns an error that only exposes core.ErrInternal
func (s *AuthService) internal(op string, msg string, cause error, attrs ...any) error {
	s.logger.Error(msg, append([]any{"op", op, "error", cause}, attrs...)...)
	return fmt.Errorf("%s: %w", op, core.ErrInternal)
}
