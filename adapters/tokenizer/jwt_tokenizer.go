package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/ports"
)

const AudienceSession = "session:access"

// DefaultSessionTTL is the lifetime of a login session token
const DefaultSessionTTL = time.Hour

// MinSecretLength is the shortest HMAC secret accepted
const MinSecretLength = 16

var ErrWeakSecret = errors.New("jwt secret too short")

// JWTTokenizer implements the SessionIssuer interface using HS256 JWTs
type JWTTokenizer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  ports.Clock
}

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithIssuer sets the iss claim, which is then required on validation
func WithIssuer(issuer string) Option {
	return func(j *JWTTokenizer) { j.issuer = issuer }
}

// WithTTL overrides DefaultSessionTTL
func WithTTL(ttl time.Duration) Option {
	return func(j *JWTTokenizer) { j.ttl = ttl }
}

// WithClock overrides the wall clock used for iat, exp and validation
func WithClock(clock ports.Clock) Option {
	return func(j *JWTTokenizer) { j.clock = clock }
}

// NewJWTTokenizer creates a new JWT tokenizer signing with secret
func NewJWTTokenizer(secret []byte, opts ...Option) (*JWTTokenizer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakSecret, MinSecretLength)
	}

	j := &JWTTokenizer{
		secret: secret,
		ttl:    DefaultSessionTTL,
		clock:  ports.SystemClock{},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Issue mints a login session token for did
func (j *JWTTokenizer) Issue(did string) (*core.Session, error) {
	now := j.clock.Now()
	session := &core.Session{
		ID:        uuid.New().String(),
		DID:       did,
		Purpose:   core.PurposeLogin,
		IssuedAt:  now,
		ExpiresAt: now.Add(j.ttl),
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   did,
			ID:        session.ID,
			Issuer:    j.issuer,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		DID:     did,
		Purpose: core.PurposeLogin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	session.Token = signedToken

	return session, nil
}

// Validate parses a session token. Every failure collapses into core.ErrUnauthorized;
// the wrapped detail is for logs only.
func (j *JWTTokenizer) Validate(tokenStr string) (*core.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithAudience(AudienceSession),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.clock.Now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, core.ErrUnauthorized
	}

	if claims.DID == "" || claims.DID != claims.Subject {
		return nil, fmt.Errorf("%w: did claim missing or inconsistent", core.ErrUnauthorized)
	}
	if claims.Purpose != core.PurposeLogin {
		return nil, fmt.Errorf("%w: unexpected purpose %q", core.ErrUnauthorized, claims.Purpose)
	}

	return &core.Principal{DID: claims.DID, Purpose: claims.Purpose}, nil
}
