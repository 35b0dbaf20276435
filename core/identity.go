package core

import "time"

// PurposeLogin marks session tokens minted by a successful login
const PurposeLogin = "login"

// Identity represents a registered DID and its credential material
type Identity struct {
	DID               string    // Decentralized identifier derived from the public credential
	PublicCredential  string    // Credential the client proves control of
	PrivateCredential string    // Only retained for schemes that compare secrets server-side
	Scheme            string    // Proof scheme that minted the identity
	CreatedAt         time.Time // When the identity was registered
}

// Credentials is a freshly generated credential pair
type Credentials struct {
	Public  string
	Private string
}

// Registration is what Register hands back to the caller.
// The private credential leaves the server exactly once, here.
type Registration struct {
	DID               string
	PublicCredential  string
	PrivateCredential string
	Scheme            string
}

// Challenge represents an outstanding login challenge for a DID
type Challenge struct {
	DID       string    // DID the challenge was issued for
	Value     string    // Random value the client has to echo or sign
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge stops being accepted
}

// Expired reports whether the challenge is no longer live at now
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Session represents an issued session token
type Session struct {
	ID        string    // Token identifier (jti)
	DID       string    // Authenticated DID
	Purpose   string    // Always PurposeLogin for tokens minted by CompleteLogin
	IssuedAt  time.Time // When the token was minted
	ExpiresAt time.Time // When the token stops being accepted
	Token     string    // Signed, encoded token
}

// Principal is the caller identity extracted from a valid session token
type Principal struct {
	DID     string
	Purpose string
}
