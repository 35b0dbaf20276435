package ports

import "github.com/layer-3/didgate/core"

// SessionIssuer mints and validates stateless session tokens
type SessionIssuer interface {
	// Issue signs a login session for did
	Issue(did string) (*core.Session, error)
	// Validate checks signature, payload and expiry. Every failure is core.ErrUnauthorized.
	Validate(token string) (*core.Principal, error)
}
