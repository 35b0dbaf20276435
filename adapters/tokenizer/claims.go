package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the login session ones
type SessionClaims struct {
	jwt.RegisteredClaims
	DID     string `json:"did"`
	Purpose string `json:"purpose"`
}
