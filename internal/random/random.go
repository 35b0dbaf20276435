// Package random produces the hex encoded randomness used for credentials and challenges.
package random

import (
	"crypto/rand"
	"encoding/hex"
)

// Hex returns n random bytes from crypto/rand, hex encoded
func Hex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
