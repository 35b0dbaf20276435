package proof

import (
	"fmt"

	"github.com/layer-3/didgate/ports"
)

// Schemes lists the scheme names accepted by New
var Schemes = []string{SchemeSharedSecret, SchemeEd25519, SchemeEIP191}

// New returns the scheme registered under name
func New(name string) (ports.ProofScheme, error) {
	switch name {
	case SchemeSharedSecret:
		return NewSharedSecret("demo"), nil
	case SchemeEd25519:
		return NewEd25519(), nil
	case SchemeEIP191:
		return NewEIP191(1), nil
	default:
		return nil, fmt.Errorf("unknown proof scheme %q", name)
	}
}
