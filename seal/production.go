package seal

import "errors"

// ErrNoKeystore is returned by NewProductionSigner when no keystore path is
// supplied. Unlike the teacher's debug build (which fell back to a
// deterministic key when wolfcrypt shims were unavailable), a production
// seal signer refuses to start rather than silently sealing proofs with a
// key nobody provisioned (Open Question decision 3).
var ErrNoKeystore = errors.New("seal: production signer requires a keystore path")

// ProductionSigner wraps a SoftwareSigner loaded from an operator-supplied
// keystore file. It exists only to make "no keystore configured" a
// construction-time error instead of a silent fallback.
type ProductionSigner struct {
	*SoftwareSigner
}

// NewProductionSigner loads the Ed25519 keypair at keystorePath. An empty
// path is always rejected.
func NewProductionSigner(keystorePath string) (*ProductionSigner, error) {
	if keystorePath == "" {
		return nil, ErrNoKeystore
	}
	s, err := LoadSoftwareSigner(keystorePath)
	if err != nil {
		return nil, err
	}
	return &ProductionSigner{SoftwareSigner: s}, nil
}
