package seal

import (
	"crypto/ed25519"
	"fmt"
)

// SoftwareSigner is a real, always-available Ed25519 signer backed by an
// in-memory key. It is suitable for development and for any environment
// that does not require a persisted, operator-provisioned key (Open
// Question decision 3: the dev/default path never silently substitutes a
// deterministic debug key — every SoftwareSigner holds a genuinely random
// key unless one is explicitly loaded or supplied).
type SoftwareSigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewSoftwareSigner generates a fresh random Ed25519 keypair.
func NewSoftwareSigner() (*SoftwareSigner, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("seal: generate key: %w", err)
	}
	return &SoftwareSigner{pub: pub, priv: priv}, nil
}

// NewSoftwareSignerFromKey wraps an already-materialized keypair, e.g. one
// derived deterministically in a test.
func NewSoftwareSignerFromKey(pub ed25519.PublicKey, priv ed25519.PrivateKey) (*SoftwareSigner, error) {
	if len(pub) != ed25519.PublicKeySize || len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("seal: malformed ed25519 keypair")
	}
	return &SoftwareSigner{pub: pub, priv: priv}, nil
}

// LoadSoftwareSigner reads a keypair from an on-disk keystore written by
// SaveTo.
func LoadSoftwareSigner(path string) (*SoftwareSigner, error) {
	pub, priv, err := readKeyStore(path)
	if err != nil {
		return nil, err
	}
	return &SoftwareSigner{pub: pub, priv: priv}, nil
}

// SaveTo persists s's keypair to an on-disk keystore. The file is written
// with owner-only permissions, but the format is plaintext — this is the
// dev/software path, not a production key-management story.
func (s *SoftwareSigner) SaveTo(path string) error {
	return writeKeyStore(path, s.pub, s.priv)
}

// Sign produces an Ed25519 signature over message.
func (s *SoftwareSigner) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, message), nil
}

// PublicKey returns the signer's public key, for verification.
func (s *SoftwareSigner) PublicKey() ed25519.PublicKey { return s.pub }
