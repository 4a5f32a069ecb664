// Package seal signs and verifies the cryptographic seals attached to
// temporal proofs (spec §4.G generate_temporal_proof, Design Notes Open
// Question 3). The pluggable-provider shape follows the teacher's
// crypto.CryptoProvider interface, generalized from a consensus-signature
// backend to a single Ed25519 seal.
package seal

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Signer is the minimal capability a temporal proof needs to be sealed.
// talaria/temporal.Signer is satisfied structurally by this interface.
type Signer interface {
	Sign(message []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// Verify checks a seal produced by any Signer against a public key.
func Verify(pub ed25519.PublicKey, message, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, message, signature)
}

// keyStoreV1 is the on-disk keystore format, modeled on the teacher's
// KeyStoreV1 (node/keymgr.go) but narrowed to one Ed25519 keypair per file.
type keyStoreV1 struct {
	Version       string `json:"version"` // "TALSEALv1"
	PublicKeyHex  string `json:"public_key_hex"`
	PrivateKeyHex string `json:"private_key_hex"`
}

const keyStoreVersion = "TALSEALv1"

func writeKeyStore(path string, pub ed25519.PublicKey, priv ed25519.PrivateKey) error {
	ks := keyStoreV1{
		Version:       keyStoreVersion,
		PublicKeyHex:  hex.EncodeToString(pub),
		PrivateKeyHex: hex.EncodeToString(priv),
	}
	b, err := json.Marshal(ks)
	if err != nil {
		return fmt.Errorf("seal: marshal keystore: %w", err)
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o600)
}

func readKeyStore(path string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided keystore path
	if err != nil {
		return nil, nil, fmt.Errorf("seal: read keystore: %w", err)
	}
	var ks keyStoreV1
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, nil, fmt.Errorf("seal: parse keystore: %w", err)
	}
	if ks.Version != keyStoreVersion {
		return nil, nil, fmt.Errorf("seal: unsupported keystore version %q", ks.Version)
	}
	pub, err := hex.DecodeString(ks.PublicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("seal: invalid public_key_hex in keystore")
	}
	priv, err := hex.DecodeString(ks.PrivateKeyHex)
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		return nil, nil, fmt.Errorf("seal: invalid private_key_hex in keystore")
	}
	return ed25519.PublicKey(pub), ed25519.PrivateKey(priv), nil
}
