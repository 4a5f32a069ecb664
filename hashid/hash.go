// Package hashid defines the 32-byte content-hash type shared by every
// addressable entity in the repository (chunks, canonical sequences,
// manifests, Merkle nodes).
package hashid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Hash is a SHA-256 digest. The zero value is the "not-yet-computed" / empty
// collection sentinel (spec §3).
type Hash [32]byte

// Zero is the sentinel denoting "not-yet-computed" or "root of empty collection".
var Zero Hash

// Sum computes the content hash of b.
func Sum(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// IsZero reports whether h is the sentinel zero hash.
func (h Hash) IsZero() bool { return h == Zero }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a defensive copy of the digest bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, len(h))
	copy(out, h[:])
	return out
}

// Less provides the deterministic lexicographic ordering used for chunk
// index and Merkle leaf ordering (spec §4.D, §5).
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// Parse decodes a hex-encoded hash, rejecting any length but 64 hex chars.
func Parse(s string) (Hash, error) {
	var out Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("hashid: invalid hex: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("hashid: expected %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// MustParse is Parse but panics on error; intended for tests and constants.
func MustParse(s string) Hash {
	h, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return h
}

// MarshalText implements encoding.TextMarshaler so Hash round-trips through
// JSON/YAML as its hex string.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// SortHashes returns a sorted copy of hs (ascending, lexicographic).
func SortHashes(hs []Hash) []Hash {
	out := make([]Hash, len(hs))
	copy(out, hs)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
