package sequence

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// normalize strips whitespace and upper-cases letters so that two inputs
// differing only in line wrapping or case hash identically (spec §3
// invariant iii).
func normalize(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return out
}

var (
	dnaAlphabet     = buildAlphabet("ACGTNU")
	proteinOnlyAA   = buildAlphabet("EFILPQZ") // letters that never appear in nucleotide codes
	proteinAlphabet = buildAlphabet("ACDEFGHIKLMNPQRSTVWYXBZJUO*")
)

func buildAlphabet(letters string) [256]bool {
	var a [256]bool
	for _, c := range letters {
		a[c] = true
	}
	return a
}

// classifyKind guesses the residue alphabet of normalized bytes. It is a
// best-effort heuristic, not a validator: any byte outside both alphabets
// downgrades the whole sequence to Unknown.
func classifyKind(normalized []byte) Kind {
	if len(normalized) == 0 {
		return Unknown
	}
	sawProteinOnly := false
	for _, c := range normalized {
		switch {
		case dnaAlphabet[c]:
			continue
		case proteinOnlyAA[c]:
			sawProteinOnly = true
		case proteinAlphabet[c]:
			continue
		default:
			return Unknown
		}
	}
	if sawProteinOnly {
		return Protein
	}
	return DNA
}

// checksum computes the hex blake2b-256 digest of normalized bytes, used as
// a secondary fast-compare alongside the cryptographic sequence_hash.
func checksum(normalized []byte) string {
	sum := blake2b.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}
