// Package merkle builds and verifies the binary Merkle tree used over
// ordered hashable items (chunk indices, taxonomy nodes): spec §4.D.
package merkle

import (
	"crypto/sha256"

	"talaria/hashid"
)

const (
	leafTag = 0x00
	nodeTag = 0x01
)

// Item is anything that can be placed at a Merkle leaf.
type Item interface {
	// CanonicalBytes returns the exact bytes hashed to form this item's leaf.
	CanonicalBytes() []byte
}

// DAG is an ordered Merkle tree. Leaves keep caller-supplied order; the
// caller is responsible for sorting deterministically (spec §5 Ordering
// guarantees — typically lexicographic on item hash).
type DAG struct {
	leaves []hashid.Hash
	levels [][]hashid.Hash // levels[0] = leaf hashes, levels[len-1] = [root]
}

func leafHash(item Item) hashid.Hash {
	buf := make([]byte, 0, 1+len(item.CanonicalBytes()))
	buf = append(buf, leafTag)
	buf = append(buf, item.CanonicalBytes()...)
	return hashid.Hash(sha256.Sum256(buf))
}

func nodeHash(left, right hashid.Hash) hashid.Hash {
	buf := make([]byte, 0, 1+64)
	buf = append(buf, nodeTag)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return hashid.Hash(sha256.Sum256(buf))
}

// LeafHash returns the tagged leaf hash for item, the same value a DAG
// built over a slice containing item would assign it. Exposed so callers
// holding a single item (e.g. a proof lookup key) can compute the hash
// GenerateProofByHash expects without rebuilding a full item slice.
func LeafHash(item Item) hashid.Hash { return leafHash(item) }

// BuildFromItems constructs a DAG over items in the order given.
func BuildFromItems(items []Item) *DAG {
	leaves := make([]hashid.Hash, len(items))
	for i, it := range items {
		leaves[i] = leafHash(it)
	}
	return buildFromLeafHashes(leaves)
}

// BuildFromLeafHashes constructs a DAG directly from precomputed leaf
// hashes (e.g. already-hashed chunk references), in the order given.
func BuildFromLeafHashes(leaves []hashid.Hash) *DAG {
	cp := make([]hashid.Hash, len(leaves))
	copy(cp, leaves)
	return buildFromLeafHashes(cp)
}

func buildFromLeafHashes(leaves []hashid.Hash) *DAG {
	d := &DAG{leaves: leaves}
	if len(leaves) == 0 {
		d.levels = [][]hashid.Hash{{hashid.Zero}}
		return d
	}

	level := make([]hashid.Hash, len(leaves))
	copy(level, leaves)
	d.levels = append(d.levels, level)

	for len(level) > 1 {
		next := make([]hashid.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); {
			if i == len(level)-1 {
				// Odd-fan-out: duplicate the last node forward (spec §4.D).
				next = append(next, level[i])
				i++
				continue
			}
			next = append(next, nodeHash(level[i], level[i+1]))
			i += 2
		}
		level = next
		d.levels = append(d.levels, level)
	}
	return d
}

// RootHash returns the Merkle root. For an empty item set this is the zero
// hash sentinel (spec §3, §8 boundary behaviors).
func (d *DAG) RootHash() hashid.Hash {
	if d == nil || len(d.levels) == 0 {
		return hashid.Zero
	}
	top := d.levels[len(d.levels)-1]
	return top[0]
}

// ProofStep is one sibling hash plus which side it sits on.
type ProofStep struct {
	Sibling       hashid.Hash
	SiblingOnLeft bool
}

// Proof is the sibling path from a leaf to the root.
type Proof struct {
	LeafHash hashid.Hash
	Steps    []ProofStep
}

// GenerateProofByHash returns the sibling path for the given leaf hash, or
// false if it is not present.
func (d *DAG) GenerateProofByHash(leaf hashid.Hash) (Proof, bool) {
	idx := -1
	for i, h := range d.leaves {
		if h == leaf {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Proof{}, false
	}

	proof := Proof{LeafHash: leaf}
	pos := idx
	for level := 0; level < len(d.levels)-1; level++ {
		cur := d.levels[level]
		isRightChild := pos%2 == 1
		var siblingIdx int
		if isRightChild {
			siblingIdx = pos - 1
		} else {
			siblingIdx = pos + 1
			if siblingIdx >= len(cur) {
				// Odd carry: sibling is "self", so this level contributes no
				// real step — same effect as the carried-forward hash.
				pos = pos / 2
				continue
			}
		}
		proof.Steps = append(proof.Steps, ProofStep{
			Sibling:       cur[siblingIdx],
			SiblingOnLeft: isRightChild,
		})
		pos = pos / 2
	}
	return proof, true
}

// VerifyProof recomputes the root from proof and reports whether it equals
// expectedRoot.
func VerifyProof(proof Proof, expectedRoot hashid.Hash) bool {
	cur := proof.LeafHash
	for _, step := range proof.Steps {
		if step.SiblingOnLeft {
			cur = nodeHash(step.Sibling, cur)
		} else {
			cur = nodeHash(cur, step.Sibling)
		}
	}
	return cur == expectedRoot
}

// SerializedNode is one row of the flattened node list used for inclusion
// in a manifest (spec §4.D serialize/deserialize).
type SerializedNode struct {
	Level int
	Index int
	Hash  hashid.Hash
}

// Serialize flattens the DAG's levels into an ordered node list.
func (d *DAG) Serialize() []SerializedNode {
	var out []SerializedNode
	for level, hashes := range d.levels {
		for idx, h := range hashes {
			out = append(out, SerializedNode{Level: level, Index: idx, Hash: h})
		}
	}
	return out
}

// Deserialize reconstructs a DAG from a previously serialized node list.
// The leaf level (level 0) is required; intermediate levels are
// recomputed-compatible with Serialize's output but not re-derived, so the
// stored tree is trusted as-is (callers needing tamper-evidence should
// recompute from the chunk_index and compare RootHash instead).
func Deserialize(nodes []SerializedNode) *DAG {
	maxLevel := 0
	for _, n := range nodes {
		if n.Level > maxLevel {
			maxLevel = n.Level
		}
	}
	levels := make([][]hashid.Hash, maxLevel+1)
	for _, n := range nodes {
		for len(levels[n.Level]) <= n.Index {
			levels[n.Level] = append(levels[n.Level], hashid.Zero)
		}
		levels[n.Level][n.Index] = n.Hash
	}
	return &DAG{leaves: levels[0], levels: levels}
}
