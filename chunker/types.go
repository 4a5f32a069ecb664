// Package chunker groups canonical sequence hashes into size-bounded,
// taxonomy-coherent chunk manifests (spec §4.E).
package chunker

import (
	"sort"
	"time"

	"talaria/hashid"
	"talaria/taxon"
)

// ChunkType distinguishes how a chunk's sequences are stored.
type ChunkType string

const (
	Full      ChunkType = "Full"
	Reference ChunkType = "Reference"
	Delta     ChunkType = "Delta"
)

// ChunkManifest is the content-addressed description of one chunk (spec §3).
type ChunkManifest struct {
	ChunkHash       hashid.Hash
	SequenceRefs    []hashid.Hash
	TaxonIDs        []taxon.ID
	ChunkType       ChunkType
	TotalSize       int64
	SequenceCount   int
	CreatedAt       time.Time
	TaxonomyVersion string
	SequenceVersion string
}

// CanonicalBytes implements merkle.Item so chunk indices can be folded into
// a Merkle tree directly.
func (m ChunkManifest) CanonicalBytes() []byte {
	return m.ChunkHash.Bytes()
}

// ComputeHash derives chunk_hash = SHA256(sorted(sequence_refs) ‖ taxon_ids
// ‖ version fields), per spec §3. This is a pre-serialization identity for
// grouping and determinism checks during packing, before a manifest has any
// bytes to be content-addressed by; Persist is what assigns the manifest's
// final, chunk-store-resolvable ChunkHash once it's encoded.
func ComputeHash(refs []hashid.Hash, taxonIDs []taxon.ID, chunkType ChunkType, taxonomyVersion, sequenceVersion string) hashid.Hash {
	sortedRefs := hashid.SortHashes(refs)
	sortedTaxa := append([]taxon.ID(nil), taxonIDs...)
	sort.Slice(sortedTaxa, func(i, j int) bool { return sortedTaxa[i] < sortedTaxa[j] })

	buf := make([]byte, 0, len(sortedRefs)*32+len(sortedTaxa)*4+64)
	for _, r := range sortedRefs {
		buf = append(buf, r.Bytes()...)
	}
	for _, t := range sortedTaxa {
		buf = append(buf, byte(t>>24), byte(t>>16), byte(t>>8), byte(t))
	}
	buf = append(buf, []byte(string(chunkType))...)
	buf = append(buf, []byte(taxonomyVersion)...)
	buf = append(buf, []byte(sequenceVersion)...)
	return hashid.Sum(buf)
}

// Sequence is one input item offered to the chunker for enrichment and
// canonical storage.
type Sequence struct {
	Bytes          []byte
	Header         string
	Accession      string
	ExplicitTaxon  *taxon.ID
	SourceDatabase string
}

// EstimatedBytesPerReference approximates a reference's contribution to a
// chunk's serialized size for packing decisions (spec §4.E step 4).
const EstimatedBytesPerReference = 1000
