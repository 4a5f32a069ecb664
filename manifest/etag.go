package manifest

import (
	"encoding/hex"
	"time"

	"talaria/hashid"
)

// ComputeETag derives the weak validator for a manifest from its two Merkle
// roots. Ordering follows the external-interface contract (sequence_root
// then taxonomy_root), since that is the byte order a client computing its
// own ETag from a response's headers would reproduce. Only the first 8
// bytes (16 hex chars) of the digest are used (spec §4.F, §6).
func ComputeETag(sequenceRoot, taxonomyRoot hashid.Hash) string {
	buf := make([]byte, 0, 64)
	buf = append(buf, sequenceRoot.Bytes()...)
	buf = append(buf, taxonomyRoot.Bytes()...)
	digest := hashid.Sum(buf)
	return `W/"` + hex.EncodeToString(digest.Bytes()[:8]) + `"`
}

// CreateFromChunks assembles a new TemporalManifest from a chunking run's
// output and the two current Merkle roots, stamping its ETag and linking it
// to the prior manifest version if one exists. version is the caller-tracked
// sequence number for this sequence+taxonomy version pair.
func CreateFromChunks(chunkMeta []ChunkMetadata, sequenceRoot, taxonomyRoot hashid.Hash, sequenceVersionTag, taxonomyVersionTag string, version int, createdAt time.Time, previous *hashid.Hash) TemporalManifest {
	m := TemporalManifest{
		Version:            version,
		CreatedAt:          createdAt,
		SequenceVersionTag: sequenceVersionTag,
		TaxonomyVersionTag: taxonomyVersionTag,
		SequenceRoot:       sequenceRoot,
		TaxonomyRoot:       taxonomyRoot,
		ChunkIndex:         chunkMeta,
		PreviousVersion:    previous,
	}
	m.ETag = ComputeETag(sequenceRoot, taxonomyRoot)
	return m
}

