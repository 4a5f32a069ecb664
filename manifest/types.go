// Package manifest implements the top-level temporal manifest (spec §4.F):
// dual-format (.tal/.json) persistence, ETag derivation, and diffing.
package manifest

import (
	"time"

	"talaria/chunker"
	"talaria/hashid"
	"talaria/taxon"
)

// ChunkMetadata is one entry in a manifest's chunk index.
type ChunkMetadata struct {
	Hash           hashid.Hash `json:"hash" codec:"hash"`
	TaxonIDs       []taxon.ID  `json:"taxon_ids" codec:"taxon_ids"`
	SequenceCount  int         `json:"sequence_count" codec:"sequence_count"`
	Size           int64       `json:"size" codec:"size"`
	CompressedSize *int64      `json:"compressed_size,omitempty" codec:"compressed_size,omitempty"`
}

// CanonicalBytes implements merkle.Item: chunk index entries hash by their
// chunk hash, the quantity every other field is derived from.
func (c ChunkMetadata) CanonicalBytes() []byte { return c.Hash.Bytes() }

// FromChunkManifest projects a chunker.ChunkManifest down to the index
// entry a temporal manifest records.
func FromChunkManifest(cm chunker.ChunkManifest) ChunkMetadata {
	return ChunkMetadata{
		Hash:          cm.ChunkHash,
		TaxonIDs:      cm.TaxonIDs,
		SequenceCount: cm.SequenceCount,
		Size:          cm.TotalSize,
	}
}

// TemporalManifest is the top-level, content-addressed view over one
// sequence+taxonomy version pair (spec §3).
type TemporalManifest struct {
	Version            int             `json:"version" codec:"version"`
	CreatedAt          time.Time       `json:"created_at" codec:"created_at"`
	SequenceVersionTag string          `json:"sequence_version_tag" codec:"sequence_version_tag"`
	TaxonomyVersionTag string          `json:"taxonomy_version_tag" codec:"taxonomy_version_tag"`
	SequenceRoot       hashid.Hash     `json:"sequence_root" codec:"sequence_root"`
	TaxonomyRoot       hashid.Hash     `json:"taxonomy_root" codec:"taxonomy_root"`
	ChunkIndex         []ChunkMetadata `json:"chunk_index" codec:"chunk_index"`
	ETag               string          `json:"etag" codec:"etag"`
	PreviousVersion    *hashid.Hash    `json:"previous_version,omitempty" codec:"previous_version,omitempty"`
}

// Hash is the manifest's own content address, used to link PreviousVersion
// chains and as the manifest's identity in the temporal index.
func (m TemporalManifest) Hash() hashid.Hash {
	buf := make([]byte, 0, 64)
	buf = append(buf, m.SequenceRoot.Bytes()...)
	buf = append(buf, m.TaxonomyRoot.Bytes()...)
	buf = append(buf, []byte(m.SequenceVersionTag)...)
	buf = append(buf, []byte(m.TaxonomyVersionTag)...)
	return hashid.Sum(buf)
}
