package reduction

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"talaria/delta"
	"talaria/hashid"
	"talaria/merkle"
)

// MaxDeltaDistance bounds the Myers search run per child sequence during
// delta encoding (spec §4.I/§4.J).
const MaxDeltaDistance = delta.DefaultMaxDistance

// ComputeDeltaChunks delta-encodes each selection's children against their
// reference, grouping the per-reference deltas and bounding each group by
// limits (spec §4.J stage 3). Children longer than maxAlignLength are
// omitted from deltas; the caller keeps such children as full sequences.
func ComputeDeltaChunks(sel SelectionResult, byHash map[hashid.Hash]InputSequence, maxAlignLength int, limits DeltaChunkLimits, now time.Time) []DeltaChunk {
	var chunks []DeltaChunk

	refs := append([]hashid.Hash(nil), sel.References...)
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })

	for _, ref := range refs {
		reference, ok := byHash[ref]
		if !ok {
			continue
		}
		children := sel.Children[ref]
		sort.Slice(children, func(i, j int) bool { return children[i].Less(children[j]) })

		var pending []CanonicalDelta
		var spaceSaved int64
		flush := func() {
			if len(pending) == 0 {
				return
			}
			chunks = append(chunks, buildDeltaChunk(ref, pending, len(children), spaceSaved))
			pending = nil
			spaceSaved = 0
		}

		for _, childHash := range children {
			child, ok := byHash[childHash]
			if !ok || len(child.Bytes) > maxAlignLength {
				continue
			}

			d := delta.ComputeDelta(reference.Bytes, child.Bytes, MaxDeltaDistance)
			if d.CompressionRatio >= limits.MinSimilarityThreshold || len(d.Ops) > limits.MaxDeltaOpsThreshold {
				continue // not worth storing as a delta
			}

			pending = append(pending, CanonicalDelta{TargetHash: childHash, Delta: d, CreatedAt: now})
			spaceSaved += int64(len(child.Bytes) - d.DeltaSize)

			groupSize := int64(0)
			for _, p := range pending {
				groupSize += int64(p.Delta.DeltaSize)
			}
			if groupSize >= limits.MaxChunkSize || len(pending) >= limits.TargetSequencesPerChunk {
				flush()
			}
		}
		flush()
	}

	return chunks
}

func buildDeltaChunk(ref hashid.Hash, deltas []CanonicalDelta, totalSequences int, spaceSaved int64) DeltaChunk {
	var sum float64
	for _, d := range deltas {
		sum += d.Delta.CompressionRatio
	}
	avg := 1.0
	if len(deltas) > 0 {
		avg = sum / float64(len(deltas))
	}
	return DeltaChunk{
		ReferenceHash:      ref,
		Deltas:             deltas,
		TotalSequences:     totalSequences,
		AverageCompression: avg,
		SpaceSaved:         spaceSaved,
	}
}

// deltaChunkItem adapts a DeltaChunk to merkle.Item so delta chunks can
// share the same combined-root computation as reference chunk hashes.
type deltaChunkItem struct{ hash hashid.Hash }

func (d deltaChunkItem) CanonicalBytes() []byte { return d.hash.Bytes() }

// hashItem adapts a bare hashid.Hash to merkle.Item.
type hashItem struct{ hash hashid.Hash }

func (h hashItem) CanonicalBytes() []byte { return h.hash.Bytes() }

// BuildManifest assembles a reduction Manifest, computing CombinedRoot
// over every reference chunk hash and delta chunk's reference hash (spec
// §4.J stage 4: "the reduction's own Merkle root, combined root over the
// two lists"). sourceManifestHash identifies the database manifest this
// reduction was computed against; stats carries the coverage figures from
// ComputeStatistics.
func BuildManifest(database, profile string, noDeltas bool, minSequenceLength int, sourceManifestHash hashid.Hash, referenceChunks []hashid.Hash, deltaChunks []DeltaChunk, stats Statistics, now time.Time) Manifest {
	items := make([]merkle.Item, 0, len(referenceChunks)+len(deltaChunks))
	for _, h := range referenceChunks {
		items = append(items, hashItem{hash: h})
	}
	for _, dc := range deltaChunks {
		items = append(items, deltaChunkItem{hash: dc.ReferenceHash})
	}

	var root hashid.Hash
	if len(items) > 0 {
		root = merkle.BuildFromItems(items).RootHash()
	}

	return Manifest{
		ID:                 uuid.NewString(),
		Database:           database,
		Profile:            profile,
		CreatedAt:          now,
		NoDeltas:           noDeltas,
		MinSequenceLength:  minSequenceLength,
		SourceManifestHash: sourceManifestHash,
		ReferenceChunks:    referenceChunks,
		DeltaChunks:        deltaChunks,
		CombinedRoot:       root,
		Statistics:         stats,
	}
}
