// Package reduction implements reference-based database reduction: picking
// a small representative subset of sequences and delta-encoding everything
// else against it (spec §4.J).
package reduction

import (
	"time"

	"talaria/delta"
	"talaria/hashid"
	"talaria/taxon"
)

// InputSequence is one sequence considered for reference selection.
type InputSequence struct {
	Hash    hashid.Hash
	Bytes   []byte
	TaxonID taxon.ID
}

// SelectionResult is a Selector's output: which sequences became
// references, and which child sequences each reference covers.
type SelectionResult struct {
	References []hashid.Hash
	Children   map[hashid.Hash][]hashid.Hash
	Discarded  map[hashid.Hash]bool
}

// Selector picks representative reference sequences from a candidate set
// (spec §4.J stage 2). targetRatio is advisory: AutoSelector ignores it.
type Selector interface {
	Select(sequences []InputSequence, targetRatio float64) SelectionResult
}

// DeltaChunkLimits bounds how CanonicalDeltas get grouped per reference
// (spec §4.J stage 3).
type DeltaChunkLimits struct {
	MaxChunkSize            int64
	MinSimilarityThreshold  float64
	TargetSequencesPerChunk int
	MaxDeltaOpsThreshold    int
}

// CanonicalDelta is one child sequence's delta against its assigned
// reference.
type CanonicalDelta struct {
	TargetHash hashid.Hash
	Delta      delta.Delta
	CreatedAt  time.Time
}

// DeltaChunk groups the deltas computed against a single reference
// sequence, plus aggregate stats (spec §4.J stage 3-4).
type DeltaChunk struct {
	ReferenceHash      hashid.Hash
	Deltas             []CanonicalDelta
	TotalSequences     int
	AverageCompression float64
	SpaceSaved         int64
}

// Statistics summarizes how much of the source database a reduction run
// covers (spec §4.J invariant iii).
type Statistics struct {
	OriginalSequences  int
	ReferenceSequences int
	ChildSequences     int
	// SequenceCoverage is (reference_sequences + child_sequences) /
	// original_sequences: the share of the source database accounted for
	// by either a reference or a delta against one. Sequences discarded as
	// exact duplicates of a reference are not double-counted here since
	// they are not distinct source sequences requiring their own coverage.
	SequenceCoverage float64
}

// ComputeStatistics derives coverage statistics from a completed selection,
// relative to the full candidate set the selector considered.
func ComputeStatistics(sel SelectionResult, originalSequences int) Statistics {
	childSequences := 0
	for _, children := range sel.Children {
		childSequences += len(children)
	}
	stats := Statistics{
		OriginalSequences:  originalSequences,
		ReferenceSequences: len(sel.References),
		ChildSequences:     childSequences,
	}
	if originalSequences > 0 {
		stats.SequenceCoverage = float64(stats.ReferenceSequences+stats.ChildSequences) / float64(originalSequences)
	}
	return stats
}

// Manifest records a completed reduction run: its parameters, the
// reference and delta chunk sets, and a combined Merkle root over both
// (spec §4.J stage 4).
type Manifest struct {
	ID                 string
	Database           string
	Profile            string
	CreatedAt          time.Time
	NoDeltas           bool
	MinSequenceLength  int
	SourceManifestHash hashid.Hash // content hash of the database manifest this reduction was derived from
	ReferenceChunks    []hashid.Hash // chunker-produced chunk hashes
	DeltaChunks        []DeltaChunk
	CombinedRoot       hashid.Hash
	Statistics         Statistics
}
