// Package query implements the bi-temporal query engine (spec §4.H):
// snapshot, diff, temporal-join, evolution, and retroactive-analysis
// queries composed over the manifest, temporal, and sequence layers.
package query

import (
	"talaria/hashid"
	"talaria/taxon"
	"talaria/temporal"
)

// SequenceResult is one sequence in a Snapshot's ordered result list.
type SequenceResult struct {
	CanonicalHash   hashid.Hash
	ChunkHash       hashid.Hash
	TaxonID         taxon.ID
	ChunkPosition   int // chunk_index position, for ordering
	PositionInChunk int
}

// SnapshotMetadata summarizes a Snapshot's contents.
type SnapshotMetadata struct {
	TotalSequences int
	TotalChunks    int
	UniqueTaxa     int
	SnapshotHash   hashid.Hash // SHA256(seq_root ‖ tax_root)
}

// Snapshot is the result of a point-in-time bi-temporal read (spec §4.H).
type Snapshot struct {
	Sequences       []SequenceResult
	SequenceVersion string
	TaxonomyVersion string
	Metadata        SnapshotMetadata
}

// DiffResult is the outcome of comparing two snapshots (spec §4.H Diff).
type DiffResult struct {
	Added             []hashid.Hash
	Removed           []hashid.Hash
	Modified          []hashid.Hash
	Reclassifications []Reclassification
}

// Reclassification records one sequence whose resolved taxon changed
// between two snapshots.
type Reclassification struct {
	CanonicalHash hashid.Hash
	OldTaxon      taxon.ID
	NewTaxon      taxon.ID
}

// ReclassifiedGroup is one (old_taxon, new_taxon) bucket of a temporal join.
type ReclassifiedGroup struct {
	OldTaxon  taxon.ID
	NewTaxon  taxon.ID
	Count     int
	Sequences []hashid.Hash
}

// TemporalJoinResult answers the temporal-join query (spec §4.H).
type TemporalJoinResult struct {
	Reclassified      []ReclassifiedGroup
	Stable            int
	TotalAffected     int
	TaxonomiesChanged []string
	ExecutionTimeMS   int64
}

// ConflictKind enumerates the ways a retroactive reclassification can fail
// to resolve cleanly (spec §4.H retroactive analysis).
type ConflictKind string

const (
	TaxonNoLongerExists       ConflictKind = "TaxonNoLongerExists"
	AmbiguousReclassification ConflictKind = "AmbiguousReclassification"
	ParentOnlyExists          ConflictKind = "ParentOnlyExists"
)

// ClassificationConflict is one sequence that could not be cleanly
// reclassified against a new taxonomy.
type ClassificationConflict struct {
	Kind          ConflictKind
	CanonicalHash hashid.Hash
	OldTaxon      taxon.ID
	Detail        string
}

// RetroactiveStatistics summarizes a retroactive analysis run.
type RetroactiveStatistics struct {
	TotalSequences int
	Reclassified   int
	ConflictCount  int
}

// RetroactiveResult answers the retroactive-analysis query (spec §4.H).
type RetroactiveResult struct {
	Reclassifications []Reclassification
	Conflicts         []ClassificationConflict
	Statistics        RetroactiveStatistics
}

// Event re-exports temporal.Event so callers of Evolution don't need to
// import the temporal package directly for the return type.
type Event = temporal.Event
