// Package temporal implements the bi-temporal index over sequence and
// taxonomy versions (spec §4.G): two sorted timelines, cross-references
// linking them, and the queries that select state at a point in time.
package temporal

import (
	"time"

	"talaria/hashid"
)

// SequenceVersionEntry is one point on the sequence timeline.
type SequenceVersionEntry struct {
	Tag           string
	Root          hashid.Hash
	Timestamp     time.Time
	SequenceCount int
	ChunkCount    int
}

// TaxonomyVersionEntry is one point on the taxonomy timeline.
type TaxonomyVersionEntry struct {
	Tag       string
	Root      hashid.Hash
	Timestamp time.Time
	NodeCount int
	Source    string
}

// CrossReference links one sequence version to one taxonomy version over a
// validity window. At most one cross-reference per pair is ever open
// (ValidityEnd == nil) at a time.
type CrossReference struct {
	SequenceVersion string
	TaxonomyVersion string
	CreatedAt       time.Time
	ValidityStart   time.Time
	ValidityEnd     *time.Time
	CrossHash       hashid.Hash
}

// Coordinate pins a lookup to an instant on each timeline independently.
type Coordinate struct {
	SequenceTime time.Time
	TaxonomyTime time.Time
}

// State is the materialized answer to get_state_at: the greatest-key-≤-t
// entry from each timeline, plus whichever cross-reference is active then.
type State struct {
	SequenceVersion *SequenceVersionEntry
	TaxonomyVersion *TaxonomyVersionEntry
	CrossReference  *CrossReference
}

// EventKind tags which timeline an Event came from.
type EventKind string

const (
	EventSequenceUpdate EventKind = "SequenceUpdate"
	EventTaxonomyUpdate EventKind = "TaxonomyUpdate"
	EventCrossReference EventKind = "CrossReference"
)

// Event is one interleaved timeline entry, as returned by get_timeline.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Sequence  *SequenceVersionEntry
	Taxonomy  *TaxonomyVersionEntry
	Cross     *CrossReference
}

// Timeline is a time-ordered run of Events across all three underlying
// streams.
type Timeline struct {
	Events []Event
}
