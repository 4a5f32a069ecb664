package sequence

import (
	"time"

	"talaria/hashid"
	"talaria/taxon"
)

// Kind classifies the residue alphabet of a canonical sequence.
type Kind string

const (
	DNA     Kind = "DNA"
	Protein Kind = "Protein"
	Unknown Kind = "Unknown"
)

// CanonicalSequence is the deduplicated, content-addressed sequence record
// (spec §3). It is created once per distinct normalized byte string and
// never mutated except for LastSeen.
type CanonicalSequence struct {
	SequenceHash hashid.Hash
	Bytes        []byte
	Length       int
	Kind         Kind
	Checksum     string // hex blake2b-256 of the normalized bytes
	FirstSeen    time.Time
	LastSeen     time.Time
}

// Representation is one source's view of a canonical sequence: its
// accession(s), description, and taxon under that source (spec §3).
type Representation struct {
	CanonicalHash  hashid.Hash
	Accessions     []string
	Description    string
	TaxonID        taxon.ID
	SourceDatabase string
	FirstSeen      time.Time
}

// hasAccessionFromSource reports whether this representation already
// records accession under the same source — the uniqueness key the store
// uses to make representation adds idempotent (spec §4.B invariant).
func (r Representation) hasAccessionFromSource(accession, source string) bool {
	if r.SourceDatabase != source {
		return false
	}
	for _, a := range r.Accessions {
		if a == accession {
			return true
		}
	}
	return false
}

// BatchItem is one input to StoreSequencesBatch.
type BatchItem struct {
	Bytes  []byte
	Header string
	Source string
}

// BatchResult is the per-item outcome of a batch store, in input order.
type BatchResult struct {
	Hash  hashid.Hash
	IsNew bool
	Err   error
}
