package chunker

import "talaria/taxon"

// Policy is how the special-taxa post-pass treats chunks for one taxon.
type Policy struct {
	Kind PolicyKind
	Rank string // only meaningful when Kind == GroupAtLevel
}

type PolicyKind string

const (
	OwnChunks         PolicyKind = "OwnChunks"
	GroupWithSiblings PolicyKind = "GroupWithSiblings"
	GroupAtLevel      PolicyKind = "GroupAtLevel"
)

// SpecialTaxon pairs a taxon with the policy governing its chunks.
type SpecialTaxon struct {
	Taxon  taxon.ID
	Policy Policy
}

// Config parameterizes chunk packing and the special-taxa post-pass
// (spec §4.E). It is typically loaded from YAML alongside the rest of the
// repository's configuration.
type Config struct {
	TargetChunkSize      int64          `yaml:"target_chunk_size"`
	MaxChunkSize         int64          `yaml:"max_chunk_size"`
	MinSequencesPerChunk int            `yaml:"min_sequences_per_chunk"`
	TaxonomicCoherence   bool           `yaml:"taxonomic_coherence"`
	SpecialTaxa          []SpecialTaxon `yaml:"-"` // set programmatically; taxon ids aren't stable YAML scalars here

	// SpecialTaxaBailoutThreshold skips the special-taxa post-pass when the
	// pre-pass chunk count exceeds it, to avoid quadratic merge behavior.
	SpecialTaxaBailoutThreshold int `yaml:"special_taxa_bailout_threshold"`
}

// DefaultConfig returns the packing defaults used when the repository has
// no override on disk.
func DefaultConfig() Config {
	return Config{
		TargetChunkSize:             64 * 1024 * 1024,
		MaxChunkSize:                128 * 1024 * 1024,
		MinSequencesPerChunk:        100,
		TaxonomicCoherence:          true,
		SpecialTaxaBailoutThreshold: 1000,
	}
}
