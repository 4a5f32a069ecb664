package reduction

import (
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// LogSummary writes a one-line summary of a completed reduction to log,
// in the same Info-with-fields shape the rest of the repository uses for
// end-of-operation reporting.
func (m Manifest) LogSummary(log zerolog.Logger) {
	var saved int64
	var deltaCount int
	for _, dc := range m.DeltaChunks {
		saved += dc.SpaceSaved
		deltaCount += len(dc.Deltas)
	}
	log.Info().
		Str("reduction_id", m.ID).
		Str("database", m.Database).
		Str("profile", m.Profile).
		Int("reference_chunks", len(m.ReferenceChunks)).
		Int("delta_chunks", len(m.DeltaChunks)).
		Int("deltas", deltaCount).
		Str("space_saved", humanize.Bytes(uint64(saved))).
		Float64("sequence_coverage", m.Statistics.SequenceCoverage).
		Msg("reduction complete")
}
