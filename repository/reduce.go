package repository

import (
	"encoding/json"
	"time"

	"talaria/hashid"
	"talaria/procstate"
	"talaria/reduction"
)

// Reduce runs stages 2-4 of the reduction pipeline (select references,
// delta-encode the rest, assemble a combined manifest) over an
// already-resolved candidate set, and persists the result so it can be
// retrieved by its content hash later (spec §4.J).
//
// referenceChunkHashes are the chunk-store addresses of the chunks holding
// the full (undelta'd) reference sequences — typically produced by a prior
// IngestVersion run over just the reference subset. Building those chunks
// is a chunker concern, not a reduction one, so Reduce takes them as input
// rather than re-deriving them. sourceManifestHash identifies the database
// manifest sequences was drawn from, so a reduction can always be traced
// back to the exact version it reduces (spec §4.J data model).
func (r *Repository) Reduce(sequences []reduction.InputSequence, sel reduction.Selector, targetRatio float64, sourceManifestHash hashid.Hash, referenceChunkHashes []hashid.Hash, limits reduction.DeltaChunkLimits, maxAlignLength int, database, profile string, noDeltas bool, minSequenceLength int) (reduction.Manifest, error) {
	ref := reduction.ProfileRef{Database: database, Profile: profile}
	opID, err := r.ProcState.StartProcessing(procstate.KindReduce, hashid.Zero, ref.String(), len(sequences), database)
	if err != nil {
		return reduction.Manifest{}, err
	}

	byHash := make(map[hashid.Hash]reduction.InputSequence, len(sequences))
	for _, s := range sequences {
		byHash[s.Hash] = s
	}

	sel2 := sel.Select(sequences, targetRatio)
	stats := reduction.ComputeStatistics(sel2, len(sequences))

	var deltaChunks []reduction.DeltaChunk
	if !noDeltas {
		now := time.Now().UTC()
		deltaChunks = reduction.ComputeDeltaChunks(sel2, byHash, maxAlignLength, limits, now)
	}

	m := reduction.BuildManifest(database, profile, noDeltas, minSequenceLength, sourceManifestHash, referenceChunkHashes, deltaChunks, stats, time.Now().UTC())
	m.Profile = profile

	enc, err := json.Marshal(m)
	if err != nil {
		return reduction.Manifest{}, err
	}
	if _, err := r.Chunks.Store(enc); err != nil {
		return reduction.Manifest{}, err
	}

	completed := append([]hashid.Hash(nil), referenceChunkHashes...)
	if err := r.ProcState.UpdateProcessingState(opID, completed); err != nil {
		return reduction.Manifest{}, err
	}
	if err := r.ProcState.CompleteProcessing(opID); err != nil {
		return reduction.Manifest{}, err
	}

	m.LogSummary(r.log)
	return m, nil
}
