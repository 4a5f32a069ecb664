package chunker

import (
	"sort"
	"time"

	"talaria/hashid"
	"talaria/taxon"
)

// packGroup greedily fills chunk manifests for one taxon's canonical hashes
// (spec §4.E step 4). Sealing happens when adding the next reference would
// exceed MaxChunkSize, or once the running size passes TargetChunkSize with
// at least MinSequencesPerChunk references collected.
func packGroup(cfg Config, t taxon.ID, refs []hashid.Hash, taxonomyVersion, sequenceVersion string, now time.Time) []ChunkManifest {
	sorted := hashid.SortHashes(refs)

	var chunks []ChunkManifest
	var current []hashid.Hash
	var currentSize int64

	seal := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, buildManifest(current, []taxon.ID{t}, Full, taxonomyVersion, sequenceVersion, now))
		current = nil
		currentSize = 0
	}

	for _, h := range sorted {
		next := int64(EstimatedBytesPerReference)
		if currentSize+next > cfg.MaxChunkSize {
			seal()
		} else if currentSize > cfg.TargetChunkSize && len(current) >= cfg.MinSequencesPerChunk {
			seal()
		}
		current = append(current, h)
		currentSize += next
	}
	seal()

	return chunks
}

func buildManifest(refs []hashid.Hash, taxonIDs []taxon.ID, chunkType ChunkType, taxonomyVersion, sequenceVersion string, now time.Time) ChunkManifest {
	sortedRefs := hashid.SortHashes(refs)
	hash := ComputeHash(sortedRefs, taxonIDs, chunkType, taxonomyVersion, sequenceVersion)
	return ChunkManifest{
		ChunkHash:       hash,
		SequenceRefs:    sortedRefs,
		TaxonIDs:        taxonIDs,
		ChunkType:       chunkType,
		TotalSize:       int64(len(sortedRefs)) * EstimatedBytesPerReference,
		SequenceCount:   len(sortedRefs),
		CreatedAt:       now,
		TaxonomyVersion: taxonomyVersion,
		SequenceVersion: sequenceVersion,
	}
}

// groupByTaxon partitions canonical hashes by their resolved taxon,
// returning taxon ids in ascending order for deterministic downstream
// processing (spec §4.E step 3).
func groupByTaxon(resolved map[hashid.Hash]taxon.ID) ([]taxon.ID, map[taxon.ID][]hashid.Hash) {
	groups := make(map[taxon.ID][]hashid.Hash)
	for h, t := range resolved {
		groups[t] = append(groups[t], h)
	}
	ids := make([]taxon.ID, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, groups
}
