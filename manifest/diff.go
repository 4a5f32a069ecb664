package manifest

import "talaria/hashid"

// ModifiedChunk pairs the old and new metadata for a chunk the diff judged
// to be the same logical unit under a changed content hash.
type ModifiedChunk struct {
	Old ChunkMetadata
	New ChunkMetadata
}

// TaxonomyDiff reports whether the taxonomy understanding in effect changed
// between two manifests. A TemporalManifest only carries the taxonomy
// version's tag and Merkle root, not the tree itself, so this is a
// changed/unchanged signal rather than a full reclassification report —
// callers that need `{reclassifications, new_taxa, deprecated_taxa,
// merged_taxa}` call taxonomy.Manager.CompareVersionTags(OldTag, NewTag)
// directly once they know the two tags differ.
type TaxonomyDiff struct {
	Changed bool
	OldTag  string
	NewTag  string
	OldRoot hashid.Hash
	NewRoot hashid.Hash
}

// ManifestDiff is the result of comparing two TemporalManifest chunk
// indices (spec §4.F diff operation).
type ManifestDiff struct {
	Added           []ChunkMetadata
	Removed         []ChunkMetadata
	Modified        []ModifiedChunk
	TaxonomyChanges TaxonomyDiff
}

// Diff compares old and new manifests by chunk hash. A chunk present in
// both by hash is unchanged and omitted. A chunk whose hash disappeared but
// which has the same taxon set and a sequence count within 10% of one that
// appeared (see sameLogicalChunk) is reported as Modified rather than a
// Removed+Added pair, since chunk hashes change
// whenever their sequence membership does even when the taxon scope is the
// same "chunk" from a caller's point of view.
func Diff(oldManifest, newManifest TemporalManifest) ManifestDiff {
	oldByHash := make(map[hashid.Hash]ChunkMetadata, len(oldManifest.ChunkIndex))
	for _, c := range oldManifest.ChunkIndex {
		oldByHash[c.Hash] = c
	}
	newByHash := make(map[hashid.Hash]ChunkMetadata, len(newManifest.ChunkIndex))
	for _, c := range newManifest.ChunkIndex {
		newByHash[c.Hash] = c
	}

	var removedCandidates []ChunkMetadata
	for h, c := range oldByHash {
		if _, ok := newByHash[h]; !ok {
			removedCandidates = append(removedCandidates, c)
		}
	}
	var addedCandidates []ChunkMetadata
	for h, c := range newByHash {
		if _, ok := oldByHash[h]; !ok {
			addedCandidates = append(addedCandidates, c)
		}
	}

	matchedOld := make(map[hashid.Hash]bool)
	matchedNew := make(map[hashid.Hash]bool)
	var modified []ModifiedChunk
	for _, oc := range removedCandidates {
		for _, nc := range addedCandidates {
			if matchedNew[nc.Hash] {
				continue
			}
			if sameLogicalChunk(oc, nc) {
				modified = append(modified, ModifiedChunk{Old: oc, New: nc})
				matchedOld[oc.Hash] = true
				matchedNew[nc.Hash] = true
				break
			}
		}
	}

	var added, removed []ChunkMetadata
	for _, c := range removedCandidates {
		if !matchedOld[c.Hash] {
			removed = append(removed, c)
		}
	}
	for _, c := range addedCandidates {
		if !matchedNew[c.Hash] {
			added = append(added, c)
		}
	}

	taxonomyChanges := TaxonomyDiff{
		Changed: oldManifest.TaxonomyVersionTag != newManifest.TaxonomyVersionTag || oldManifest.TaxonomyRoot != newManifest.TaxonomyRoot,
		OldTag:  oldManifest.TaxonomyVersionTag,
		NewTag:  newManifest.TaxonomyVersionTag,
		OldRoot: oldManifest.TaxonomyRoot,
		NewRoot: newManifest.TaxonomyRoot,
	}

	return ManifestDiff{Added: added, Removed: removed, Modified: modified, TaxonomyChanges: taxonomyChanges}
}

// sameLogicalChunk heuristically identifies two differently-hashed chunks
// as the same logical grouping: identical taxon scope and a sequence count
// within 10%, which is what re-chunking a taxon after new sequences arrive
// typically produces.
func sameLogicalChunk(a, b ChunkMetadata) bool {
	if len(a.TaxonIDs) != len(b.TaxonIDs) || len(a.TaxonIDs) == 0 {
		return false
	}
	aSet := make(map[uint32]struct{}, len(a.TaxonIDs))
	for _, t := range a.TaxonIDs {
		aSet[uint32(t)] = struct{}{}
	}
	for _, t := range b.TaxonIDs {
		if _, ok := aSet[uint32(t)]; !ok {
			return false
		}
	}
	if a.SequenceCount == 0 {
		return b.SequenceCount == 0
	}
	delta := a.SequenceCount - b.SequenceCount
	if delta < 0 {
		delta = -delta
	}
	return float64(delta)/float64(a.SequenceCount) <= 0.10
}
