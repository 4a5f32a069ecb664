package query

import (
	"fmt"
	"sort"

	"github.com/spf13/afero"

	"talaria/chunker"
	"talaria/chunkstore"
	"talaria/hashid"
	"talaria/internal/talerr"
	"talaria/sequence"
	"talaria/taxon"
	"talaria/taxonomy"
	"talaria/temporal"
)

// Engine composes the chunk store, canonical sequence store, and temporal
// index into the bi-temporal queries of spec §4.H.
type Engine struct {
	fs            afero.Fs
	temporalRoot  string
	chunks        *chunkstore.Store
	sequences     *sequence.Store
	index         *temporal.Index
	manifestCache *temporal.ManifestCache
}

// New builds an Engine over already-open stores.
func New(fs afero.Fs, temporalRoot string, chunks *chunkstore.Store, sequences *sequence.Store, index *temporal.Index, manifestCache *temporal.ManifestCache) *Engine {
	return &Engine{fs: fs, temporalRoot: temporalRoot, chunks: chunks, sequences: sequences, index: index, manifestCache: manifestCache}
}

// resolvedChunk pairs a chunk_index position with its fully resolved
// ChunkManifest (sequence_refs included).
type resolvedChunk struct {
	position int
	manifest chunker.ChunkManifest
}

// loadChunks resolves coord's chunk index down to full ChunkManifests
// (spec §4.H Snapshot: "resolve each chunk manifest through 4.A").
func (e *Engine) loadChunks(coord temporal.Coordinate, taxonFilter taxon.Set) ([]resolvedChunk, error) {
	metas, err := temporal.GetChunksAtTime(e.fs, e.temporalRoot, coord, e.manifestCache)
	if err != nil {
		return nil, err
	}

	var out []resolvedChunk
	for i, cm := range metas {
		if len(taxonFilter) > 0 {
			chunkTaxa := taxon.NewSet(cm.TaxonIDs...)
			if !chunkTaxa.Intersects(taxonFilter) {
				continue
			}
		}
		raw, err := e.chunks.Get(cm.Hash)
		if err != nil {
			return nil, err
		}
		full, err := chunker.Decode(raw)
		if err != nil {
			return nil, talerr.Wrap(talerr.Corrupted, "decode chunk manifest", err)
		}
		out = append(out, resolvedChunk{position: i, manifest: full})
	}
	return out, nil
}

// Snapshot answers the snapshot query (spec §4.H).
func (e *Engine) Snapshot(coord temporal.Coordinate, taxonFilter taxon.Set) (Snapshot, error) {
	state := e.index.GetStateAt(coord.SequenceTime)
	taxState := e.index.GetStateAt(coord.TaxonomyTime)

	resolved, err := e.loadChunks(coord, taxonFilter)
	if err != nil {
		return Snapshot{}, err
	}

	uniqueTaxa := make(taxon.Set)
	var results []SequenceResult
	for _, rc := range resolved {
		// A chunk's taxon is unambiguous only when the chunk holds exactly
		// one; a chunk merged across several taxa (special-taxa post-pass)
		// does not record which taxon each sequence individually belongs to,
		// so those sequences report Unclassified here rather than a guess.
		var chunkTaxon taxon.ID
		if len(rc.manifest.TaxonIDs) == 1 {
			chunkTaxon = rc.manifest.TaxonIDs[0]
		}
		for pos, ref := range rc.manifest.SequenceRefs {
			uniqueTaxa[chunkTaxon] = struct{}{}
			results = append(results, SequenceResult{
				CanonicalHash:   ref,
				ChunkHash:       rc.manifest.ChunkHash,
				TaxonID:         chunkTaxon,
				ChunkPosition:   rc.position,
				PositionInChunk: pos,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].ChunkPosition != results[j].ChunkPosition {
			return results[i].ChunkPosition < results[j].ChunkPosition
		}
		return results[i].PositionInChunk < results[j].PositionInChunk
	})

	var seqTag, taxTag string
	var seqRoot, taxRoot hashid.Hash
	if state.SequenceVersion != nil {
		seqTag = state.SequenceVersion.Tag
		seqRoot = state.SequenceVersion.Root
	}
	if taxState.TaxonomyVersion != nil {
		taxTag = taxState.TaxonomyVersion.Tag
		taxRoot = taxState.TaxonomyVersion.Root
	}

	snapBuf := make([]byte, 0, 64)
	snapBuf = append(snapBuf, seqRoot.Bytes()...)
	snapBuf = append(snapBuf, taxRoot.Bytes()...)

	return Snapshot{
		Sequences:       results,
		SequenceVersion: seqTag,
		TaxonomyVersion: taxTag,
		Metadata: SnapshotMetadata{
			TotalSequences: len(results),
			TotalChunks:    len(resolved),
			UniqueTaxa:     len(uniqueTaxa),
			SnapshotHash:   hashid.Sum(snapBuf),
		},
	}, nil
}

// Diff answers the diff query: snapshots both coordinates and reports
// sequence-level add/remove/modify plus taxon reclassifications (spec
// §4.H). Results are ordered lexicographically by canonical hash.
func (e *Engine) Diff(from, to temporal.Coordinate, taxonFilter taxon.Set) (DiffResult, error) {
	fromSnap, err := e.Snapshot(from, taxonFilter)
	if err != nil {
		return DiffResult{}, err
	}
	toSnap, err := e.Snapshot(to, taxonFilter)
	if err != nil {
		return DiffResult{}, err
	}

	fromByHash := make(map[hashid.Hash]SequenceResult, len(fromSnap.Sequences))
	for _, s := range fromSnap.Sequences {
		fromByHash[s.CanonicalHash] = s
	}
	toByHash := make(map[hashid.Hash]SequenceResult, len(toSnap.Sequences))
	for _, s := range toSnap.Sequences {
		toByHash[s.CanonicalHash] = s
	}

	var added, removed, modified []hashid.Hash
	var reclass []Reclassification
	for h, toS := range toByHash {
		fromS, existed := fromByHash[h]
		if !existed {
			added = append(added, h)
			continue
		}
		if fromS.TaxonID != toS.TaxonID {
			reclass = append(reclass, Reclassification{CanonicalHash: h, OldTaxon: fromS.TaxonID, NewTaxon: toS.TaxonID})
			modified = append(modified, h)
		}
	}
	for h := range fromByHash {
		if _, stillPresent := toByHash[h]; !stillPresent {
			removed = append(removed, h)
		}
	}

	sortHashes(added)
	sortHashes(removed)
	sortHashes(modified)
	sort.Slice(reclass, func(i, j int) bool { return reclass[i].CanonicalHash.Less(reclass[j].CanonicalHash) })

	return DiffResult{Added: added, Removed: removed, Modified: modified, Reclassifications: reclass}, nil
}

func sortHashes(hs []hashid.Hash) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Less(hs[j]) })
}

// TemporalJoin groups a taxon's reclassifications between refCoord and
// compCoord by (old, new) taxon pair, sorted by descending count (spec
// §4.H).
func (e *Engine) TemporalJoin(taxonID taxon.ID, refCoord, compCoord temporal.Coordinate, elapsedMS int64) (TemporalJoinResult, error) {
	filter := taxon.NewSet(taxonID)
	diff, err := e.Diff(refCoord, compCoord, filter)
	if err != nil {
		return TemporalJoinResult{}, err
	}

	groups := make(map[[2]taxon.ID]*ReclassifiedGroup)
	for _, r := range diff.Reclassifications {
		key := [2]taxon.ID{r.OldTaxon, r.NewTaxon}
		g, ok := groups[key]
		if !ok {
			g = &ReclassifiedGroup{OldTaxon: r.OldTaxon, NewTaxon: r.NewTaxon}
			groups[key] = g
		}
		g.Count++
		g.Sequences = append(g.Sequences, r.CanonicalHash)
	}

	var out []ReclassifiedGroup
	for _, g := range groups {
		sortHashes(g.Sequences)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })

	totalAffected := len(diff.Reclassifications)
	fromSnap, err := e.Snapshot(refCoord, filter)
	if err != nil {
		return TemporalJoinResult{}, err
	}

	var changedTags []string
	if refCoord.TaxonomyTime != compCoord.TaxonomyTime {
		changedTags = append(changedTags, "taxonomy_time_changed")
	}

	return TemporalJoinResult{
		Reclassified:      out,
		Stable:            len(fromSnap.Sequences) - totalAffected,
		TotalAffected:     totalAffected,
		TaxonomiesChanged: changedTags,
		ExecutionTimeMS:   elapsedMS,
	}, nil
}

// Evolution extracts every timeline event referencing entityTag (a
// sequence or taxonomy version tag) between from and to (spec §4.H).
func (e *Engine) Evolution(entityTag string, from, to temporal.Coordinate) []Event {
	tl := e.index.GetTimeline(from.SequenceTime, to.SequenceTime)
	var out []Event
	for _, ev := range tl.Events {
		if ev.Sequence != nil && ev.Sequence.Tag == entityTag {
			out = append(out, ev)
			continue
		}
		if ev.Taxonomy != nil && ev.Taxonomy.Tag == entityTag {
			out = append(out, ev)
			continue
		}
		if ev.Cross != nil && (ev.Cross.SequenceVersion == entityTag || ev.Cross.TaxonomyVersion == entityTag) {
			out = append(out, ev)
		}
	}
	return out
}

// RetroactiveAnalysis applies newTaxonomy's reclassification map to every
// sequence visible at sequencesFrom, logging a ClassificationConflict for
// any sequence whose taxon is absent from the new tree's active set and
// has no direct mapping (spec §4.H).
func (e *Engine) RetroactiveAnalysis(sequencesFrom temporal.Coordinate, newTaxonomy *taxonomy.Tree, changes taxonomy.TaxonomyChanges) (RetroactiveResult, error) {
	snap, err := e.Snapshot(sequencesFrom, nil)
	if err != nil {
		return RetroactiveResult{}, err
	}

	var reclass []Reclassification
	var conflicts []ClassificationConflict
	seen := make(map[hashid.Hash]bool)
	for _, s := range snap.Sequences {
		if seen[s.CanonicalHash] {
			continue
		}
		seen[s.CanonicalHash] = true

		if newTaxonomy.TaxonExists(s.TaxonID) {
			continue // still valid under the new taxonomy, no reclassification needed
		}

		if candidates, ok := changes.AmbiguousReclassifications[s.TaxonID]; ok {
			conflicts = append(conflicts, ClassificationConflict{
				Kind:          AmbiguousReclassification,
				CanonicalHash: s.CanonicalHash,
				OldTaxon:      s.TaxonID,
				Detail:        fmt.Sprintf("multiple candidate reclassification targets: %v", candidates),
			})
			continue
		}
		if newParent, ok := changes.Reclassifications[s.TaxonID]; ok {
			reclass = append(reclass, Reclassification{CanonicalHash: s.CanonicalHash, OldTaxon: s.TaxonID, NewTaxon: newParent})
			continue
		}
		if mergedInto, ok := changes.MergedTaxa[s.TaxonID]; ok {
			if newTaxonomy.TaxonExists(mergedInto) {
				conflicts = append(conflicts, ClassificationConflict{
					Kind:          ParentOnlyExists,
					CanonicalHash: s.CanonicalHash,
					OldTaxon:      s.TaxonID,
					Detail:        "taxon merged; only the surviving parent taxon exists in the new taxonomy",
				})
				continue
			}
		}
		conflicts = append(conflicts, ClassificationConflict{
			Kind:          TaxonNoLongerExists,
			CanonicalHash: s.CanonicalHash,
			OldTaxon:      s.TaxonID,
			Detail:        "taxon absent from new taxonomy with no recorded mapping",
		})
	}

	return RetroactiveResult{
		Reclassifications: reclass,
		Conflicts:         conflicts,
		Statistics: RetroactiveStatistics{
			TotalSequences: len(seen),
			Reclassified:   len(reclass),
			ConflictCount:  len(conflicts),
		},
	}, nil
}
