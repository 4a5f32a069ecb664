package repository

import (
	"time"

	"talaria/chunker"
	"talaria/hashid"
	"talaria/manifest"
	"talaria/merkle"
	"talaria/procstate"
	"talaria/taxonomy"
	"talaria/temporal"
)

// IngestResult reports the outcome of IngestVersion: the persisted
// temporal manifest plus any taxon-resolution discrepancies the chunker
// flagged along the way (spec §4.E step 1, §7).
type IngestResult struct {
	Manifest      manifest.TemporalManifest
	Discrepancies []chunker.Discrepancy
}

// IngestVersion runs the full pipeline a new sequence batch goes through
// to become a queryable version: enrich/store/group/pack (chunker), content
// address each resulting chunk (chunker.Persist), fold the chunk index into
// a new temporal manifest snapshot, record it on the bi-temporal index, and
// track the run's progress so a crash mid-way can resume (spec §4.E, §4.F,
// §4.G, §4.K).
//
// batchIdentity is the manifest_hash a resumed call matches against: since
// IngestVersion doesn't yet have an output manifest to hash before it runs,
// it is derived from the caller-supplied (source, sequenceVersionTag,
// taxonomyVersionTag) triple, which is what actually distinguishes "the
// same ingest attempt, retried after a crash" from a genuinely new one.
func (r *Repository) IngestVersion(items []chunker.Sequence, cfg chunker.Config, tree *taxonomy.Tree, taxonomyVersionTag, sequenceVersionTag string, lookup chunker.AccessionLookup, source string) (IngestResult, error) {
	batchIdentity := hashid.Sum([]byte(source + "|" + sequenceVersionTag + "|" + taxonomyVersionTag))

	var opID string
	var now time.Time
	completedSet := make(map[hashid.Hash]struct{})
	if resumed, err := r.ResumeChunking(source, batchIdentity, sequenceVersionTag); err != nil {
		return IngestResult{}, err
	} else if resumed != nil {
		opID = resumed.OperationID
		now = resumed.StartedAt
		for _, h := range resumed.CompletedChunks {
			completedSet[h] = struct{}{}
		}
	} else {
		opID, err = r.ProcState.StartProcessing(procstate.KindChunk, batchIdentity, sequenceVersionTag, len(items), source)
		if err != nil {
			return IngestResult{}, err
		}
		now = time.Now().UTC()
	}

	c := chunker.New(cfg, r.Sequences, tree, r.log)
	result, err := c.Chunk(items, taxonomyVersionTag, sequenceVersionTag, lookup, now)
	if err != nil {
		return IngestResult{}, err
	}

	chunkMeta := make([]manifest.ChunkMetadata, 0, len(result.Chunks))
	newlyCompleted := make([]hashid.Hash, 0, len(result.Chunks))
	sequenceCount := 0
	for _, cm := range result.Chunks {
		// cm.ChunkHash is still the pre-persist ComputeHash identity here;
		// that is what completedSet and a future resume attempt key on, so
		// it is recorded before Persist reassigns it to the chunk store
		// address.
		prePersistHash := cm.ChunkHash
		persisted, err := chunker.Persist(r.Chunks, cm, completedSet)
		if err != nil {
			return IngestResult{}, err
		}
		meta := manifest.FromChunkManifest(persisted)
		chunkMeta = append(chunkMeta, meta)
		sequenceCount += meta.SequenceCount
		newlyCompleted = append(newlyCompleted, prePersistHash)
	}
	if err := r.ProcState.UpdateProcessingState(opID, newlyCompleted); err != nil {
		return IngestResult{}, err
	}

	sequenceRoot := sequenceRootOf(chunkMeta)
	var taxonomyRoot hashid.Hash
	if tree != nil {
		taxonomyRoot = tree.RootHash()
	}

	previous := r.latestManifestHash()
	createdAt := time.Now().UTC()
	version := 1
	if previous != nil {
		version = r.nextManifestVersion()
	}

	m := manifest.CreateFromChunks(chunkMeta, sequenceRoot, taxonomyRoot, sequenceVersionTag, taxonomyVersionTag, version, createdAt, previous)
	if err := temporal.SaveManifestSnapshot(r.fs, r.TemporalRoot(), m); err != nil {
		return IngestResult{}, err
	}
	if _, err := r.Temporal.AddSequenceVersion(sequenceVersionTag, sequenceRoot, sequenceCount, len(chunkMeta)); err != nil {
		return IngestResult{}, err
	}

	if err := r.ProcState.CompleteProcessing(opID); err != nil {
		return IngestResult{}, err
	}

	return IngestResult{Manifest: m, Discrepancies: result.Discrepancies}, nil
}

func sequenceRootOf(chunkMeta []manifest.ChunkMetadata) hashid.Hash {
	items := make([]merkle.Item, len(chunkMeta))
	for i, c := range chunkMeta {
		items[i] = c
	}
	return merkle.BuildFromItems(items).RootHash()
}

// latestManifestHash reports the most recent sequence-timeline entry's
// root, used to chain a new manifest's PreviousVersion link. A nil result
// means this is the first version ever ingested.
func (r *Repository) latestManifestHash() *hashid.Hash {
	e, ok := r.Temporal.GetSequenceVersionAt(time.Now().UTC())
	if !ok {
		return nil
	}
	root := e.Root
	return &root
}

// nextManifestVersion counts prior sequence-timeline entries to derive the
// next manifest's version number.
func (r *Repository) nextManifestVersion() int {
	seqs, _ := r.Temporal.ListVersionsBefore(time.Now().UTC().Add(time.Second))
	return len(seqs) + 1
}
