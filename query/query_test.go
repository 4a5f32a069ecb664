package query

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"talaria/chunker"
	"talaria/chunkstore"
	"talaria/hashid"
	"talaria/manifest"
	"talaria/sequence"
	"talaria/taxon"
	"talaria/taxonomy"
	"talaria/temporal"
)

type testHarness struct {
	engine *Engine
	fs     afero.Fs
	chunks *chunkstore.Store
	seqs   *sequence.Store
	index  *temporal.Index
	root   string
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	fs := afero.NewMemMapFs()
	root := "/data/temporal"

	chunks, err := chunkstore.Open(fs, "/data/chunks", zerolog.Nop())
	if err != nil {
		t.Fatalf("chunkstore.Open: %v", err)
	}
	t.Cleanup(func() { chunks.Close() })

	seqs, err := sequence.Open(filepath.Join(t.TempDir(), "seq.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("sequence.Open: %v", err)
	}
	t.Cleanup(func() { seqs.Close() })

	index, err := temporal.Open(filepath.Join(t.TempDir(), "temporal.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("temporal.Open: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	engine := New(fs, root, chunks, seqs, index, nil)
	return &testHarness{engine: engine, fs: fs, chunks: chunks, seqs: seqs, index: index, root: root}
}

// seedVersion stores sequences under a single-taxon chunk, persists a
// manifest snapshot at stampTime, and records the version on the temporal
// index.
func (h *testHarness) seedVersion(t *testing.T, tag string, stampTime time.Time, seqs []string, taxonID taxon.ID) hashid.Hash {
	t.Helper()
	var refs []hashid.Hash
	for _, s := range seqs {
		hash, _, err := h.seqs.StoreSequence([]byte(s), ">seq", "test")
		if err != nil {
			t.Fatalf("StoreSequence: %v", err)
		}
		refs = append(refs, hash)
	}

	cm := chunker.ChunkManifest{
		ChunkHash:       chunker.ComputeHash(refs, []taxon.ID{taxonID}, chunker.Full, "tax-v1", tag),
		SequenceRefs:    refs,
		TaxonIDs:        []taxon.ID{taxonID},
		ChunkType:       chunker.Full,
		SequenceCount:   len(refs),
		TaxonomyVersion: "tax-v1",
		SequenceVersion: tag,
	}
	// Persist reassigns ChunkHash to the chunk store's own content address
	// for the serialized manifest, which is what chunk_index entries must
	// resolve against.
	cm, err := chunker.Persist(h.chunks, cm, nil)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	m := manifest.TemporalManifest{
		CreatedAt:          stampTime,
		SequenceVersionTag: tag,
		ChunkIndex:         []manifest.ChunkMetadata{manifest.FromChunkManifest(cm)},
	}
	if err := temporal.SaveManifestSnapshot(h.fs, h.root, m); err != nil {
		t.Fatalf("SaveManifestSnapshot: %v", err)
	}

	root := hashid.Sum([]byte(tag))
	if _, err := h.index.AddSequenceVersion(tag, root, len(refs), 1); err != nil {
		t.Fatalf("AddSequenceVersion: %v", err)
	}
	return cm.ChunkHash
}

func TestSnapshotResolvesSequencesInOrder(t *testing.T) {
	h := newHarness(t)
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.seedVersion(t, "s1", stamp, []string{"AAAA", "CCCC"}, 9606)

	snap, err := h.engine.Snapshot(temporal.Coordinate{SequenceTime: stamp.Add(time.Hour)}, nil)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Metadata.TotalSequences != 2 {
		t.Fatalf("expected 2 sequences, got %d", snap.Metadata.TotalSequences)
	}
	if snap.Metadata.UniqueTaxa != 1 {
		t.Fatalf("expected 1 unique taxon, got %d", snap.Metadata.UniqueTaxa)
	}
	for i, s := range snap.Sequences {
		if s.PositionInChunk != i {
			t.Fatalf("expected position-preserving order, got %+v", snap.Sequences)
		}
	}
}

func TestSnapshotFiltersByTaxon(t *testing.T) {
	h := newHarness(t)
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.seedVersion(t, "s1", stamp, []string{"AAAA"}, 9606)

	snap, err := h.engine.Snapshot(temporal.Coordinate{SequenceTime: stamp.Add(time.Hour)}, taxon.NewSet(10090))
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Sequences) != 0 {
		t.Fatalf("expected no sequences under an unrelated taxon filter, got %+v", snap.Sequences)
	}
}

func TestDiffDetectsAddedSequences(t *testing.T) {
	h := newHarness(t)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	h.seedVersion(t, "s1", t1, []string{"AAAA"}, 9606)
	h.seedVersion(t, "s2", t2, []string{"AAAA", "CCCC"}, 9606)

	diff, err := h.engine.Diff(
		temporal.Coordinate{SequenceTime: t1.Add(time.Hour)},
		temporal.Coordinate{SequenceTime: t2.Add(time.Hour)},
		nil,
	)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(diff.Added) != 1 {
		t.Fatalf("expected 1 added sequence, got %+v", diff.Added)
	}
}

func TestRetroactiveAnalysisFlagsMissingTaxon(t *testing.T) {
	h := newHarness(t)
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.seedVersion(t, "s1", stamp, []string{"AAAA"}, 9606)

	newTree := &taxonomy.Tree{
		Root:  taxon.Root,
		Nodes: map[taxon.ID]*taxonomy.Node{taxon.Root: {ID: taxon.Root}},
	}
	changes := taxonomy.TaxonomyChanges{}

	result, err := h.engine.RetroactiveAnalysis(temporal.Coordinate{SequenceTime: stamp.Add(time.Hour)}, newTree, changes)
	if err != nil {
		t.Fatalf("RetroactiveAnalysis: %v", err)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Kind != TaxonNoLongerExists {
		t.Fatalf("expected 1 TaxonNoLongerExists conflict, got %+v", result.Conflicts)
	}
}

func TestRetroactiveAnalysisAppliesReclassification(t *testing.T) {
	h := newHarness(t)
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.seedVersion(t, "s1", stamp, []string{"AAAA"}, 562)

	newTree := &taxonomy.Tree{
		Root:  taxon.Root,
		Nodes: map[taxon.ID]*taxonomy.Node{taxon.Root: {ID: taxon.Root, Children: []taxon.ID{999}}, 999: {ID: 999, Parent: taxon.Root}},
	}
	changes := taxonomy.TaxonomyChanges{Reclassifications: map[taxon.ID]taxon.ID{562: 999}}

	result, err := h.engine.RetroactiveAnalysis(temporal.Coordinate{SequenceTime: stamp.Add(time.Hour)}, newTree, changes)
	if err != nil {
		t.Fatalf("RetroactiveAnalysis: %v", err)
	}
	if len(result.Reclassifications) != 1 || result.Reclassifications[0].NewTaxon != 999 {
		t.Fatalf("expected reclassification to taxon 999, got %+v", result.Reclassifications)
	}
	if len(result.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %+v", result.Conflicts)
	}
}

func TestRetroactiveAnalysisFlagsAmbiguousReclassification(t *testing.T) {
	h := newHarness(t)
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.seedVersion(t, "s1", stamp, []string{"AAAA"}, 562)

	newTree := &taxonomy.Tree{
		Root: taxon.Root,
		Nodes: map[taxon.ID]*taxonomy.Node{
			taxon.Root: {ID: taxon.Root, Children: []taxon.ID{100, 200}},
			100:        {ID: 100, Parent: taxon.Root},
			200:        {ID: 200, Parent: taxon.Root},
		},
	}
	// 562's former children split across two unrelated new parents, so no
	// single surviving taxon can be picked automatically.
	changes := taxonomy.TaxonomyChanges{
		AmbiguousReclassifications: map[taxon.ID][]taxon.ID{562: {100, 200}},
	}

	result, err := h.engine.RetroactiveAnalysis(temporal.Coordinate{SequenceTime: stamp.Add(time.Hour)}, newTree, changes)
	if err != nil {
		t.Fatalf("RetroactiveAnalysis: %v", err)
	}
	if len(result.Reclassifications) != 0 {
		t.Fatalf("expected no reclassification to be applied, got %+v", result.Reclassifications)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Kind != AmbiguousReclassification {
		t.Fatalf("expected 1 AmbiguousReclassification conflict, got %+v", result.Conflicts)
	}
	if result.Conflicts[0].OldTaxon != 562 {
		t.Fatalf("unexpected OldTaxon in conflict: %+v", result.Conflicts[0])
	}
}
