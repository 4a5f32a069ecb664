package temporal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"talaria/hashid"
	"talaria/manifest"
	"talaria/merkle"
	"talaria/taxon"
	"talaria/taxonomy"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "temporal.db")
	idx, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestAddSequenceVersionTimestampsAreMonotonic(t *testing.T) {
	idx := newTestIndex(t)
	a, err := idx.AddSequenceVersion("v1", hashid.Sum([]byte("a")), 10, 1)
	if err != nil {
		t.Fatalf("AddSequenceVersion: %v", err)
	}
	b, err := idx.AddSequenceVersion("v2", hashid.Sum([]byte("b")), 20, 2)
	if err != nil {
		t.Fatalf("AddSequenceVersion: %v", err)
	}
	if b.Timestamp.Before(a.Timestamp) {
		t.Fatalf("timestamps not monotonic: %v before %v", b.Timestamp, a.Timestamp)
	}
}

func TestGetStateAtSelectsGreatestKeyLessEqual(t *testing.T) {
	idx := newTestIndex(t)
	v1, _ := idx.AddSequenceVersion("v1", hashid.Sum([]byte("a")), 10, 1)
	time.Sleep(time.Millisecond)
	v2, _ := idx.AddSequenceVersion("v2", hashid.Sum([]byte("b")), 20, 2)

	st := idx.GetStateAt(v1.Timestamp)
	if st.SequenceVersion == nil || st.SequenceVersion.Tag != "v1" {
		t.Fatalf("expected v1 state at t1, got %+v", st.SequenceVersion)
	}

	st2 := idx.GetStateAt(v2.Timestamp.Add(time.Hour))
	if st2.SequenceVersion == nil || st2.SequenceVersion.Tag != "v2" {
		t.Fatalf("expected v2 state after t2, got %+v", st2.SequenceVersion)
	}

	before := v1.Timestamp.Add(-time.Hour)
	st3 := idx.GetStateAt(before)
	if st3.SequenceVersion != nil {
		t.Fatalf("expected no sequence version before any entry, got %+v", st3.SequenceVersion)
	}
}

func TestAddCrossReferenceClosesPriorOpenPair(t *testing.T) {
	idx := newTestIndex(t)
	first, err := idx.AddCrossReference("seq-v1", "tax-v1", hashid.Sum([]byte("x")))
	if err != nil {
		t.Fatalf("AddCrossReference: %v", err)
	}
	if first.ValidityEnd != nil {
		t.Fatalf("first cross-reference should start open")
	}

	_, err = idx.AddCrossReference("seq-v1", "tax-v1", hashid.Sum([]byte("y")))
	if err != nil {
		t.Fatalf("AddCrossReference: %v", err)
	}

	sv := idx.snap.Load()
	var closedCount, openCount int
	for _, c := range sv.crossRefs {
		if c.SequenceVersion != "seq-v1" || c.TaxonomyVersion != "tax-v1" {
			continue
		}
		if c.ValidityEnd != nil {
			closedCount++
		} else {
			openCount++
		}
	}
	if closedCount != 1 || openCount != 1 {
		t.Fatalf("expected exactly one closed and one open ref, got closed=%d open=%d", closedCount, openCount)
	}
}

func TestGetTimelineInterleavesAndSorts(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddSequenceVersion("v1", hashid.Sum([]byte("a")), 10, 1)
	idx.AddTaxonomyVersion("t1", hashid.Sum([]byte("b")), 5, "ncbi")
	idx.AddCrossReference("v1", "t1", hashid.Sum([]byte("c")))

	tl := idx.GetTimeline(time.Time{}, time.Now().UTC().Add(time.Hour))
	if len(tl.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(tl.Events))
	}
	for i := 1; i < len(tl.Events); i++ {
		if tl.Events[i].Timestamp.Before(tl.Events[i-1].Timestamp) {
			t.Fatalf("timeline not sorted at index %d", i)
		}
	}
}

func TestPruneBeforeRemovesOldEntriesAndRebuildsSnapshot(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddSequenceVersion("v1", hashid.Sum([]byte("a")), 10, 1)
	cutoff := time.Now().UTC().Add(time.Hour)
	removed, err := idx.PruneBefore(cutoff)
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if removed == 0 {
		t.Fatalf("expected at least one entry removed")
	}
	st := idx.GetStateAt(time.Now().UTC())
	if st.SequenceVersion != nil {
		t.Fatalf("expected empty state after pruning everything, got %+v", st.SequenceVersion)
	}
}

func TestRebuildIndexRecoversSnapshotFromDisk(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddSequenceVersion("v1", hashid.Sum([]byte("a")), 10, 1)
	// Simulate recovery: drop the in-memory snapshot, then rebuild it from
	// the bbolt buckets and check the same observable state comes back.
	before := idx.GetStateAt(time.Now().UTC())
	idx.snap.Store(&snapshotView{})
	if err := idx.RebuildIndex(); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	after := idx.GetStateAt(time.Now().UTC())
	if before.SequenceVersion == nil || after.SequenceVersion == nil || before.SequenceVersion.Tag != after.SequenceVersion.Tag {
		t.Fatalf("state changed across rebuild: before=%+v after=%+v", before.SequenceVersion, after.SequenceVersion)
	}
}

func TestGetChunksAtTimeFindsLatestEarlierSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	root := "/data/temporal"

	older := manifest.TemporalManifest{
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ChunkIndex: []manifest.ChunkMetadata{{Hash: hashid.Sum([]byte("old-chunk")), SequenceCount: 1}},
	}
	newer := manifest.TemporalManifest{
		CreatedAt:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		ChunkIndex: []manifest.ChunkMetadata{{Hash: hashid.Sum([]byte("new-chunk")), SequenceCount: 2}},
	}
	if err := SaveManifestSnapshot(fs, root, older); err != nil {
		t.Fatalf("SaveManifestSnapshot: %v", err)
	}
	if err := SaveManifestSnapshot(fs, root, newer); err != nil {
		t.Fatalf("SaveManifestSnapshot: %v", err)
	}

	coord := Coordinate{SequenceTime: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	chunks, err := GetChunksAtTime(fs, root, coord, nil)
	if err != nil {
		t.Fatalf("GetChunksAtTime: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Hash != hashid.Sum([]byte("old-chunk")) {
		t.Fatalf("expected the older snapshot's chunk index, got %+v", chunks)
	}
}

func TestManifestCacheAvoidsRereadingSameSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	root := "/data/temporal"
	m := manifest.TemporalManifest{
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ChunkIndex: []manifest.ChunkMetadata{{Hash: hashid.Sum([]byte("c")), SequenceCount: 1}},
	}
	if err := SaveManifestSnapshot(fs, root, m); err != nil {
		t.Fatalf("SaveManifestSnapshot: %v", err)
	}
	cache, err := NewManifestCache(8)
	if err != nil {
		t.Fatalf("NewManifestCache: %v", err)
	}
	coord := Coordinate{SequenceTime: m.CreatedAt}
	if _, err := GetChunksAtTime(fs, root, coord, cache); err != nil {
		t.Fatalf("GetChunksAtTime: %v", err)
	}
	// Remove the on-disk file; a cache hit should still succeed.
	if err := fs.Remove("/data/temporal/manifests/manifest_2024-01-01_00-00-00.json"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	chunks, err := GetChunksAtTime(fs, root, coord, cache)
	if err != nil {
		t.Fatalf("expected cache hit after file removal, got error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected cached chunk index, got %+v", chunks)
	}
}

func TestGenerateTemporalProofVerifies(t *testing.T) {
	chunkHash := hashid.Sum([]byte("chunk-a"))
	m := manifest.TemporalManifest{
		SequenceRoot: hashid.Sum([]byte("seq-root")),
		ChunkIndex: []manifest.ChunkMetadata{
			{Hash: chunkHash, TaxonIDs: []taxon.ID{9606}, SequenceCount: 3},
			{Hash: hashid.Sum([]byte("chunk-b")), TaxonIDs: []taxon.ID{10090}, SequenceCount: 1},
		},
	}
	tree := &taxonomy.Tree{
		Root: taxon.Root,
		Nodes: map[taxon.ID]*taxonomy.Node{
			taxon.Root: {ID: taxon.Root, Rank: "no rank", Children: []taxon.ID{9606}},
			9606:       {ID: 9606, Parent: taxon.Root, Rank: "species"},
		},
	}

	proof, err := GenerateTemporalProof(m, chunkHash, tree, 9606, Coordinate{}, nil)
	if err != nil {
		t.Fatalf("GenerateTemporalProof: %v", err)
	}
	if proof.Seal != nil {
		t.Fatalf("expected no seal when signer is nil")
	}
	if len(proof.Taxonomy.Lineage) != 2 {
		t.Fatalf("expected lineage of length 2, got %v", proof.Taxonomy.Lineage)
	}

	items := make([]merkle.Item, len(m.ChunkIndex))
	for i, c := range m.ChunkIndex {
		items[i] = c
	}
	expectedRoot := merkle.BuildFromItems(items).RootHash()
	if !VerifyTemporalProof(proof, expectedRoot) {
		t.Fatalf("proof did not verify against recomputed sequence root")
	}
}

func TestGenerateTemporalProofRejectsUnknownChunk(t *testing.T) {
	m := manifest.TemporalManifest{ChunkIndex: []manifest.ChunkMetadata{{Hash: hashid.Sum([]byte("present"))}}}
	tree := &taxonomy.Tree{Root: taxon.Root, Nodes: map[taxon.ID]*taxonomy.Node{taxon.Root: {ID: taxon.Root}}}
	_, err := GenerateTemporalProof(m, hashid.Sum([]byte("absent")), tree, taxon.Root, Coordinate{}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown chunk hash")
	}
}
