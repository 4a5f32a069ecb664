package taxonomy

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"talaria/taxon"
)

func writeDump(t *testing.T, fs afero.Fs, dir string, nodes, names string) {
	t.Helper()
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := afero.WriteFile(fs, dir+"/nodes.dmp", []byte(nodes), 0o644); err != nil {
		t.Fatalf("write nodes.dmp: %v", err)
	}
	if err := afero.WriteFile(fs, dir+"/names.dmp", []byte(names), 0o644); err != nil {
		t.Fatalf("write names.dmp: %v", err)
	}
}

// A tiny tree: 1 (root) -> 2 -> 3, 1 -> 4.
const sampleNodes = `1 | 1 | no rank |
2 | 1 | superkingdom |
3 | 2 | species |
4 | 1 | species |
`

const sampleNames = `1 | root | | scientific name |
2 | Bacteria | | scientific name |
3 | Escherichia coli | | scientific name |
4 | Archaea example | | scientific name |
`

func TestLoadNCBITaxonomyBuildsTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDump(t, fs, "/tax/v1", sampleNodes, sampleNames)

	tree, err := LoadNCBITaxonomy(fs, "/tax/v1", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tree.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(tree.Nodes))
	}
	if tree.Nodes[3].Name != "Escherichia coli" {
		t.Fatalf("name not linked: %q", tree.Nodes[3].Name)
	}
	if !tree.TaxonExists(taxon.ID(3)) {
		t.Fatalf("expected taxon 3 to exist")
	}
}

func TestLoadRejectsDanglingParent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDump(t, fs, "/tax/bad", `1 | 1 | no rank |
5 | 999 | species |
`, `1 | root | | scientific name |
`)
	if _, err := LoadNCBITaxonomy(fs, "/tax/bad", nil); err == nil {
		t.Fatalf("expected error for dangling parent")
	}
}

func TestLoadRejectsCycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDump(t, fs, "/tax/cycle", `1 | 1 | no rank |
2 | 3 | species |
3 | 2 | species |
`, `1 | root | | scientific name |
`)
	if _, err := LoadNCBITaxonomy(fs, "/tax/cycle", nil); err == nil {
		t.Fatalf("expected error for cycle")
	}
}

func TestGetLineageRootToLeaf(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDump(t, fs, "/tax/v1", sampleNodes, sampleNames)
	tree, err := LoadNCBITaxonomy(fs, "/tax/v1", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	lineage, err := tree.GetLineage(taxon.ID(3))
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	want := []taxon.ID{1, 2, 3}
	if len(lineage) != len(want) {
		t.Fatalf("lineage length = %d, want %d", len(lineage), len(want))
	}
	for i, id := range want {
		if lineage[i] != id {
			t.Fatalf("lineage[%d] = %d, want %d", i, lineage[i], id)
		}
	}
}

func TestRootHashDeterministic(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDump(t, fs, "/tax/v1", sampleNodes, sampleNames)
	t1, err := LoadNCBITaxonomy(fs, "/tax/v1", nil)
	if err != nil {
		t.Fatalf("load 1: %v", err)
	}
	t2, err := LoadNCBITaxonomy(fs, "/tax/v1", nil)
	if err != nil {
		t.Fatalf("load 2: %v", err)
	}
	if t1.RootHash() != t2.RootHash() {
		t.Fatalf("root hash not deterministic across loads")
	}
}

func TestCompareVersionsDetectsReclassificationAndNewTaxa(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDump(t, fs, "/tax/old", sampleNodes, sampleNames)
	// taxon 4 reclassified under 2 instead of 1; taxon 5 added.
	newNodes := `1 | 1 | no rank |
2 | 1 | superkingdom |
3 | 2 | species |
4 | 2 | species |
5 | 1 | species |
`
	newNames := sampleNames + "5 | New Taxon | | scientific name |\n"
	writeDump(t, fs, "/tax/new", newNodes, newNames)

	oldTree, err := LoadNCBITaxonomy(fs, "/tax/old", nil)
	if err != nil {
		t.Fatalf("load old: %v", err)
	}
	newTree, err := LoadNCBITaxonomy(fs, "/tax/new", nil)
	if err != nil {
		t.Fatalf("load new: %v", err)
	}

	changes := CompareVersions(oldTree, newTree)
	if changes.Reclassifications[taxon.ID(4)] != taxon.ID(2) {
		t.Fatalf("expected taxon 4 reclassified to parent 2, got %v", changes.Reclassifications)
	}
	foundNew := false
	for _, id := range changes.NewTaxa {
		if id == taxon.ID(5) {
			foundNew = true
		}
	}
	if !foundNew {
		t.Fatalf("expected taxon 5 in NewTaxa, got %v", changes.NewTaxa)
	}
}

func TestCompareVersionsFlagsAmbiguousMerge(t *testing.T) {
	// taxon 10 is deprecated; its two former children now sit under
	// unrelated new parents 100 and 200, so no single merge target exists.
	old := &Tree{
		Root: taxon.Root,
		Nodes: map[taxon.ID]*Node{
			taxon.Root: {ID: taxon.Root, Children: []taxon.ID{10}},
			10:         {ID: 10, Parent: taxon.Root, Children: []taxon.ID{20, 30}},
			20:         {ID: 20, Parent: 10},
			30:         {ID: 30, Parent: 10},
		},
	}
	new := &Tree{
		Root: taxon.Root,
		Nodes: map[taxon.ID]*Node{
			taxon.Root: {ID: taxon.Root, Children: []taxon.ID{100, 200}},
			100:        {ID: 100, Parent: taxon.Root, Children: []taxon.ID{20}},
			200:        {ID: 200, Parent: taxon.Root, Children: []taxon.ID{30}},
			20:         {ID: 20, Parent: 100},
			30:         {ID: 30, Parent: 200},
		},
	}

	changes := CompareVersions(old, new)
	candidates, ok := changes.AmbiguousReclassifications[taxon.ID(10)]
	if !ok {
		t.Fatalf("expected taxon 10 flagged as ambiguous, got %+v", changes.AmbiguousReclassifications)
	}
	if len(candidates) != 2 || candidates[0] != 100 || candidates[1] != 200 {
		t.Fatalf("expected candidates [100 200], got %v", candidates)
	}
	if _, merged := changes.MergedTaxa[taxon.ID(10)]; merged {
		t.Fatalf("ambiguous merge must not also appear in MergedTaxa")
	}
}

func TestManagerCurrentPointerRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDump(t, fs, "/tax/versions/2026-01-01", sampleNodes, sampleNames)

	m, err := NewManager(fs, "/tax", zerolog.Nop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.SetCurrent("2026-01-01"); err != nil {
		t.Fatalf("set current: %v", err)
	}
	tag, err := m.CurrentTag()
	if err != nil {
		t.Fatalf("current tag: %v", err)
	}
	if tag != "2026-01-01" {
		t.Fatalf("tag = %q", tag)
	}

	tree, v, err := m.LoadCurrent(nil)
	if err != nil {
		t.Fatalf("load current: %v", err)
	}
	if v.NodeCount != len(tree.Nodes) {
		t.Fatalf("version node count mismatch")
	}

	lineage, err := m.GetLineage(taxon.ID(3))
	if err != nil {
		t.Fatalf("get lineage: %v", err)
	}
	if len(lineage) != 3 {
		t.Fatalf("lineage length = %d", len(lineage))
	}
}

func TestManagerNoTaxonomyLoadedError(t *testing.T) {
	fs := afero.NewMemMapFs()
	m, err := NewManager(fs, "/tax", zerolog.Nop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.GetLineage(taxon.ID(1)); err == nil {
		t.Fatalf("expected NoTaxonomy error")
	}
}
