package taxonomy

import (
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"talaria/internal/talerr"
	"talaria/taxon"
)

const currentMarkerName = "CURRENT"

// Manager owns versioned taxonomy loads under <taxonomyDir>/versions/<date>/
// with a CURRENT pointer file naming the active date. A plain marker file
// (rather than a POSIX symlink / Windows junction) keeps the pointer
// portable across afero backends and host platforms while preserving the
// same external contract: the pointer names the active version directory.
type Manager struct {
	fs   afero.Fs
	root string
	log  zerolog.Logger

	lineageCache *lru.Cache[taxon.ID, []taxon.ID]
	loaded       *Tree
	loadedTag    string
}

// NewManager creates a Manager rooted at <root>/versions.
func NewManager(fs afero.Fs, root string, log zerolog.Logger) (*Manager, error) {
	cache, err := lru.New[taxon.ID, []taxon.ID](4096)
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "init lineage cache", err)
	}
	return &Manager{
		fs:           fs,
		root:         path.Join(root, "versions"),
		log:          log.With().Str("component", "taxonomy").Logger(),
		lineageCache: cache,
	}, nil
}

func (m *Manager) versionDir(tag string) string {
	return path.Join(m.root, tag)
}

// Load loads the taxonomy dump at versionDir(tag) and marks it as the
// manager's active in-memory tree.
func (m *Manager) Load(tag string, progress ProgressFunc) (*Tree, Version, error) {
	dir := m.versionDir(tag)
	tree, err := LoadNCBITaxonomy(m.fs, dir, progress)
	if err != nil {
		return nil, Version{}, err
	}
	v := Version{
		VersionTag: tag,
		RootHash:   tree.RootHash(),
		NodeCount:  len(tree.Nodes),
		Source:     dir,
		ActiveTaxa: activeTaxaOf(tree),
	}
	m.loaded = tree
	m.loadedTag = tag
	m.lineageCache.Purge()
	return tree, v, nil
}

func activeTaxaOf(tree *Tree) taxon.Set {
	s := make(taxon.Set, len(tree.Nodes))
	for id := range tree.Nodes {
		s[id] = struct{}{}
	}
	return s
}

// SetCurrent writes the CURRENT marker, making tag the active version.
func (m *Manager) SetCurrent(tag string) error {
	if err := m.fs.MkdirAll(m.root, 0o755); err != nil {
		return talerr.Wrap(talerr.IOFailure, "create versions dir", err)
	}
	marker := path.Join(m.root, currentMarkerName)
	if err := afero.WriteFile(m.fs, marker, []byte(strings.TrimSpace(tag)+"\n"), 0o644); err != nil {
		return talerr.Wrap(talerr.IOFailure, "write CURRENT marker", err)
	}
	return nil
}

// CurrentTag reads the active version tag from the CURRENT marker.
func (m *Manager) CurrentTag() (string, error) {
	marker := path.Join(m.root, currentMarkerName)
	raw, err := afero.ReadFile(m.fs, marker)
	if err != nil {
		return "", talerr.New(talerr.NoTaxonomy, "no current taxonomy version set")
	}
	return strings.TrimSpace(string(raw)), nil
}

// LoadCurrent loads whatever version CURRENT names.
func (m *Manager) LoadCurrent(progress ProgressFunc) (*Tree, Version, error) {
	tag, err := m.CurrentTag()
	if err != nil {
		return nil, Version{}, err
	}
	return m.Load(tag, progress)
}

// GetLineage resolves id's lineage against the manager's currently loaded
// tree, caching results keyed on id (the cache is purged on every Load).
func (m *Manager) GetLineage(id taxon.ID) ([]taxon.ID, error) {
	if m.loaded == nil {
		return nil, talerr.New(talerr.NoTaxonomy, "no taxonomy loaded")
	}
	if cached, ok := m.lineageCache.Get(id); ok {
		return cached, nil
	}
	lineage, err := m.loaded.GetLineage(id)
	if err != nil {
		return nil, err
	}
	m.lineageCache.Add(id, lineage)
	return lineage, nil
}

// CompareVersionTags loads two version tags and compares them via
// CompareVersions, without disturbing the manager's currently loaded tree.
func (m *Manager) CompareVersionTags(oldTag, newTag string) (TaxonomyChanges, error) {
	oldTree, err := LoadNCBITaxonomy(m.fs, m.versionDir(oldTag), nil)
	if err != nil {
		return TaxonomyChanges{}, err
	}
	newTree, err := LoadNCBITaxonomy(m.fs, m.versionDir(newTag), nil)
	if err != nil {
		return TaxonomyChanges{}, err
	}
	return CompareVersions(oldTree, newTree), nil
}
