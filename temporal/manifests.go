package temporal

import (
	"path"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"talaria/internal/talerr"
	"talaria/manifest"
)

// ManifestCache memoizes manifest snapshot loads by their file name, since
// get_chunks_at_time is typically called repeatedly for nearby coordinates
// that resolve to the same on-disk snapshot.
type ManifestCache struct {
	cache *lru.Cache[string, manifest.TemporalManifest]
}

// NewManifestCache creates a cache holding up to size recently loaded
// manifest snapshots.
func NewManifestCache(size int) (*ManifestCache, error) {
	c, err := lru.New[string, manifest.TemporalManifest](size)
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "init manifest cache", err)
	}
	return &ManifestCache{cache: c}, nil
}

const manifestTimeLayout = "2006-01-02_15-04-05"

// ManifestDir is the directory under a repository's temporal root holding
// dated manifest snapshots (spec §6: temporal/manifests/).
const ManifestDir = "manifests"

// manifestFileName formats t the way manifest snapshots are named on disk.
func manifestFileName(t time.Time) string {
	return "manifest_" + t.UTC().Format(manifestTimeLayout) + ".json"
}

// listManifestTimes scans dir for manifest_*.json files and returns their
// timestamps, ascending.
func listManifestTimes(fs afero.Fs, dir string) ([]time.Time, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "list manifest snapshots", err)
	}
	var times []time.Time
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "manifest_") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, "manifest_"), path.Ext(name))
		t, err := time.Parse(manifestTimeLayout, stamp)
		if err != nil {
			continue
		}
		times = append(times, t.UTC())
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times, nil
}

// GetChunksAtTime loads the manifest at the matching or latest-earlier
// snapshot relative to coord.SequenceTime under <root>/manifests/, and
// returns its chunk index (spec §4.G get_chunks_at_time). cache may be nil,
// in which case every call reads through to fs.
func GetChunksAtTime(fs afero.Fs, root string, coord Coordinate, cache *ManifestCache) ([]manifest.ChunkMetadata, error) {
	dir := path.Join(root, ManifestDir)
	times, err := listManifestTimes(fs, dir)
	if err != nil {
		return nil, err
	}
	i := sort.Search(len(times), func(i int) bool { return times[i].After(coord.SequenceTime) })
	if i == 0 {
		return nil, talerr.Newf(talerr.NotFound, "no manifest snapshot at or before %s", coord.SequenceTime)
	}
	chosen := times[i-1]
	file := manifestFileName(chosen)

	if cache != nil {
		if m, ok := cache.cache.Get(file); ok {
			return m.ChunkIndex, nil
		}
	}

	m, err := manifest.Load(fs, path.Join(dir, file))
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.cache.Add(file, m)
	}
	return m.ChunkIndex, nil
}

// SaveManifestSnapshot writes m under <root>/manifests/ named by its
// creation timestamp, so a later GetChunksAtTime call can find it.
func SaveManifestSnapshot(fs afero.Fs, root string, m manifest.TemporalManifest) error {
	dir := path.Join(root, ManifestDir)
	return manifest.Save(fs, path.Join(dir, manifestFileName(m.CreatedAt)), m)
}
