// Package repository wires every component package into the single
// long-lived value a caller opens once per process (spec §13, Design Notes
// §9 "Global mutable state"). It mirrors the teacher's single
// node.Config/store.DB construction: one value resolves environment paths
// once and threads a shared zerolog.Logger down to every subsystem, instead
// of package-level globals.
package repository

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"talaria/chunkstore"
	"talaria/internal/envpaths"
	"talaria/procstate"
	"talaria/query"
	"talaria/seal"
	"talaria/sequence"
	"talaria/taxonomy"
	"talaria/temporal"
)

// manifestCacheSize bounds how many recently loaded temporal manifest
// snapshots ManifestCache keeps resident (spec §4.G: memoized snapshot
// loads for repeated nearby-coordinate queries).
const manifestCacheSize = 64

// Repository owns one instance of every durable subsystem: the
// content-addressed chunk store, the canonical sequence store, the
// taxonomy manager, the bi-temporal index (plus its manifest cache and
// query engine), the processing-state store, and a seal signer.
type Repository struct {
	log   zerolog.Logger
	paths envpaths.Paths
	fs    afero.Fs

	Chunks        *chunkstore.Store
	Sequences     *sequence.Store
	Taxonomy      *taxonomy.Manager
	Temporal      *temporal.Index
	ManifestCache *temporal.ManifestCache
	Query         *query.Engine
	ProcState     *procstate.Store
	Signer        seal.Signer
}

// TemporalRoot is the directory under the databases root holding dated
// manifest snapshots (spec §6: temporal/manifests/).
func (r *Repository) TemporalRoot() string { return filepath.Join(r.paths.DatabasesDir, "temporal") }

// Paths exposes the resolved on-disk layout, e.g. for callers that need the
// cache or tools directories directly.
func (r *Repository) Paths() envpaths.Paths { return r.paths }

// Open resolves internal/envpaths exactly once, creates every directory a
// fresh repository needs, and opens each subsystem against it. keystorePath
// selects the seal signer: empty means "generate and persist a fresh
// software signer under the data directory", matching the teacher's
// dev-keystore convenience path rather than requiring an operator to
// provision one before the very first run.
func Open(keystorePath string, log zerolog.Logger) (*Repository, error) {
	paths := envpaths.Resolve()
	if err := envpaths.EnsureAll(paths); err != nil {
		return nil, err
	}
	return openAt(paths, keystorePath, log)
}

func openAt(paths envpaths.Paths, keystorePath string, log zerolog.Logger) (*Repository, error) {
	fs := afero.NewOsFs()

	chunks, err := chunkstore.Open(fs, filepath.Join(paths.DatabasesDir, "chunks"), log)
	if err != nil {
		return nil, err
	}

	sequences, err := sequence.Open(filepath.Join(paths.DatabasesDir, "sequences.db"), log)
	if err != nil {
		chunks.Close()
		return nil, err
	}

	taxo, err := taxonomy.NewManager(fs, paths.TaxonomyDir, log)
	if err != nil {
		sequences.Close()
		chunks.Close()
		return nil, err
	}

	temporalRoot := filepath.Join(paths.DatabasesDir, "temporal")
	if err := fs.MkdirAll(temporalRoot, 0o755); err != nil {
		sequences.Close()
		chunks.Close()
		return nil, err
	}
	idx, err := temporal.Open(filepath.Join(temporalRoot, "index.db"), log)
	if err != nil {
		sequences.Close()
		chunks.Close()
		return nil, err
	}

	manifestCache, err := temporal.NewManifestCache(manifestCacheSize)
	if err != nil {
		idx.Close()
		sequences.Close()
		chunks.Close()
		return nil, err
	}

	procs, err := procstate.Open(filepath.Join(paths.DatabasesDir, "procstate.db"), log)
	if err != nil {
		idx.Close()
		sequences.Close()
		chunks.Close()
		return nil, err
	}

	signer, err := openSigner(keystorePath, paths, log)
	if err != nil {
		procs.Close()
		idx.Close()
		sequences.Close()
		chunks.Close()
		return nil, err
	}

	engine := query.New(fs, temporalRoot, chunks, sequences, idx, manifestCache)

	return &Repository{
		log:           log.With().Str("component", "repository").Logger(),
		paths:         paths,
		fs:            fs,
		Chunks:        chunks,
		Sequences:     sequences,
		Taxonomy:      taxo,
		Temporal:      idx,
		ManifestCache: manifestCache,
		Query:         engine,
		ProcState:     procs,
		Signer:        signer,
	}, nil
}

// openSigner loads the signer at keystorePath, or, if no path is given,
// loads (or creates and persists) the default dev keystore under the data
// directory. A caller that wants NewProductionSigner's hard "no keystore"
// refusal should call seal.NewProductionSigner directly instead of Open.
func openSigner(keystorePath string, paths envpaths.Paths, log zerolog.Logger) (seal.Signer, error) {
	if keystorePath == "" {
		keystorePath = filepath.Join(paths.DataDir, "seal-keystore.json")
	}
	if s, err := seal.LoadSoftwareSigner(keystorePath); err == nil {
		return s, nil
	}
	s, err := seal.NewSoftwareSigner()
	if err != nil {
		return nil, err
	}
	if err := s.SaveTo(keystorePath); err != nil {
		log.Warn().Err(err).Str("path", keystorePath).Msg("failed to persist new seal keystore")
	}
	return s, nil
}

// Close releases every subsystem's durable handle.
func (r *Repository) Close() error {
	var first error
	for _, c := range []interface{ Close() error }{r.ProcState, r.Temporal, r.Sequences, r.Chunks} {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
