// Package envpaths resolves the repository's on-disk layout from the
// TALARIA_* environment variables (spec §6), once, so the result can be
// cached on a Repository instead of re-read from the environment on every
// call (Design Notes §9, Global mutable state).
package envpaths

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths is the fully resolved, already-defaulted set of directories a
// Repository needs.
type Paths struct {
	Home         string
	DataDir      string
	DatabasesDir string
	ToolsDir     string
	CacheDir     string
	TaxonomyDir  string
}

// Resolve reads TALARIA_HOME, TALARIA_DATA_DIR, TALARIA_DATABASES_DIR,
// TALARIA_TOOLS_DIR, TALARIA_CACHE_DIR, and TALARIA_TAXONOMY_DIR, applying
// the fallback chain described in spec §6: each more-specific variable
// falls back to the more general one, and TALARIA_HOME itself falls back to
// a platform default under the user's home directory.
func Resolve() Paths {
	home := firstNonEmpty(os.Getenv("TALARIA_HOME"), defaultHome())
	dataDir := firstNonEmpty(os.Getenv("TALARIA_DATA_DIR"), home)

	return Paths{
		Home:         home,
		DataDir:      dataDir,
		DatabasesDir: firstNonEmpty(os.Getenv("TALARIA_DATABASES_DIR"), filepath.Join(dataDir, "databases")),
		ToolsDir:     firstNonEmpty(os.Getenv("TALARIA_TOOLS_DIR"), filepath.Join(dataDir, "tools")),
		CacheDir:     firstNonEmpty(os.Getenv("TALARIA_CACHE_DIR"), filepath.Join(dataDir, "cache")),
		TaxonomyDir:  firstNonEmpty(os.Getenv("TALARIA_TAXONOMY_DIR"), filepath.Join(dataDir, "taxonomy")),
	}
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		if runtime.GOOS == "windows" {
			return `.talaria`
		}
		return ".talaria"
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(home, ".talaria")
	}
	return filepath.Join(home, ".talaria")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// EnsureAll creates every directory named by p, so a fresh Repository can be
// opened against an empty home.
func EnsureAll(p Paths) error {
	for _, dir := range []string{p.Home, p.DataDir, p.DatabasesDir, p.ToolsDir, p.CacheDir, p.TaxonomyDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
