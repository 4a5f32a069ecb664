package envpaths

import (
	"path/filepath"
	"testing"
)

func TestResolveFallsBackToMoreGeneral(t *testing.T) {
	t.Setenv("TALARIA_HOME", "")
	t.Setenv("TALARIA_DATA_DIR", "/srv/talaria")
	t.Setenv("TALARIA_DATABASES_DIR", "")
	t.Setenv("TALARIA_TOOLS_DIR", "")
	t.Setenv("TALARIA_CACHE_DIR", "")
	t.Setenv("TALARIA_TAXONOMY_DIR", "")

	p := Resolve()
	if p.DataDir != "/srv/talaria" {
		t.Fatalf("data dir = %q", p.DataDir)
	}
	if p.DatabasesDir != filepath.Join("/srv/talaria", "databases") {
		t.Fatalf("databases dir = %q", p.DatabasesDir)
	}
	if p.TaxonomyDir != filepath.Join("/srv/talaria", "taxonomy") {
		t.Fatalf("taxonomy dir = %q", p.TaxonomyDir)
	}
}

func TestResolveMoreSpecificWins(t *testing.T) {
	t.Setenv("TALARIA_HOME", "/home/u/.talaria")
	t.Setenv("TALARIA_DATA_DIR", "/home/u/.talaria")
	t.Setenv("TALARIA_DATABASES_DIR", "/mnt/bigdisk/databases")
	t.Setenv("TALARIA_TOOLS_DIR", "")
	t.Setenv("TALARIA_CACHE_DIR", "")
	t.Setenv("TALARIA_TAXONOMY_DIR", "")

	p := Resolve()
	if p.DatabasesDir != "/mnt/bigdisk/databases" {
		t.Fatalf("databases dir = %q", p.DatabasesDir)
	}
}
