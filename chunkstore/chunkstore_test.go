package chunkstore

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"talaria/hashid"
	"talaria/internal/talerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := Open(fs, "/store", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("ACGTACGTACGT")

	h, err := s.Store(data)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if h != hashid.Sum(data) {
		t.Fatalf("hash mismatch")
	}

	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round-trip mismatch: got %q", got)
	}
}

func TestStoreIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("repeat me")

	h1, err := s.Store(data)
	if err != nil {
		t.Fatalf("first store: %v", err)
	}
	h2, err := s.Store(data)
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash changed across idempotent stores")
	}
}

func TestLargeCompressibleDataRoundTrips(t *testing.T) {
	s := newTestStore(t)
	data := []byte(strings.Repeat("ACGT", 1000)) // > 1024 bytes, highly compressible

	h, err := s.Store(data)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round-trip mismatch for compressed chunk")
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(hashid.Sum([]byte("never stored")))
	if !talerr.Is(err, talerr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestHasReflectsPresence(t *testing.T) {
	s := newTestStore(t)
	data := []byte("present")
	h, _ := s.Store(data)
	if !s.Has(h) {
		t.Fatalf("expected Has to report true for stored chunk")
	}
	if s.Has(hashid.Sum([]byte("absent"))) {
		t.Fatalf("expected Has to report false for unstored chunk")
	}
}

func TestEnumerateListsAllStoredChunks(t *testing.T) {
	s := newTestStore(t)
	h1, _ := s.Store([]byte("one"))
	h2, _ := s.Store([]byte("two"))

	infos, err := s.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	seen := map[hashid.Hash]bool{}
	for _, info := range infos {
		seen[info.Hash] = true
	}
	if !seen[h1] || !seen[h2] {
		t.Fatalf("enumerate missed a stored chunk: %+v", infos)
	}
}

func TestVerifyAllDetectsCorruption(t *testing.T) {
	s := newTestStore(t)
	h, _ := s.Store([]byte("trustworthy"))

	path := s.shardPath(h)
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := afero.WriteFile(s.fs, path, raw, 0o644); err != nil {
		t.Fatalf("write corrupted: %v", err)
	}

	errs, err := s.VerifyAll()
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 verification error, got %d", len(errs))
	}
}

func TestGCRemovesUnreferencedChunks(t *testing.T) {
	s := newTestStore(t)
	keep, _ := s.Store([]byte("keep me"))
	drop, _ := s.Store([]byte("drop me"))

	result, err := s.GC(map[hashid.Hash]struct{}{keep: {}})
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if result.Removed != 1 {
		t.Fatalf("expected 1 removed, got %d", result.Removed)
	}
	if !s.Has(keep) {
		t.Fatalf("GC removed a referenced chunk")
	}
	if s.Has(drop) {
		t.Fatalf("GC left an unreferenced chunk in place")
	}
}
