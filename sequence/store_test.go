package sequence

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"talaria/hashid"
	"talaria/internal/talerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sequence.db")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSequenceDedupesByNormalizedBytes(t *testing.T) {
	s := newTestStore(t)

	h1, new1, err := s.StoreSequence([]byte("acgt\nACGT"), ">sp|P12345|NAME_ORG OX=9606", "uniprot")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !new1 {
		t.Fatalf("expected first store to be new")
	}

	h2, new2, err := s.StoreSequence([]byte("ACGTACGT"), ">sp|P99999|OTHER_ORG OX=9606", "uniprot")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if new2 {
		t.Fatalf("expected second store (same normalized bytes) to be a duplicate")
	}
	if h1 != h2 {
		t.Fatalf("normalized-equal inputs hashed differently")
	}

	reps, err := s.LoadRepresentations(h1)
	if err != nil {
		t.Fatalf("load representations: %v", err)
	}
	if len(reps) != 2 {
		t.Fatalf("expected 2 representations, got %d", len(reps))
	}
}

func TestStoreSequenceRepresentationIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	header := ">sp|P12345|NAME_ORG OX=9606"

	h, _, err := s.StoreSequence([]byte("MKV"), header, "uniprot")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, _, err := s.StoreSequence([]byte("MKV"), header, "uniprot"); err != nil {
		t.Fatalf("store: %v", err)
	}

	reps, err := s.LoadRepresentations(h)
	if err != nil {
		t.Fatalf("load representations: %v", err)
	}
	if len(reps) != 1 {
		t.Fatalf("expected duplicate (accession, source) to be a no-op, got %d representations", len(reps))
	}
}

func TestLoadCanonicalNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadCanonical(hashid.Sum([]byte("never stored")))
	if !talerr.Is(err, talerr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestStoreSequencesBatchPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	items := []BatchItem{
		{Bytes: []byte("AAAA"), Header: ">sp|A1|X", Source: "uniprot"},
		{Bytes: []byte("CCCC"), Header: ">sp|C1|Y", Source: "uniprot"},
		{Bytes: []byte("GGGG"), Header: ">sp|G1|Z", Source: "uniprot"},
	}
	results, err := s.StoreSequencesBatch(items)
	if err != nil {
		t.Fatalf("batch store: %v", err)
	}
	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("item %d: %v", i, r.Err)
		}
		if !r.IsNew {
			t.Fatalf("item %d: expected new canonical", i)
		}
	}
}

func TestClassifyKindDistinguishesDNAAndProtein(t *testing.T) {
	s := newTestStore(t)
	dnaHash, _, err := s.StoreSequence([]byte("ACGTACGTACGT"), ">sp|D1|DNA", "ncbi")
	if err != nil {
		t.Fatalf("store dna: %v", err)
	}
	rec, err := s.LoadCanonical(dnaHash)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Kind != DNA {
		t.Fatalf("expected DNA, got %s", rec.Kind)
	}

	proteinHash, _, err := s.StoreSequence([]byte("MKVLEFQ"), ">sp|P1|PROT", "uniprot")
	if err != nil {
		t.Fatalf("store protein: %v", err)
	}
	prec, err := s.LoadCanonical(proteinHash)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if prec.Kind != Protein {
		t.Fatalf("expected Protein, got %s", prec.Kind)
	}
}
