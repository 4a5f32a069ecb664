package procstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"talaria/hashid"
	"talaria/internal/talerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procstate.db")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStartProcessingThenCheckResumableMatchingManifest(t *testing.T) {
	s := newTestStore(t)
	mh := hashid.Sum([]byte("manifest-v1"))

	id, err := s.StartProcessing(KindChunk, mh, "v1", 10, "ncbi-nr")
	if err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a non-empty operation id")
	}

	st, err := s.CheckResumable(KindChunk, "ncbi-nr", mh, "v1")
	if err != nil {
		t.Fatalf("CheckResumable: %v", err)
	}
	if st == nil {
		t.Fatalf("expected a resumable state")
	}
	if st.OperationID != id {
		t.Fatalf("expected operation id %q, got %q", id, st.OperationID)
	}
	if st.TotalChunks != 10 {
		t.Fatalf("expected total_chunks 10, got %d", st.TotalChunks)
	}
}

func TestCheckResumableDiscardsOnManifestMismatch(t *testing.T) {
	s := newTestStore(t)
	mh := hashid.Sum([]byte("manifest-v1"))

	if _, err := s.StartProcessing(KindChunk, mh, "v1", 10, "ncbi-nr"); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	otherHash := hashid.Sum([]byte("manifest-v2"))
	st, err := s.CheckResumable(KindChunk, "ncbi-nr", otherHash, "v1")
	if err != nil {
		t.Fatalf("CheckResumable: %v", err)
	}
	if st != nil {
		t.Fatalf("expected stale state (manifest_hash mismatch) to be discarded, got %+v", st)
	}

	st, err = s.CheckResumable(KindChunk, "ncbi-nr", mh, "v2")
	if err != nil {
		t.Fatalf("CheckResumable: %v", err)
	}
	if st != nil {
		t.Fatalf("expected stale state (manifest_version mismatch) to be discarded, got %+v", st)
	}
}

func TestUpdateProcessingStateSkipsAlreadyCompletedChunks(t *testing.T) {
	s := newTestStore(t)
	mh := hashid.Sum([]byte("manifest-v1"))
	id, err := s.StartProcessing(KindDownload, mh, "v1", 3, "uniprot")
	if err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	c1 := hashid.Sum([]byte("chunk-1"))
	c2 := hashid.Sum([]byte("chunk-2"))

	if err := s.UpdateProcessingState(id, []hashid.Hash{c1}); err != nil {
		t.Fatalf("UpdateProcessingState: %v", err)
	}
	if err := s.UpdateProcessingState(id, []hashid.Hash{c1, c2}); err != nil {
		t.Fatalf("UpdateProcessingState: %v", err)
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.CompletedChunks) != 2 {
		t.Fatalf("expected 2 distinct completed chunks, got %+v", got.CompletedChunks)
	}
	if got.Remaining() != 1 {
		t.Fatalf("expected 1 remaining chunk, got %d", got.Remaining())
	}
}

func TestCompleteProcessingRemovesFromResumableList(t *testing.T) {
	s := newTestStore(t)
	mh := hashid.Sum([]byte("manifest-v1"))
	id, err := s.StartProcessing(KindReduce, mh, "v1", 1, "ncbi-nr")
	if err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	list, err := s.ListResumableOperations()
	if err != nil {
		t.Fatalf("ListResumableOperations: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 resumable operation before completion, got %d", len(list))
	}

	if err := s.CompleteProcessing(id); err != nil {
		t.Fatalf("CompleteProcessing: %v", err)
	}

	list, err = s.ListResumableOperations()
	if err != nil {
		t.Fatalf("ListResumableOperations: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected 0 resumable operations after completion, got %d", len(list))
	}

	st, err := s.CheckResumable(KindReduce, "ncbi-nr", mh, "v1")
	if err != nil {
		t.Fatalf("CheckResumable: %v", err)
	}
	if st != nil {
		t.Fatalf("expected a completed operation to not be offered for resume")
	}
}

func TestStartProcessingReplacesPriorRecordForSameSource(t *testing.T) {
	s := newTestStore(t)
	mh1 := hashid.Sum([]byte("manifest-v1"))
	mh2 := hashid.Sum([]byte("manifest-v2"))

	first, err := s.StartProcessing(KindChunk, mh1, "v1", 5, "ncbi-nr")
	if err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	second, err := s.StartProcessing(KindChunk, mh2, "v2", 5, "ncbi-nr")
	if err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	if _, err := s.Get(first); !talerr.Is(err, talerr.NotFound) {
		t.Fatalf("expected replaced record to be gone, got err=%v", err)
	}

	st, err := s.CheckResumable(KindChunk, "ncbi-nr", mh2, "v2")
	if err != nil {
		t.Fatalf("CheckResumable: %v", err)
	}
	if st == nil || st.OperationID != second {
		t.Fatalf("expected the current record to be the second operation, got %+v", st)
	}
}

func TestCleanupExpiredStatesRemovesOnlyExpiredRecords(t *testing.T) {
	s := newTestStore(t)
	mh := hashid.Sum([]byte("manifest-v1"))
	fresh, err := s.StartProcessing(KindChunk, mh, "v1", 1, "fresh-source")
	if err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	stale, err := s.StartProcessing(KindChunk, mh, "v1", 1, "stale-source")
	if err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	// Force the second record's expiry into the past directly via bbolt,
	// since UpdateProcessingState always resets expires_at to now+7d.
	st, err := s.Get(stale)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	st.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	err = s.db.Update(func(tx *bolt.Tx) error {
		enc, err := s.encode(*st)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketStates).Put([]byte(st.OperationID), enc)
	})
	if err != nil {
		t.Fatalf("force expiry: %v", err)
	}

	removed, err := s.CleanupExpiredStates()
	if err != nil {
		t.Fatalf("CleanupExpiredStates: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed record, got %d", removed)
	}

	if _, err := s.Get(fresh); err != nil {
		t.Fatalf("expected the fresh record to survive cleanup: %v", err)
	}
	if _, err := s.Get(stale); !talerr.Is(err, talerr.NotFound) {
		t.Fatalf("expected the stale record to be gone, got err=%v", err)
	}
}
