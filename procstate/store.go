package procstate

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ugorji/go/codec"
	bolt "go.etcd.io/bbolt"

	"talaria/hashid"
	"talaria/internal/talerr"
)

var (
	bucketStates   = []byte("processing_states")
	bucketBySource = []byte("processing_states_by_source")
)

// Store is the bbolt-backed processing-state tracker. One current record is
// kept per (kind, source) pair; starting a new operation for an occupied
// slot replaces whatever record was there (spec §3).
type Store struct {
	db  *bolt.DB
	log zerolog.Logger
	mh  codec.MsgpackHandle
}

// Open opens (creating if absent) a processing-state store at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "open processing state store", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketStates, bucketBySource} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, talerr.Wrap(talerr.IOFailure, "init processing state buckets", err)
	}
	return &Store{db: db, log: log.With().Str("component", "procstate").Logger()}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) encode(v any) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &s.mh)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Store) decode(b []byte, v any) error {
	dec := codec.NewDecoderBytes(b, &s.mh)
	return dec.Decode(v)
}

// StartProcessing begins tracking a new operation, replacing any existing
// current record for the same (kind, source) pair, and returns the new
// operation's id (spec §4.K start_processing).
func (s *Store) StartProcessing(kind Kind, manifestHash hashid.Hash, manifestVersion string, totalChunks int, source string) (string, error) {
	now := time.Now().UTC()
	st := State{
		OperationID:     uuid.NewString(),
		Kind:            kind,
		ManifestHash:    manifestHash,
		ManifestVersion: manifestVersion,
		TotalChunks:     totalChunks,
		SourceInfo:      source,
		StartedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(DefaultExpiry),
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		enc, err := s.encode(st)
		if err != nil {
			return err
		}
		states := tx.Bucket(bucketStates)
		if err := states.Put([]byte(st.OperationID), enc); err != nil {
			return err
		}

		bySource := tx.Bucket(bucketBySource)
		key := []byte(sourceKey(kind, source))
		if prev := bySource.Get(key); prev != nil {
			if err := states.Delete(prev); err != nil {
				return err
			}
		}
		return bySource.Put(key, []byte(st.OperationID))
	})
	if err != nil {
		return "", talerr.Wrap(talerr.IOFailure, "start processing", err)
	}

	s.log.Info().
		Str("operation_id", st.OperationID).
		Str("kind", string(kind)).
		Str("source", source).
		Int("total_chunks", totalChunks).
		Msg("processing started")
	return st.OperationID, nil
}

// CheckResumable looks up the current record for (kind, source) and reports
// it only if its manifest identity matches; a stale record (different
// manifest_hash or manifest_version) is treated as absent, per resume
// semantics (spec §4.K: "a caller decides to resume iff manifest_hash and
// manifest_version match, otherwise the stale state is discarded").
func (s *Store) CheckResumable(kind Kind, source string, manifestHash hashid.Hash, manifestVersion string) (*State, error) {
	st, ok, err := s.currentFor(kind, source)
	if err != nil {
		return nil, err
	}
	if !ok || st.Done {
		return nil, nil
	}
	if st.ManifestHash != manifestHash || st.ManifestVersion != manifestVersion {
		return nil, nil
	}
	return &st, nil
}

func (s *Store) currentFor(kind Kind, source string) (State, bool, error) {
	var st State
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketBySource).Get([]byte(sourceKey(kind, source)))
		if id == nil {
			return nil
		}
		raw := tx.Bucket(bucketStates).Get(id)
		if raw == nil {
			return nil
		}
		if err := s.decode(raw, &st); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return State{}, false, talerr.Wrap(talerr.IOFailure, "read processing state", err)
	}
	return st, found, nil
}

// Get loads a processing state by its operation id.
func (s *Store) Get(operationID string) (*State, error) {
	var st State
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketStates).Get([]byte(operationID))
		if raw == nil {
			return nil
		}
		found = true
		return s.decode(raw, &st)
	})
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "read processing state", err)
	}
	if !found {
		return nil, talerr.Newf(talerr.NotFound, "processing state %q", operationID)
	}
	return &st, nil
}

// UpdateProcessingState appends newly completed chunk hashes to an
// operation's record and bumps updated_at/expires_at (spec §4.K
// update_processing_state).
func (s *Store) UpdateProcessingState(operationID string, completed []hashid.Hash) error {
	now := time.Now().UTC()
	err := s.db.Update(func(tx *bolt.Tx) error {
		states := tx.Bucket(bucketStates)
		raw := states.Get([]byte(operationID))
		if raw == nil {
			return talerr.Newf(talerr.NotFound, "processing state %q", operationID)
		}
		var st State
		if err := s.decode(raw, &st); err != nil {
			return err
		}
		for _, h := range completed {
			if !st.IsCompletedChunk(h) {
				st.CompletedChunks = append(st.CompletedChunks, h)
			}
		}
		st.UpdatedAt = now
		st.ExpiresAt = now.Add(DefaultExpiry)
		enc, err := s.encode(st)
		if err != nil {
			return err
		}
		return states.Put([]byte(operationID), enc)
	})
	if err != nil {
		if talerr.Is(err, talerr.NotFound) {
			return err
		}
		return talerr.Wrap(talerr.IOFailure, "update processing state", err)
	}
	return nil
}

// CompleteProcessing marks an operation done. Completed records remain
// readable until they expire or are swept by CleanupExpiredStates, but are
// no longer offered by CheckResumable (spec §4.K complete_processing).
func (s *Store) CompleteProcessing(operationID string) error {
	now := time.Now().UTC()
	err := s.db.Update(func(tx *bolt.Tx) error {
		states := tx.Bucket(bucketStates)
		raw := states.Get([]byte(operationID))
		if raw == nil {
			return talerr.Newf(talerr.NotFound, "processing state %q", operationID)
		}
		var st State
		if err := s.decode(raw, &st); err != nil {
			return err
		}
		st.Done = true
		st.UpdatedAt = now
		enc, err := s.encode(st)
		if err != nil {
			return err
		}
		return states.Put([]byte(operationID), enc)
	})
	if err != nil {
		if talerr.Is(err, talerr.NotFound) {
			return err
		}
		return talerr.Wrap(talerr.IOFailure, "complete processing", err)
	}
	s.log.Info().Str("operation_id", operationID).Msg("processing complete")
	return nil
}

// ListResumableOperations returns every not-done, not-expired record (spec
// §4.K list_resumable_operations).
func (s *Store) ListResumableOperations() ([]State, error) {
	now := time.Now().UTC()
	var out []State
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStates).ForEach(func(_, v []byte) error {
			var st State
			if err := s.decode(v, &st); err != nil {
				return err
			}
			if !st.Done && !st.Expired(now) {
				out = append(out, st)
			}
			return nil
		})
	})
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "list resumable operations", err)
	}
	return out, nil
}

// CleanupExpiredStates deletes every record past its expires_at and
// reports how many were removed (spec §4.K cleanup_expired_states).
func (s *Store) CleanupExpiredStates() (int, error) {
	now := time.Now().UTC()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		states := tx.Bucket(bucketStates)
		bySource := tx.Bucket(bucketBySource)

		var toDelete []State
		if err := states.ForEach(func(_, v []byte) error {
			var st State
			if err := s.decode(v, &st); err != nil {
				return err
			}
			if st.Expired(now) {
				toDelete = append(toDelete, st)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, st := range toDelete {
			if err := states.Delete([]byte(st.OperationID)); err != nil {
				return err
			}
			key := []byte(sourceKey(st.Kind, st.SourceInfo))
			if cur := bySource.Get(key); cur != nil && string(cur) == st.OperationID {
				if err := bySource.Delete(key); err != nil {
					return err
				}
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, talerr.Wrap(talerr.IOFailure, "cleanup expired processing states", err)
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("expired processing states cleaned up")
	}
	return removed, nil
}
