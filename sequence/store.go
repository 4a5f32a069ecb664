// Package sequence implements the canonical sequence store (spec §4.B):
// content-addressed deduplication of sequence bytes with per-source
// representation records layered above.
package sequence

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/ugorji/go/codec"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"talaria/hashid"
	"talaria/internal/talerr"
)

var (
	bucketCanonical       = []byte("canonical")
	bucketRepresentations = []byte("representations")
)

const shardCount = 64

// Store is a bbolt-backed canonical sequence store. A small ring of
// in-memory mutexes shards concurrent batch inserts by hash, so inserts of
// the same hash are serialized; unrelated hashes share a mutex only when
// they fall in the same shard, and bbolt still runs write transactions one
// at a time (spec §5).
type Store struct {
	db     *bolt.DB
	log    zerolog.Logger
	shards [shardCount]sync.Mutex
	mh     codec.MsgpackHandle
}

// Open opens (creating if absent) a canonical sequence store at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "open sequence store", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCanonical); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketRepresentations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, talerr.Wrap(talerr.IOFailure, "init sequence store buckets", err)
	}
	return &Store{db: db, log: log.With().Str("component", "sequence").Logger()}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) shardFor(h hashid.Hash) *sync.Mutex {
	return &s.shards[int(h[0])%shardCount]
}

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

// StoreSequence normalizes bytes, hashes the result, and records it as a
// canonical sequence if not already present, augmenting the representation
// set from header/source regardless (spec §4.B).
func (s *Store) StoreSequence(raw []byte, header, source string) (hashid.Hash, bool, error) {
	normalized := normalize(raw)
	h := hashid.Sum(normalized)

	shard := s.shardFor(h)
	shard.Lock()
	defer shard.Unlock()

	now := time.Now().UTC()
	isNew := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketCanonical)
		existing := cb.Get(h[:])
		if existing == nil {
			isNew = true
			rec := CanonicalSequence{
				SequenceHash: h,
				Bytes:        normalized,
				Length:       len(normalized),
				Kind:         classifyKind(normalized),
				Checksum:     checksum(normalized),
				FirstSeen:    now,
				LastSeen:     now,
			}
			enc, err := s.encode(rec)
			if err != nil {
				return err
			}
			if err := cb.Put(h[:], enc); err != nil {
				return err
			}
		} else {
			var rec CanonicalSequence
			if err := s.decode(existing, &rec); err != nil {
				return err
			}
			rec.LastSeen = now
			enc, err := s.encode(rec)
			if err != nil {
				return err
			}
			if err := cb.Put(h[:], enc); err != nil {
				return err
			}
		}

		return s.addRepresentationLocked(tx, h, header, source, now)
	})
	if err != nil {
		return h, false, talerr.Wrap(talerr.IOFailure, "store sequence", err)
	}
	return h, isNew, nil
}

// addRepresentationLocked appends a representation record for h if
// (accession, source) is not already present; the caller holds h's shard
// lock and an open write transaction.
func (s *Store) addRepresentationLocked(tx *bolt.Tx, h hashid.Hash, header, source string, now time.Time) error {
	rb := tx.Bucket(bucketRepresentations)
	accession := parseAccession(header)
	taxonID, _ := parseInlineTaxon(header)

	var reps []Representation
	if existing := rb.Get(h[:]); existing != nil {
		if err := s.decode(existing, &reps); err != nil {
			return err
		}
	}

	for i := range reps {
		if reps[i].hasAccessionFromSource(accession, source) {
			return nil // duplicate (accession, source) pair: no-op (spec invariant)
		}
	}

	reps = append(reps, Representation{
		CanonicalHash:  h,
		Accessions:     []string{accession},
		Description:    header,
		TaxonID:        taxonID,
		SourceDatabase: source,
		FirstSeen:      now,
	})

	enc, err := s.encode(reps)
	if err != nil {
		return err
	}
	return rb.Put(h[:], enc)
}

// StoreSequencesBatch stores items in parallel, preserving per-item result
// order regardless of completion order (spec §4.B).
func (s *Store) StoreSequencesBatch(items []BatchItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))

	var g errgroup.Group
	g.SetLimit(16)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			h, isNew, err := s.StoreSequence(item.Bytes, item.Header, item.Source)
			results[i] = BatchResult{Hash: h, IsNew: isNew, Err: err}
			return nil // per-item failures are reported, not fatal to the batch
		})
	}
	_ = g.Wait() // g.Go never returns a non-nil error; results carry per-item errors
	return results, nil
}

// LoadCanonical fetches the canonical sequence record for h.
func (s *Store) LoadCanonical(h hashid.Hash) (CanonicalSequence, error) {
	var rec CanonicalSequence
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCanonical).Get(h[:])
		if raw == nil {
			return talerr.Newf(talerr.NotFound, "canonical sequence %s not found", h)
		}
		return s.decode(raw, &rec)
	})
	if err != nil {
		if talerr.Is(err, talerr.NotFound) {
			return rec, err
		}
		return rec, talerr.Wrap(talerr.IOFailure, "load canonical sequence", err)
	}
	return rec, nil
}

// LoadRepresentations fetches every representation recorded for h.
func (s *Store) LoadRepresentations(h hashid.Hash) ([]Representation, error) {
	var reps []Representation
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRepresentations).Get(h[:])
		if raw == nil {
			return nil
		}
		return s.decode(raw, &reps)
	})
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "load representations", err)
	}
	return reps, nil
}

// SaveIndices flushes durable state to disk. bbolt commits (and fsyncs) on
// every Update, so in steady state this is a no-op; it exists so callers
// sealing a version can make the "last batch flushed" guarantee explicit
// (spec §4.B) without caring about the underlying storage engine.
func (s *Store) SaveIndices() error {
	return s.db.Sync()
}
