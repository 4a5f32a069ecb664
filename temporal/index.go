package temporal

import (
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/ugorji/go/codec"
	bolt "go.etcd.io/bbolt"

	"talaria/hashid"
	"talaria/internal/talerr"
)

var (
	bucketSequenceVersions = []byte("sequence_versions")
	bucketTaxonomyVersions = []byte("taxonomy_versions")
	bucketCrossReferences  = []byte("cross_references")
)

// snapshotView is the copy-on-write read view every Index query consults.
// It is rebuilt and swapped in atomically at the end of every mutating
// call, so concurrent readers never observe a partially updated timeline
// and never contend with bbolt for a read transaction (spec §4.J: "readers
// see a consistent view via a copy-on-write snapshot pointer").
type snapshotView struct {
	sequences   []SequenceVersionEntry // ascending by Timestamp
	taxonomies  []TaxonomyVersionEntry // ascending by Timestamp
	crossRefs   []CrossReference       // ascending by CreatedAt
}

// Index is the bi-temporal index: two bbolt-backed timelines plus their
// cross-references, guarded by a single writer mutex (spec §4.J).
type Index struct {
	db  *bolt.DB
	log zerolog.Logger
	mh  codec.MsgpackHandle

	writerMu sync.Mutex
	snap     atomic.Pointer[snapshotView]
}

// Open opens (creating if absent) a temporal index at path.
func Open(path string, log zerolog.Logger) (*Index, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "open temporal index", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSequenceVersions, bucketTaxonomyVersions, bucketCrossReferences} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, talerr.Wrap(talerr.IOFailure, "init temporal index buckets", err)
	}
	idx := &Index{db: db, log: log.With().Str("component", "temporal").Logger()}
	if err := idx.rebuildSnapshotLocked(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

func timelineKey(t time.Time, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(t.UnixNano()))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func (idx *Index) encode(v any) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &idx.mh)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

func (idx *Index) decode(b []byte, v any) error {
	dec := codec.NewDecoderBytes(b, &idx.mh)
	return dec.Decode(v)
}

// AddSequenceVersion appends a new sequence-timeline entry with
// timestamp = now (spec §4.G add_sequence_version).
func (idx *Index) AddSequenceVersion(tag string, root hashid.Hash, sequenceCount, chunkCount int) (SequenceVersionEntry, error) {
	idx.writerMu.Lock()
	defer idx.writerMu.Unlock()

	entry := SequenceVersionEntry{
		Tag:           tag,
		Root:          root,
		Timestamp:     time.Now().UTC(),
		SequenceCount: sequenceCount,
		ChunkCount:    chunkCount,
	}
	err := idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSequenceVersions)
		seq, _ := b.NextSequence()
		enc, err := idx.encode(entry)
		if err != nil {
			return err
		}
		return b.Put(timelineKey(entry.Timestamp, seq), enc)
	})
	if err != nil {
		return entry, talerr.Wrap(talerr.IOFailure, "add sequence version", err)
	}
	return entry, idx.rebuildSnapshotLocked()
}

// AddTaxonomyVersion appends a new taxonomy-timeline entry with
// timestamp = now (spec §4.G add_taxonomy_version).
func (idx *Index) AddTaxonomyVersion(tag string, root hashid.Hash, nodeCount int, source string) (TaxonomyVersionEntry, error) {
	idx.writerMu.Lock()
	defer idx.writerMu.Unlock()

	entry := TaxonomyVersionEntry{
		Tag:       tag,
		Root:      root,
		Timestamp: time.Now().UTC(),
		NodeCount: nodeCount,
		Source:    source,
	}
	err := idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTaxonomyVersions)
		seq, _ := b.NextSequence()
		enc, err := idx.encode(entry)
		if err != nil {
			return err
		}
		return b.Put(timelineKey(entry.Timestamp, seq), enc)
	})
	if err != nil {
		return entry, talerr.Wrap(talerr.IOFailure, "add taxonomy version", err)
	}
	return entry, idx.rebuildSnapshotLocked()
}

// AddCrossReference records a new sequence/taxonomy pairing, closing any
// currently-open cross-reference for the same pair first (spec §4.G: "at
// most one cross-reference is open ... per pair at any time").
func (idx *Index) AddCrossReference(sequenceVersion, taxonomyVersion string, crossHash hashid.Hash) (CrossReference, error) {
	idx.writerMu.Lock()
	defer idx.writerMu.Unlock()

	now := time.Now().UTC()
	ref := CrossReference{
		SequenceVersion: sequenceVersion,
		TaxonomyVersion: taxonomyVersion,
		CreatedAt:       now,
		ValidityStart:   now,
		CrossHash:       crossHash,
	}

	err := idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCrossReferences)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var existing CrossReference
			if err := idx.decode(v, &existing); err != nil {
				return err
			}
			if existing.ValidityEnd != nil {
				continue
			}
			if existing.SequenceVersion != sequenceVersion || existing.TaxonomyVersion != taxonomyVersion {
				continue
			}
			end := now
			existing.ValidityEnd = &end
			enc, err := idx.encode(existing)
			if err != nil {
				return err
			}
			if err := b.Put(k, enc); err != nil {
				return err
			}
		}
		seq, _ := b.NextSequence()
		enc, err := idx.encode(ref)
		if err != nil {
			return err
		}
		return b.Put(timelineKey(now, seq), enc)
	})
	if err != nil {
		return ref, talerr.Wrap(talerr.IOFailure, "add cross reference", err)
	}
	return ref, idx.rebuildSnapshotLocked()
}

// rebuildSnapshotLocked reads every bucket fully and swaps in a fresh
// snapshotView. Callers must hold writerMu (or be RebuildIndex, which
// locks it itself).
func (idx *Index) rebuildSnapshotLocked() error {
	var sv snapshotView
	err := idx.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketSequenceVersions).ForEach(func(k, v []byte) error {
			var e SequenceVersionEntry
			if err := idx.decode(v, &e); err != nil {
				return err
			}
			sv.sequences = append(sv.sequences, e)
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTaxonomyVersions).ForEach(func(k, v []byte) error {
			var e TaxonomyVersionEntry
			if err := idx.decode(v, &e); err != nil {
				return err
			}
			sv.taxonomies = append(sv.taxonomies, e)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketCrossReferences).ForEach(func(k, v []byte) error {
			var e CrossReference
			if err := idx.decode(v, &e); err != nil {
				return err
			}
			sv.crossRefs = append(sv.crossRefs, e)
			return nil
		})
	})
	if err != nil {
		return talerr.Wrap(talerr.IOFailure, "rebuild temporal snapshot", err)
	}
	sort.Slice(sv.sequences, func(i, j int) bool { return sv.sequences[i].Timestamp.Before(sv.sequences[j].Timestamp) })
	sort.Slice(sv.taxonomies, func(i, j int) bool { return sv.taxonomies[i].Timestamp.Before(sv.taxonomies[j].Timestamp) })
	sort.Slice(sv.crossRefs, func(i, j int) bool { return sv.crossRefs[i].CreatedAt.Before(sv.crossRefs[j].CreatedAt) })
	idx.snap.Store(&sv)
	return nil
}

// RebuildIndex forces a full rescan of the bbolt buckets into a fresh
// snapshot (spec §4.G rebuild_index, used for crash recovery).
func (idx *Index) RebuildIndex() error {
	idx.writerMu.Lock()
	defer idx.writerMu.Unlock()
	return idx.rebuildSnapshotLocked()
}

// GetSequenceVersionAt selects the greatest-timestamp-≤-t sequence entry.
func (idx *Index) GetSequenceVersionAt(t time.Time) (*SequenceVersionEntry, bool) {
	sv := idx.snap.Load()
	entries := sv.sequences
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Timestamp.After(t) })
	if i == 0 {
		return nil, false
	}
	e := entries[i-1]
	return &e, true
}

// GetTaxonomyVersionAt selects the greatest-timestamp-≤-t taxonomy entry.
func (idx *Index) GetTaxonomyVersionAt(t time.Time) (*TaxonomyVersionEntry, bool) {
	sv := idx.snap.Load()
	entries := sv.taxonomies
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Timestamp.After(t) })
	if i == 0 {
		return nil, false
	}
	e := entries[i-1]
	return &e, true
}

func (idx *Index) activeCrossReferenceAt(t time.Time) (*CrossReference, bool) {
	sv := idx.snap.Load()
	var best *CrossReference
	for i := range sv.crossRefs {
		c := sv.crossRefs[i]
		if c.ValidityStart.After(t) {
			continue
		}
		if c.ValidityEnd != nil && !c.ValidityEnd.After(t) {
			continue
		}
		if best == nil || c.ValidityStart.After(best.ValidityStart) {
			cc := c
			best = &cc
		}
	}
	return best, best != nil
}

// GetStateAt answers get_state_at: the state of both timelines and any
// active cross-reference as of t (spec §4.G).
func (idx *Index) GetStateAt(t time.Time) State {
	var st State
	st.SequenceVersion, _ = idx.GetSequenceVersionAt(t)
	st.TaxonomyVersion, _ = idx.GetTaxonomyVersionAt(t)
	st.CrossReference, _ = idx.activeCrossReferenceAt(t)
	return st
}

// GetTimeline interleaves every event across all three streams in
// [start, end], sorted by timestamp (spec §4.G get_timeline).
func (idx *Index) GetTimeline(start, end time.Time) Timeline {
	sv := idx.snap.Load()
	var events []Event
	for i := range sv.sequences {
		e := sv.sequences[i]
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		events = append(events, Event{Kind: EventSequenceUpdate, Timestamp: e.Timestamp, Sequence: &e})
	}
	for i := range sv.taxonomies {
		e := sv.taxonomies[i]
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		events = append(events, Event{Kind: EventTaxonomyUpdate, Timestamp: e.Timestamp, Taxonomy: &e})
	}
	for i := range sv.crossRefs {
		e := sv.crossRefs[i]
		if e.CreatedAt.Before(start) || e.CreatedAt.After(end) {
			continue
		}
		events = append(events, Event{Kind: EventCrossReference, Timestamp: e.CreatedAt, Cross: &e})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return Timeline{Events: events}
}

// ListVersionsBefore returns every sequence and taxonomy entry with a
// timestamp strictly before cutoff (spec §4.G list_versions_before).
func (idx *Index) ListVersionsBefore(cutoff time.Time) ([]SequenceVersionEntry, []TaxonomyVersionEntry) {
	sv := idx.snap.Load()
	var seqs []SequenceVersionEntry
	for _, e := range sv.sequences {
		if e.Timestamp.Before(cutoff) {
			seqs = append(seqs, e)
		}
	}
	var taxa []TaxonomyVersionEntry
	for _, e := range sv.taxonomies {
		if e.Timestamp.Before(cutoff) {
			taxa = append(taxa, e)
		}
	}
	return seqs, taxa
}

// PruneBefore deletes every timeline entry (on every stream) strictly
// before cutoff and reports how many were removed (spec §4.G prune_before).
func (idx *Index) PruneBefore(cutoff time.Time) (int, error) {
	idx.writerMu.Lock()
	defer idx.writerMu.Unlock()

	removed := 0
	err := idx.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSequenceVersions, bucketTaxonomyVersions, bucketCrossReferences} {
			b := tx.Bucket(name)
			c := b.Cursor()
			var toDelete [][]byte
			for k, v := c.First(); k != nil; k, v = c.Next() {
				ts, ok := timestampOf(name, v, idx)
				if !ok {
					continue
				}
				if ts.Before(cutoff) {
					toDelete = append(toDelete, append([]byte{}, k...))
				}
			}
			for _, k := range toDelete {
				if err := b.Delete(k); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, talerr.Wrap(talerr.IOFailure, "prune temporal index", err)
	}
	return removed, idx.rebuildSnapshotLocked()
}

func timestampOf(bucket []byte, v []byte, idx *Index) (time.Time, bool) {
	switch string(bucket) {
	case string(bucketSequenceVersions):
		var e SequenceVersionEntry
		if idx.decode(v, &e) != nil {
			return time.Time{}, false
		}
		return e.Timestamp, true
	case string(bucketTaxonomyVersions):
		var e TaxonomyVersionEntry
		if idx.decode(v, &e) != nil {
			return time.Time{}, false
		}
		return e.Timestamp, true
	case string(bucketCrossReferences):
		var e CrossReference
		if idx.decode(v, &e) != nil {
			return time.Time{}, false
		}
		return e.CreatedAt, true
	}
	return time.Time{}, false
}
