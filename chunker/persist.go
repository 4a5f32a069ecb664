package chunker

import (
	"talaria/chunkstore"
	"talaria/hashid"
)

// Persist serializes m and writes it to store, returning a copy of m whose
// ChunkHash is the store's own content address for the serialized bytes.
// That is the address invariant callers rely on: "every chunk_index[i].hash
// ... resolves in the chunk store" (spec §8 invariant 3) holds by
// construction once a manifest is written this way, since chunkstore.Store
// always addresses content by the hash of exactly the bytes it persists.
// ComputeHash remains useful on its own for pre-serialization grouping and
// determinism checks; Persist is the step that makes a manifest's own
// identity match where it actually lives.
//
// completed holds the pre-serialization ComputeHash of chunks a prior,
// crashed attempt at this same ingest already wrote to store (spec §4.K:
// "resuming skips chunks whose hash is in completed_chunks"). Chunk's
// caller-supplied now makes repeated attempts over the same input
// deterministic, so a chunk whose pre-persist hash is already completed is
// guaranteed to re-encode to the same bytes store already has; the actual
// write is skipped rather than redundantly restated.
func Persist(store *chunkstore.Store, m ChunkManifest, completed map[hashid.Hash]struct{}) (ChunkManifest, error) {
	enc, err := m.Encode()
	if err != nil {
		return m, err
	}
	finalHash := hashid.Sum(enc)
	if _, ok := completed[m.ChunkHash]; ok {
		m.ChunkHash = finalHash
		return m, nil
	}
	h, err := store.Store(enc)
	if err != nil {
		return m, err
	}
	m.ChunkHash = h
	return m, nil
}
