// Package chunkstore implements the content-addressed, sharded chunk store
// (spec §4.A): raw byte blobs keyed by SHA-256, with optional Zstd framing,
// integrity verification, and GC of every chunk outside a caller-supplied
// referenced set.
package chunkstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"talaria/hashid"
	"talaria/internal/talerr"
)

// framing markers: the first byte of every on-disk object distinguishes
// plain bytes from zstd-compressed bytes so Get can transparently decompress.
const (
	frameRaw  byte = 0x00
	frameZstd byte = 0x01
)

// Compression policy thresholds (spec §4.A).
const (
	minCompressSize = 1024
	maxUsefulRatio  = 0.95 // skip compression if ratio >= this (barely shrinks)
	lockFileName    = ".chunkstore.lock"
)

// gcLocker is the exclusive lock GC holds for the duration of a pass. Real
// deployments lock a file on the real filesystem (gofrs/flock); tests backed
// by afero.MemMapFs get an in-process equivalent instead, since flock needs
// an actual OS file descriptor that an in-memory fs cannot provide.
type gcLocker interface {
	TryLock() (bool, error)
	Unlock() error
}

type inProcessLocker struct {
	mu   sync.Mutex
	held bool
}

func (l *inProcessLocker) TryLock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *inProcessLocker) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

// Store is a sharded, content-addressed object store rooted at a directory.
type Store struct {
	fs   afero.Fs
	root string
	log  zerolog.Logger

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	lock gcLocker
}

// Open creates a Store rooted at root on fs, creating the directory if
// needed.
func Open(fs afero.Fs, root string, log zerolog.Logger) (*Store, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "create chunk store root", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "init zstd encoder", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "init zstd decoder", err)
	}
	var lock gcLocker
	if _, ok := fs.(*afero.OsFs); ok {
		lock = flock.New(filepath.Join(root, lockFileName))
	} else {
		lock = &inProcessLocker{}
	}
	return &Store{
		fs:      fs,
		root:    root,
		log:     log.With().Str("component", "chunkstore").Logger(),
		encoder: enc,
		decoder: dec,
		lock:    lock,
	}, nil
}

// Close releases resources held by the store's codecs.
func (s *Store) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

func (s *Store) shardPath(h hashid.Hash) string {
	hex := h.String()
	return filepath.Join(s.root, hex[0:2], hex[2:4], hex+".chunk")
}

// Store writes bytes under their content hash and returns it. Writing is
// idempotent: an existing object with a matching hash is left untouched.
func (s *Store) Store(b []byte) (hashid.Hash, error) {
	h := hashid.Sum(b)
	path := s.shardPath(h)

	if exists, err := afero.Exists(s.fs, path); err == nil && exists {
		return h, nil
	}

	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return h, talerr.Wrap(talerr.IOFailure, "create shard dir", err)
	}

	framed, err := s.frame(b)
	if err != nil {
		return h, err
	}

	tmp, err := afero.TempFile(s.fs, dir, ".tmp-chunk-*")
	if err != nil {
		return h, talerr.Wrap(talerr.IOFailure, "create temp chunk file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(framed); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return h, talerr.Wrap(talerr.IOFailure, "write temp chunk file", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return h, talerr.Wrap(talerr.IOFailure, "close temp chunk file", err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		s.fs.Remove(tmpName)
		return h, talerr.Wrap(talerr.IOFailure, "rename temp chunk file", err)
	}
	s.log.Debug().Str("hash", h.String()).Int("bytes", len(b)).Msg("chunk stored")
	return h, nil
}

// frame applies the compression policy and prepends the framing marker.
func (s *Store) frame(b []byte) ([]byte, error) {
	if len(b) < minCompressSize {
		return append([]byte{frameRaw}, b...), nil
	}
	compressed := s.encoder.EncodeAll(b, nil)
	ratio := float64(len(compressed)) / float64(len(b))
	if ratio >= maxUsefulRatio {
		return append([]byte{frameRaw}, b...), nil
	}
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, frameZstd)
	out = append(out, compressed...)
	return out, nil
}

// Get reads and verifies the chunk stored under hash.
func (s *Store) Get(h hashid.Hash) ([]byte, error) {
	path := s.shardPath(h)
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, talerr.Newf(talerr.NotFound, "chunk %s not found", h)
		}
		return nil, talerr.Wrap(talerr.IOFailure, "read chunk", err)
	}
	b, err := s.unframe(raw)
	if err != nil {
		return nil, err
	}
	actual := hashid.Sum(b)
	if actual != h {
		return nil, talerr.Newf(talerr.Corrupted, "chunk %s: expected hash %s, got %s", h, h, actual)
	}
	return b, nil
}

func (s *Store) unframe(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, talerr.New(talerr.Corrupted, "empty chunk object")
	}
	marker, body := raw[0], raw[1:]
	switch marker {
	case frameRaw:
		return body, nil
	case frameZstd:
		out, err := s.decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, talerr.Wrap(talerr.Corrupted, "zstd decompress", err)
		}
		return out, nil
	default:
		return nil, talerr.Newf(talerr.Corrupted, "unknown frame marker 0x%02x", marker)
	}
}

// Has reports whether an object exists under hash, without verifying it.
func (s *Store) Has(h hashid.Hash) bool {
	exists, err := afero.Exists(s.fs, s.shardPath(h))
	return err == nil && exists
}

// ChunkInfo describes one on-disk object discovered during enumeration.
type ChunkInfo struct {
	Hash      hashid.Hash
	SizeBytes int64
}

// Enumerate walks the store and reports every object found. It is not lazy
// in the streaming sense (afero has no cheap directory cursor API) but
// visits the filesystem directly rather than consulting any in-memory cache.
func (s *Store) Enumerate() ([]ChunkInfo, error) {
	var out []ChunkInfo
	err := afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".chunk" {
			return nil
		}
		name := filepath.Base(path)
		hex := name[:len(name)-len(".chunk")]
		h, perr := hashid.Parse(hex)
		if perr != nil {
			return nil // not one of ours; skip
		}
		out = append(out, ChunkInfo{Hash: h, SizeBytes: info.Size()})
		return nil
	})
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "enumerate chunk store", err)
	}
	return out, nil
}

// VerificationError reports a chunk whose stored bytes do not hash to its
// file name.
type VerificationError struct {
	Hash     hashid.Hash
	Expected hashid.Hash
	Actual   hashid.Hash
	Err      error
}

// VerifyAll rehashes every chunk in the store and reports mismatches.
func (s *Store) VerifyAll() ([]VerificationError, error) {
	infos, err := s.Enumerate()
	if err != nil {
		return nil, err
	}
	var errs []VerificationError
	for _, info := range infos {
		raw, rerr := afero.ReadFile(s.fs, s.shardPath(info.Hash))
		if rerr != nil {
			errs = append(errs, VerificationError{Hash: info.Hash, Err: rerr})
			continue
		}
		b, uerr := s.unframe(raw)
		if uerr != nil {
			errs = append(errs, VerificationError{Hash: info.Hash, Err: uerr})
			continue
		}
		actual := hashid.Sum(b)
		if actual != info.Hash {
			errs = append(errs, VerificationError{Hash: info.Hash, Expected: info.Hash, Actual: actual})
		}
	}
	return errs, nil
}

// GCResult reports the outcome of a garbage-collection pass.
type GCResult struct {
	Removed    int
	FreedBytes int64
}

// GC deletes every chunk whose hash is absent from referenced, holding an
// exclusive repository-wide lock for the duration. Concurrent readers
// remain safe because already-written chunks are immutable.
func (s *Store) GC(referenced map[hashid.Hash]struct{}) (GCResult, error) {
	locked, err := s.lock.TryLock()
	if err != nil {
		return GCResult{}, talerr.Wrap(talerr.IOFailure, "acquire gc lock", err)
	}
	if !locked {
		return GCResult{}, talerr.New(talerr.IOFailure, "chunk store gc already in progress")
	}
	defer s.lock.Unlock()

	infos, err := s.Enumerate()
	if err != nil {
		return GCResult{}, err
	}

	var result GCResult
	for _, info := range infos {
		if _, keep := referenced[info.Hash]; keep {
			continue
		}
		path := s.shardPath(info.Hash)
		if err := s.fs.Remove(path); err != nil {
			return result, talerr.Wrap(talerr.IOFailure, fmt.Sprintf("remove chunk %s", info.Hash), err)
		}
		result.Removed++
		result.FreedBytes += info.SizeBytes
	}
	s.log.Info().
		Int("removed", result.Removed).
		Str("freed", humanize.Bytes(uint64(result.FreedBytes))).
		Msg("chunk store gc complete")
	return result, nil
}

var _ io.Closer = (*Store)(nil)
