package manifest

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/ugorji/go/codec"

	"talaria/internal/talerr"
)

var magic = [4]byte{'T', 'A', 'L', 0x01}

var mh codec.MsgpackHandle

// Save writes m to path in binary (.tal) or JSON (.json) form, selected by
// extension, using an atomic temp-file-then-rename sequence so readers
// never observe a partially written manifest.
func Save(fs afero.Fs, path string, m TemporalManifest) error {
	var body []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tal":
		var buf []byte
		enc := codec.NewEncoderBytes(&buf, &mh)
		if err := enc.Encode(m); err != nil {
			return talerr.Wrap(talerr.IOFailure, "encode manifest", err)
		}
		body = append(append([]byte{}, magic[:]...), buf...)
	case ".json":
		var err error
		body, err = json.MarshalIndent(m, "", "  ")
		if err != nil {
			return talerr.Wrap(talerr.IOFailure, "marshal manifest json", err)
		}
	default:
		return talerr.Newf(talerr.IOFailure, "unrecognized manifest extension %q", filepath.Ext(path))
	}
	return atomicWrite(fs, path, body)
}

// Load reads a manifest, auto-detecting binary vs JSON form by content
// (the magic prefix) rather than trusting the extension, since callers may
// rename files.
func Load(fs afero.Fs, path string) (TemporalManifest, error) {
	var m TemporalManifest
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return m, talerr.Wrap(talerr.IOFailure, "read manifest", err)
	}
	if len(raw) >= 4 && raw[0] == magic[0] && raw[1] == magic[1] && raw[2] == magic[2] && raw[3] == magic[3] {
		dec := codec.NewDecoderBytes(raw[4:], &mh)
		if err := dec.Decode(&m); err != nil {
			return m, talerr.Wrap(talerr.Corrupted, "decode binary manifest", err)
		}
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, talerr.Wrap(talerr.Corrupted, "decode json manifest", err)
	}
	return m, nil
}

// atomicWrite writes data to path via temp file + fsync + rename, grounded
// on the teacher's manifest-write sequence. The containing directory is not
// fsynced.
func atomicWrite(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return talerr.Wrap(talerr.IOFailure, "create manifest dir", err)
	}
	tmp, err := afero.TempFile(fs, dir, ".tmp-manifest-*")
	if err != nil {
		return talerr.Wrap(talerr.IOFailure, "create temp manifest file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return talerr.Wrap(talerr.IOFailure, "write temp manifest file", err)
	}
	if syncer, ok := tmp.(interface{ Sync() error }); ok {
		syncer.Sync()
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return talerr.Wrap(talerr.IOFailure, "close temp manifest file", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		fs.Remove(tmpName)
		return talerr.Wrap(talerr.IOFailure, "rename temp manifest file", err)
	}
	if syncer, ok := fs.(interface{ Name() string }); ok {
		_ = syncer // afero has no portable directory-fsync hook; rename is already durable on POSIX journaled filesystems
	}
	return nil
}
