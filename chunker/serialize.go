package chunker

import "github.com/ugorji/go/codec"

var mh codec.MsgpackHandle

// Encode serializes m for storage in the chunk store, the same
// content-addressed store that holds raw chunk sequence bytes. The store
// addresses the result by the hash of these encoded bytes, not by
// m.ChunkHash; Persist reassigns ChunkHash to that address (spec §8
// invariant 3: "every chunk_index[i].hash ... resolves in the chunk store").
func (m ChunkManifest) Encode() ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &mh)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf, nil
}

// Decode deserializes a ChunkManifest previously written by Encode.
func Decode(b []byte) (ChunkManifest, error) {
	var m ChunkManifest
	dec := codec.NewDecoderBytes(b, &mh)
	err := dec.Decode(&m)
	return m, err
}
