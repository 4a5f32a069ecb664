// Package binenc provides the small fixed-width/varint encoding helpers
// shared by the on-disk and bbolt-value codecs across the repository.
package binenc

import (
	"encoding/binary"
	"fmt"
)

// AppendUvarint appends n as a CompactSize-style varint: values below 0xfd
// encode as a single byte, 0xfd/0xfe/0xff introduce a 2/4/8-byte
// little-endian tail. Encodings are always minimal.
func AppendUvarint(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfd)
		return appendU16(dst, uint16(n))
	case n <= 0xffff_ffff:
		dst = append(dst, 0xfe)
		return appendU32(dst, uint32(n))
	default:
		dst = append(dst, 0xff)
		return appendU64(dst, n)
	}
}

// ReadUvarint decodes one varint from the front of b, rejecting non-minimal
// encodings, and returns the value plus the number of bytes consumed.
func ReadUvarint(b []byte) (uint64, int, error) {
	off := 0
	v, err := readUvarintAt(b, &off)
	return v, off, err
}

func readUvarintAt(b []byte, off *int) (uint64, error) {
	start := *off
	tag, err := readU8(b, off)
	if err != nil {
		return 0, err
	}
	switch {
	case tag < 0xfd:
		return uint64(tag), nil
	case tag == 0xfd:
		v, err := readU16(b, off)
		if err != nil {
			return 0, err
		}
		if v < 0xfd {
			return 0, fmt.Errorf("binenc: non-minimal varint (0xfd) at offset %d", start)
		}
		return uint64(v), nil
	case tag == 0xfe:
		v, err := readU32(b, off)
		if err != nil {
			return 0, err
		}
		if v <= 0xffff {
			return 0, fmt.Errorf("binenc: non-minimal varint (0xfe) at offset %d", start)
		}
		return uint64(v), nil
	default:
		v, err := readU64(b, off)
		if err != nil {
			return 0, err
		}
		if v <= 0xffff_ffff {
			return 0, fmt.Errorf("binenc: non-minimal varint (0xff) at offset %d", start)
		}
		return v, nil
	}
}

// AppendBytes appends a varint length prefix followed by b's contents.
func AppendBytes(dst []byte, b []byte) []byte {
	dst = AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// ReadBytes decodes a varint-length-prefixed byte slice from the front of b.
// The returned slice aliases b.
func ReadBytes(b []byte) ([]byte, int, error) {
	off := 0
	n, err := readUvarintAt(b, &off)
	if err != nil {
		return nil, 0, err
	}
	if uint64(off)+n > uint64(len(b)) {
		return nil, 0, fmt.Errorf("binenc: truncated byte field (need %d, have %d)", n, len(b)-off)
	}
	end := off + int(n)
	return b[off:end], end, nil
}

func appendU16(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

func appendU32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func appendU64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

func readU8(b []byte, off *int) (uint8, error) {
	if *off+1 > len(b) {
		return 0, fmt.Errorf("binenc: unexpected EOF (u8)")
	}
	v := b[*off]
	*off++
	return v, nil
}

func readU16(b []byte, off *int) (uint16, error) {
	if *off+2 > len(b) {
		return 0, fmt.Errorf("binenc: unexpected EOF (u16)")
	}
	v := binary.LittleEndian.Uint16(b[*off : *off+2])
	*off += 2
	return v, nil
}

func readU32(b []byte, off *int) (uint32, error) {
	if *off+4 > len(b) {
		return 0, fmt.Errorf("binenc: unexpected EOF (u32)")
	}
	v := binary.LittleEndian.Uint32(b[*off : *off+4])
	*off += 4
	return v, nil
}

func readU64(b []byte, off *int) (uint64, error) {
	if *off+8 > len(b) {
		return 0, fmt.Errorf("binenc: unexpected EOF (u64)")
	}
	v := binary.LittleEndian.Uint64(b[*off : *off+8])
	*off += 8
	return v, nil
}

// AppendU32 appends v as 4-byte little-endian.
func AppendU32(dst []byte, v uint32) []byte { return appendU32(dst, v) }

// AppendU64 appends v as 8-byte little-endian.
func AppendU64(dst []byte, v uint64) []byte { return appendU64(dst, v) }

// ReadU32 reads a 4-byte little-endian uint32 from the front of b.
func ReadU32(b []byte) (uint32, int, error) {
	off := 0
	v, err := readU32(b, &off)
	return v, off, err
}

// ReadU64 reads an 8-byte little-endian uint64 from the front of b.
func ReadU64(b []byte) (uint64, int, error) {
	off := 0
	v, err := readU64(b, &off)
	return v, off, err
}
