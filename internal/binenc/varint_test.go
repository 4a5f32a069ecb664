package binenc

import "testing"

func TestUvarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffff_ffff, 0x1_0000_0000, ^uint64(0)}
	for _, n := range cases {
		enc := AppendUvarint(nil, n)
		got, used, err := ReadUvarint(enc)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if got != n {
			t.Fatalf("n=%d: got %d", n, got)
		}
		if used != len(enc) {
			t.Fatalf("n=%d: consumed %d, encoded %d bytes", n, used, len(enc))
		}
	}
}

func TestReadUvarintRejectsNonMinimal(t *testing.T) {
	// 0xfd tag followed by a value that fits in one byte.
	buf := []byte{0xfd, 0x05, 0x00}
	if _, _, err := ReadUvarint(buf); err == nil {
		t.Fatalf("expected non-minimal encoding to be rejected")
	}
}

func TestBytesRoundTrip(t *testing.T) {
	want := []byte("ACGTACGT")
	enc := AppendBytes(nil, want)
	got, used, err := ReadBytes(enc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != len(enc) {
		t.Fatalf("consumed %d, expected %d", used, len(enc))
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReadBytesTruncated(t *testing.T) {
	enc := AppendBytes(nil, []byte("hello"))
	if _, _, err := ReadBytes(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected truncated read to fail")
	}
}
