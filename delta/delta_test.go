package delta

import (
	"bytes"
	"testing"

	"talaria/internal/talerr"
)

func TestComputeLCSIdenticalSequences(t *testing.T) {
	seq := []byte("ACGTACGTACGT")
	matches := computeLCS(seq, seq, 1000)
	if len(matches) == 0 {
		t.Fatalf("expected non-empty LCS for identical sequences")
	}
	total := 0
	for _, m := range matches {
		total += m.length
	}
	if total != len(seq) {
		t.Fatalf("expected full-length match, got %d of %d", total, len(seq))
	}
}

func TestComputeLCSMaxDistanceExceeded(t *testing.T) {
	ref := bytes.Repeat([]byte("A"), 10)
	tgt := bytes.Repeat([]byte("T"), 10)
	matches := computeLCS(ref, tgt, 5)
	if len(matches) != 0 {
		t.Fatalf("expected empty LCS for sequences exceeding max_distance, got %+v", matches)
	}
}

func TestComputeDeltaRoundTripSingleSubstitution(t *testing.T) {
	reference := []byte("ACGTACGTACGTACGTACGT")
	target := []byte("ACGTACATACGTACGTACGT")

	d := ComputeDelta(reference, target, DefaultMaxDistance)
	if len(d.Ops) == 0 {
		t.Fatalf("expected non-empty delta ops")
	}

	reconstructed, err := ApplyDelta(reference, d)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if !bytes.Equal(reconstructed, target) {
		t.Fatalf("round trip mismatch: got %q want %q", reconstructed, target)
	}
}

func TestComputeDeltaRoundTripMultipleChanges(t *testing.T) {
	reference := []byte("ACGTACGTACGTACGTACGT")
	target := []byte("ACGTAATTACGTACGTACGG")

	d := ComputeDelta(reference, target, DefaultMaxDistance)
	reconstructed, err := ApplyDelta(reference, d)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if !bytes.Equal(reconstructed, target) {
		t.Fatalf("round trip mismatch: got %q want %q", reconstructed, target)
	}
}

func TestComputeDeltaExceedsMaxDistanceYieldsWholeInsert(t *testing.T) {
	reference := bytes.Repeat([]byte("A"), 20)
	target := bytes.Repeat([]byte("T"), 20)

	d := ComputeDelta(reference, target, 5)
	if len(d.Ops) != 1 || d.Ops[0].Kind != OpInsert {
		t.Fatalf("expected a single whole-target Insert, got %+v", d.Ops)
	}
	if !bytes.Equal(d.Ops[0].Data, target) {
		t.Fatalf("expected insert to carry the whole target")
	}

	reconstructed, err := ApplyDelta(reference, d)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if !bytes.Equal(reconstructed, target) {
		t.Fatalf("round trip mismatch even in the rejection path")
	}
}

func TestComputeDeltaShortSequenceFallback(t *testing.T) {
	reference := []byte("ACGT")
	target := []byte("ACGA")

	d := ComputeDelta(reference, target, DefaultMaxDistance)
	reconstructed, err := ApplyDelta(reference, d)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if !bytes.Equal(reconstructed, target) {
		t.Fatalf("round trip mismatch: got %q want %q", reconstructed, target)
	}
}

func TestApplyDeltaRejectsOutOfRangeCopy(t *testing.T) {
	reference := []byte("ACGT")
	bad := Delta{Ops: []Op{{Kind: OpCopy, Offset: 2, Length: 10}}}

	_, err := ApplyDelta(reference, bad)
	if !talerr.Is(err, talerr.InvalidDelta) {
		t.Fatalf("expected InvalidDelta, got %v", err)
	}
}

func TestEstimateRatioIdenticalIsZero(t *testing.T) {
	seq := []byte("ACGTACGT")
	if r := EstimateRatio(seq, seq); r != 0 {
		t.Fatalf("expected 0 for identical sequences, got %f", r)
	}
}

func TestEstimateRatioCompletelyDifferentIsOne(t *testing.T) {
	a := bytes.Repeat([]byte("A"), 8)
	b := bytes.Repeat([]byte("T"), 8)
	if r := EstimateRatio(a, b); r != 1 {
		t.Fatalf("expected 1 for completely dissimilar same-length sequences, got %f", r)
	}
}

func TestEstimateRatioEmptyBothIsOne(t *testing.T) {
	if r := EstimateRatio(nil, nil); r != 1 {
		t.Fatalf("expected 1 for two empty sequences, got %f", r)
	}
}
