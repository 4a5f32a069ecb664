package delta

import "talaria/internal/talerr"

// ComputeDelta derives a transform from reference to target using a
// banded Myers LCS bounded by maxDistance. If the sequences differ by more
// than maxDistance edits (or no common structure is found), the result is
// a single whole-target Insert — valid, just uncompressed (spec §4.I).
func ComputeDelta(reference, target []byte, maxDistance int) Delta {
	matches := computeLCS(reference, target, maxDistance)

	var ops []Op
	refPos, tgtPos := 0, 0
	for _, mt := range matches {
		if mt.targetStart > tgtPos {
			ops = append(ops, Op{Kind: OpInsert, Data: append([]byte(nil), target[tgtPos:mt.targetStart]...)})
		}
		if mt.refStart > refPos {
			ops = append(ops, Op{Kind: OpSkip, Length: mt.refStart - refPos})
		}
		ops = append(ops, Op{Kind: OpCopy, Offset: mt.refStart, Length: mt.length})
		refPos = mt.refStart + mt.length
		tgtPos = mt.targetStart + mt.length
	}
	if tgtPos < len(target) {
		ops = append(ops, Op{Kind: OpInsert, Data: append([]byte(nil), target[tgtPos:]...)})
	}

	deltaSize := 0
	for _, op := range ops {
		deltaSize += sizeOf(op)
	}

	ratio := 1.0
	if len(target) > 0 {
		ratio = float64(deltaSize) / float64(len(target))
	}

	return Delta{Ops: ops, OriginalSize: len(target), DeltaSize: deltaSize, CompressionRatio: ratio}
}

// ApplyDelta reconstructs a target sequence from reference and d.
// Deterministic; fails with InvalidDelta if any Copy op reads past the end
// of reference (spec §4.I).
func ApplyDelta(reference []byte, d Delta) ([]byte, error) {
	out := make([]byte, 0, d.OriginalSize)
	for _, op := range d.Ops {
		switch op.Kind {
		case OpCopy:
			end := op.Offset + op.Length
			if op.Offset < 0 || end > len(reference) {
				return nil, talerr.Newf(talerr.InvalidDelta, "copy [%d:%d] out of range for reference of length %d", op.Offset, end, len(reference))
			}
			out = append(out, reference[op.Offset:end]...)
		case OpInsert:
			out = append(out, op.Data...)
		case OpSkip:
			// advances only the reference cursor in the original algorithm;
			// the target bytes were already accounted for via Copy/Insert.
		}
	}
	return out, nil
}

// EstimateRatio is a cheap, single-pass upper bound on delta cost used to
// reject poor reference candidates before running ComputeDelta (spec §4.I).
// It measures positional byte agreement, not alignment, so it can only
// overestimate the true edit distance.
func EstimateRatio(reference, target []byte) float64 {
	maxLen := len(reference)
	if len(target) > maxLen {
		maxLen = len(target)
	}
	if maxLen == 0 {
		return 1.0
	}

	matches := 0
	n := len(reference)
	if len(target) < n {
		n = len(target)
	}
	for i := 0; i < n; i++ {
		if reference[i] == target[i] {
			matches++
		}
	}
	return 1.0 - float64(matches)/float64(maxLen)
}
