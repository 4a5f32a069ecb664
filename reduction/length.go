package reduction

import (
	"sort"

	"talaria/hashid"
)

// LengthSelector picks the target_ratio longest sequences as references,
// then assigns every remaining sequence to the reference nearest its own
// length (spec §4.J "Single-pass length").
type LengthSelector struct {
	MinLength int
}

func (s LengthSelector) Select(sequences []InputSequence, targetRatio float64) SelectionResult {
	targetCount := int(float64(len(sequences)) * targetRatio)

	sorted := append([]InputSequence(nil), sequences...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Bytes) > len(sorted[j].Bytes) })

	result := SelectionResult{Children: make(map[hashid.Hash][]hashid.Hash), Discarded: make(map[hashid.Hash]bool)}
	refIDs := make(map[hashid.Hash]bool)

	for _, seq := range sorted {
		if len(result.References) >= targetCount {
			break
		}
		if len(seq.Bytes) < s.MinLength {
			continue
		}
		result.References = append(result.References, seq.Hash)
		refIDs[seq.Hash] = true
		result.Children[seq.Hash] = nil
		result.Discarded[seq.Hash] = true
	}

	for _, seq := range sorted {
		if refIDs[seq.Hash] || len(seq.Bytes) < s.MinLength {
			continue
		}
		best := nearestByLength(result.References, sorted, seq)
		if best == (hashid.Hash{}) {
			continue
		}
		result.Children[best] = append(result.Children[best], seq.Hash)
		result.Discarded[seq.Hash] = true
	}

	return result
}

func nearestByLength(refs []hashid.Hash, all []InputSequence, target InputSequence) hashid.Hash {
	lengthOf := make(map[hashid.Hash]int, len(all))
	for _, s := range all {
		lengthOf[s.Hash] = len(s.Bytes)
	}

	var best hashid.Hash
	bestDiff := -1
	for _, r := range refs {
		diff := lengthOf[r] - len(target.Bytes)
		if diff < 0 {
			diff = -diff
		}
		if bestDiff == -1 || diff < bestDiff {
			bestDiff = diff
			best = r
		}
	}
	return best
}
