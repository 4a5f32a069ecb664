package reduction

// kmerSet extracts the set of distinct k-length windows in seq. Used for a
// cheap Jaccard similarity proxy in place of full alignment (spec §4.J).
func kmerSet(seq []byte, k int) map[string]struct{} {
	set := make(map[string]struct{})
	if len(seq) < k {
		return set
	}
	for i := 0; i+k <= len(seq); i++ {
		set[string(seq[i:i+k])] = struct{}{}
	}
	return set
}

// jaccard computes the Jaccard similarity of two k-mer sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	intersection := 0
	for k := range small {
		if _, ok := big[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func lengthRatio(a, b int) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	small, big := a, b
	if big < small {
		small, big = big, small
	}
	return float64(small) / float64(big)
}
