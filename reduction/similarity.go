package reduction

import (
	"sort"

	"talaria/hashid"
	"talaria/taxon"
)

// kmerK is the window size the similarity selector uses for its Jaccard
// proxy (spec §4.J: "k = 3"). AutoSelector uses k = 2 instead.
const kmerK = 3

// similarityFloor scales SimilarityThreshold down for the k-mer Jaccard
// proxy, which is a looser stand-in for real alignment identity (spec
// §4.J: "k-mer Jaccard ≥ threshold × 0.7").
const similarityFloor = 0.7

// SimilaritySelector groups sequences by k-mer Jaccard similarity: in
// length order, each not-yet-assigned sequence becomes a reference and
// folds in every remaining sequence whose k-mer Jaccard clears the
// relaxed threshold (spec §4.J "Similarity (k-mer Jaccard)").
type SimilaritySelector struct {
	MinLength           int
	SimilarityThreshold float64 // compared against jaccard, relaxed by similarityFloor
	TaxonomyAware       bool
}

func (s SimilaritySelector) Select(sequences []InputSequence, targetRatio float64) SelectionResult {
	targetCount := int(float64(len(sequences)) * targetRatio)

	sorted := append([]InputSequence(nil), sequences...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Bytes) > len(sorted[j].Bytes) })

	result := SelectionResult{Children: make(map[hashid.Hash][]hashid.Hash), Discarded: make(map[hashid.Hash]bool)}
	kmers := make(map[hashid.Hash]map[string]struct{}, len(sorted))
	for _, seq := range sorted {
		kmers[seq.Hash] = kmerSet(seq.Bytes, kmerK)
	}

	threshold := s.SimilarityThreshold * similarityFloor

	for _, query := range sorted {
		if result.Discarded[query.Hash] || len(query.Bytes) < s.MinLength {
			continue
		}

		var children []hashid.Hash
		for _, other := range sorted {
			if other.Hash == query.Hash || result.Discarded[other.Hash] {
				continue
			}
			if s.TaxonomyAware && !query.TaxonID.IsUnclassified() && !other.TaxonID.IsUnclassified() {
				if taxonDistance(query.TaxonID, other.TaxonID) > 1000 {
					continue
				}
			}
			if lengthRatio(len(query.Bytes), len(other.Bytes)) < 0.8 {
				continue
			}
			if jaccard(kmers[query.Hash], kmers[other.Hash]) >= threshold {
				children = append(children, other.Hash)
			}
		}

		result.References = append(result.References, query.Hash)
		result.Children[query.Hash] = children
		result.Discarded[query.Hash] = true
		for _, c := range children {
			result.Discarded[c] = true
		}

		if len(result.References) >= targetCount {
			break
		}
	}

	return result
}

func taxonDistance(a, b taxon.ID) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
