package reduction

import (
	"sort"

	"talaria/hashid"
)

// AlignmentHit is one (query, subject, identity) triple produced by an
// external aligner (spec §4.J "Alignment-guided").
type AlignmentHit struct {
	Query    hashid.Hash
	Subject  hashid.Hash
	Identity float64
}

// AlignmentSource abstracts the external aligner: bounded all-vs-all or
// query-vs-reference, depending on the implementation. AlignmentSelector
// never runs an alignment itself.
type AlignmentSource interface {
	Align(sequences []InputSequence) ([]AlignmentHit, error)
}

// TaxonWeighter scores how much a taxonomic relationship between two
// sequences should scale an alignment identity, in [0.8, 1.5] per spec
// §4.J. A nil weighter passed to AlignmentSelector disables weighting.
type TaxonWeighter interface {
	Weight(a, b InputSequence) float64
}

// AlignmentSelector greedily picks, on each round, the reference whose hits
// against still-uncovered sequences at identity ≥ 0.7 have the largest
// summed identity, optionally scaling identity by a taxonomic-distance
// weight (spec §4.J "Alignment-guided").
type AlignmentSelector struct {
	Source        AlignmentSource
	Weighter      TaxonWeighter // optional
	IdentityFloor float64       // defaults to 0.7 if zero
}

func (s AlignmentSelector) Select(sequences []InputSequence, _ float64) SelectionResult {
	result := SelectionResult{Children: make(map[hashid.Hash][]hashid.Hash), Discarded: make(map[hashid.Hash]bool)}

	floor := s.IdentityFloor
	if floor == 0 {
		floor = 0.7
	}

	hits, err := s.Source.Align(sequences)
	if err != nil {
		return result
	}

	byHash := make(map[hashid.Hash]InputSequence, len(sequences))
	for _, seq := range sequences {
		byHash[seq.Hash] = seq
	}

	scored := make(map[[2]hashid.Hash]float64, len(hits))
	for _, h := range hits {
		if h.Identity < floor {
			continue
		}
		identity := h.Identity
		if s.Weighter != nil {
			if q, ok := byHash[h.Query]; ok {
				if sub, ok := byHash[h.Subject]; ok {
					identity *= s.Weighter.Weight(q, sub)
				}
			}
		}
		scored[[2]hashid.Hash{h.Query, h.Subject}] = identity
	}

	sorted := append([]InputSequence(nil), sequences...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Bytes) > len(sorted[j].Bytes) })

	uncovered := make(map[hashid.Hash]bool, len(sequences))
	for _, seq := range sequences {
		uncovered[seq.Hash] = true
	}

	for len(uncovered) > 0 {
		var bestRef hashid.Hash
		var bestCoverage []hashid.Hash
		bestScore := 0.0
		found := false

		for _, candidate := range sorted {
			if result.Discarded[candidate.Hash] {
				continue
			}
			var coverage []hashid.Hash
			score := 0.0
			for other := range uncovered {
				if other == candidate.Hash {
					continue
				}
				if identity, ok := scored[[2]hashid.Hash{candidate.Hash, other}]; ok {
					coverage = append(coverage, other)
					score += identity
				}
			}
			if score > bestScore {
				bestRef = candidate.Hash
				bestCoverage = coverage
				bestScore = score
				found = true
			}
		}

		if !found || len(bestCoverage) == 0 {
			for h := range uncovered {
				result.References = append(result.References, h)
			}
			break
		}

		result.References = append(result.References, bestRef)
		result.Children[bestRef] = bestCoverage
		result.Discarded[bestRef] = true
		delete(uncovered, bestRef)
		for _, c := range bestCoverage {
			result.Discarded[c] = true
			delete(uncovered, c)
		}
	}

	return result
}
