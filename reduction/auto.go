package reduction

import (
	"sort"

	"talaria/hashid"
)

// Auto-selection thresholds (spec §4.J "Auto"): at least this many
// references and this much coverage must be reached before the
// diminishing-returns check or the 95%-coverage stop can fire.
const (
	autoMinReferences  = 100
	autoMinCoverage    = 0.10
	autoPlateauWindow  = 10
	autoPlateauMinGain = 0.001
	autoCoverageCeil   = 0.95
)

// AutoSelector grows a reference set by descending length, each reference
// folding in sequences whose k-mer Jaccard clears a relaxed 0.2 threshold,
// and stops once the last autoPlateauWindow additions improved coverage by
// less than autoPlateauMinGain — provided the minimum reference count and
// coverage floor are already met (spec §4.J "Auto").
type AutoSelector struct {
	MinLength int
}

func (s AutoSelector) Select(sequences []InputSequence, _ float64) SelectionResult {
	sorted := append([]InputSequence(nil), sequences...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Bytes) > len(sorted[j].Bytes) })

	kmers := make(map[hashid.Hash]map[string]struct{}, len(sorted))
	for _, seq := range sorted {
		kmers[seq.Hash] = kmerSet(seq.Bytes, 2) // looser k for broader protein coverage
	}

	result := SelectionResult{Children: make(map[hashid.Hash][]hashid.Hash), Discarded: make(map[hashid.Hash]bool)}
	var coverageHistory []float64

	for _, query := range sorted {
		if result.Discarded[query.Hash] || len(query.Bytes) < s.MinLength {
			continue
		}

		var children []hashid.Hash
		newCoverage := 0
		for _, other := range sorted {
			if other.Hash == query.Hash || result.Discarded[other.Hash] {
				continue
			}
			if lengthRatio(len(query.Bytes), len(other.Bytes)) < 0.5 {
				continue
			}
			if jaccard(kmers[query.Hash], kmers[other.Hash]) >= 0.2 {
				children = append(children, other.Hash)
				newCoverage++
			}
		}

		totalCovered := len(result.Discarded) + newCoverage + 1
		coverageRatio := float64(totalCovered) / float64(len(sequences))
		coverageHistory = append(coverageHistory, coverageRatio)

		if len(result.References) >= autoMinReferences && coverageRatio >= autoMinCoverage {
			if len(coverageHistory) > autoPlateauWindow {
				gain := coverageHistory[len(coverageHistory)-1] - coverageHistory[len(coverageHistory)-1-autoPlateauWindow]
				if gain < autoPlateauMinGain {
					break
				}
			}
		}
		if coverageRatio > autoCoverageCeil && len(result.References) >= autoMinReferences {
			break
		}
		if len(result.References) >= len(sequences)/10 && len(result.References) >= autoMinReferences {
			break
		}

		for _, c := range children {
			result.Discarded[c] = true
		}
		result.Children[query.Hash] = children
		result.References = append(result.References, query.Hash)
		result.Discarded[query.Hash] = true
	}

	finalCoverage := float64(len(result.Discarded)) / float64(len(sequences))
	if finalCoverage < 0.01 && len(sequences) > 1000 {
		return LengthSelector{MinLength: s.MinLength}.Select(sequences, 0.1)
	}

	return result
}
