package chunker

import (
	"regexp"
	"strconv"

	"talaria/internal/talerr"
	"talaria/taxon"
)

var (
	oxRe    = regexp.MustCompile(`OX=(\d+)`)
	taxIDRe = regexp.MustCompile(`TaxID=(\d+)`)
)

// AccessionLookup resolves an accession to a taxon id via the taxonomy
// manager's accession mapping (spec §4.E step 1, third resolution source).
type AccessionLookup interface {
	LookupTaxon(accession string) (taxon.ID, bool)
}

// taxonSource is one of the three candidate taxon resolutions considered
// during enrichment, in priority order.
type taxonSource struct {
	name string
	id   taxon.ID
}

// Discrepancy records disagreement between the sources consulted while
// resolving a sequence's taxon (spec §4.E step 1).
type Discrepancy struct {
	Sources    []taxonSourceRecord
	Resolved   taxon.ID
	Confidence float64
}

// Error wraps d in the TaxonomicDiscrepancy error kind for discrepancy
// reporting (spec §7 TaxonomicDiscrepancy — informational, non-fatal).
func (d Discrepancy) Error() error {
	return talerr.Newf(talerr.TaxonomicDiscrepancy, "taxon disagreement resolved to %s (confidence %.2f)", d.Resolved, d.Confidence)
}

type taxonSourceRecord struct {
	Source string
	Taxon  taxon.ID
}

// resolveTaxon implements the priority-ordered resolution in spec §4.E
// step 1: explicit taxon_id, then header OX=/TaxID=, then accession lookup.
// The first present source wins the resolved value; any disagreement among
// present sources is reported as a Discrepancy.
func resolveTaxon(seq Sequence, lookup AccessionLookup) (taxon.ID, *Discrepancy) {
	var sources []taxonSourceRecord

	if seq.ExplicitTaxon != nil && !seq.ExplicitTaxon.IsUnclassified() {
		sources = append(sources, taxonSourceRecord{"explicit", *seq.ExplicitTaxon})
	}
	if id, ok := parseInlineTaxon(seq.Header); ok {
		sources = append(sources, taxonSourceRecord{"header", id})
	}
	if lookup != nil && seq.Accession != "" {
		if id, ok := lookup.LookupTaxon(seq.Accession); ok {
			sources = append(sources, taxonSourceRecord{"accession", id})
		}
	}

	if len(sources) == 0 {
		return taxon.Unclassified, nil
	}

	resolved := sources[0].Taxon
	disagreement := false
	for _, s := range sources[1:] {
		if s.Taxon != resolved {
			disagreement = true
			break
		}
	}
	if !disagreement {
		return resolved, nil
	}

	confidence := 0.33 * float64(len(sources))
	if len(sources) == 3 {
		allAgree := sources[0].Taxon == sources[1].Taxon && sources[1].Taxon == sources[2].Taxon
		if allAgree {
			confidence = 1.0
		}
	}
	confidence *= 0.5 // disagreement halves confidence in the resolved value
	return resolved, &Discrepancy{Sources: sources, Resolved: resolved, Confidence: confidence}
}

func parseInlineTaxon(header string) (taxon.ID, bool) {
	if m := oxRe.FindStringSubmatch(header); m != nil {
		if n, err := strconv.ParseUint(m[1], 10, 32); err == nil {
			return taxon.ID(n), true
		}
	}
	if m := taxIDRe.FindStringSubmatch(header); m != nil {
		if n, err := strconv.ParseUint(m[1], 10, 32); err == nil {
			return taxon.ID(n), true
		}
	}
	return taxon.Unclassified, false
}
