package sequence

import (
	"regexp"
	"strconv"
	"strings"

	"talaria/taxon"
)

var (
	oxRe    = regexp.MustCompile(`OX=(\d+)`)
	taxIDRe = regexp.MustCompile(`TaxID=(\d+)`)
)

// parseAccession extracts the accession from a FASTA-style header according
// to the rules the core relies on from external parsers (spec §6):
//   - "sp|P12345|NAME_ORGANISM" or "tr|..." -> field 1
//   - "gi|...|ref|NP_12345.1|" -> field 3, version-stripped
//   - anything else -> the header's first whitespace-delimited token
func parseAccession(header string) string {
	header = strings.TrimPrefix(header, ">")
	fields := strings.Split(header, "|")
	switch {
	case len(fields) >= 2 && (fields[0] == "sp" || fields[0] == "tr"):
		return fields[1]
	case len(fields) >= 4 && fields[0] == "gi" && fields[2] == "ref":
		return stripVersion(fields[3])
	default:
		first := header
		if i := strings.IndexAny(header, " \t"); i >= 0 {
			first = header[:i]
		}
		return first
	}
}

func stripVersion(accession string) string {
	if i := strings.LastIndexByte(accession, '.'); i > 0 {
		if _, err := strconv.Atoi(accession[i+1:]); err == nil {
			return accession[:i]
		}
	}
	return accession
}

// parseInlineTaxon looks for OX=<digits> (UniProt) or TaxID=<digits>
// (generic) inline in a header.
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
