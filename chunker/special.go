package chunker

import (
	"time"

	"talaria/hashid"
	"talaria/taxon"
	"talaria/taxonomy"
)

// applySpecialTaxa rewrites chunks whose taxon matches a configured policy
// (spec §4.E step 5). It is a no-op (returning chunks unchanged) once the
// pre-pass chunk count exceeds cfg.SpecialTaxaBailoutThreshold, to avoid
// quadratic merge behavior (step 6).
func applySpecialTaxa(cfg Config, tree *taxonomy.Tree, chunks []ChunkManifest, taxonomyVersion, sequenceVersion string, now time.Time) []ChunkManifest {
	if len(chunks) > cfg.SpecialTaxaBailoutThreshold {
		return chunks
	}
	if len(cfg.SpecialTaxa) == 0 || tree == nil {
		return chunks
	}

	policyFor := make(map[taxon.ID]Policy, len(cfg.SpecialTaxa))
	for _, st := range cfg.SpecialTaxa {
		policyFor[st.Taxon] = st.Policy
	}

	// Partition chunks by merge key. OwnChunks and unconfigured taxa keep
	// their own key (the chunk's single taxon); GroupWithSiblings/
	// GroupAtLevel chunks sharing a merge key are folded together.
	type key struct {
		kind PolicyKind
		id   taxon.ID
	}
	groups := make(map[key][]ChunkManifest)
	order := make([]key, 0, len(chunks))

	for _, c := range chunks {
		t := soleTaxon(c)
		p, configured := policyFor[t]
		var k key
		switch {
		case !configured:
			k = key{OwnChunks, t}
		case p.Kind == OwnChunks:
			k = key{OwnChunks, t}
		case p.Kind == GroupWithSiblings:
			parent, ok := tree.GetParent(t)
			if !ok {
				k = key{OwnChunks, t}
			} else {
				k = key{GroupWithSiblings, parent}
			}
		case p.Kind == GroupAtLevel:
			ancestor, ok := tree.GetAncestorAtRank(t, p.Rank)
			if !ok {
				k = key{OwnChunks, t}
			} else {
				k = key{GroupAtLevel, ancestor}
			}
		default:
			k = key{OwnChunks, t}
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	var out []ChunkManifest
	for _, k := range order {
		members := groups[k]
		if k.kind == OwnChunks || len(members) == 1 {
			out = append(out, members...)
			continue
		}
		merged, ok := mergeChunks(cfg, members, taxonomyVersion, sequenceVersion, now)
		if !ok {
			out = append(out, members...) // merge would exceed limits: keep isolated
			continue
		}
		out = append(out, merged)
	}
	return out
}

func soleTaxon(c ChunkManifest) taxon.ID {
	if len(c.TaxonIDs) == 0 {
		return taxon.Unclassified
	}
	return c.TaxonIDs[0]
}

// mergeChunks unions the references and taxa of members into one manifest,
// recomputing its hash, as long as the result stays within MaxChunkSize.
func mergeChunks(cfg Config, members []ChunkManifest, taxonomyVersion, sequenceVersion string, now time.Time) (ChunkManifest, bool) {
	var totalSize int64
	taxaSet := taxon.Set{}
	var refs []hashid.Hash

	for _, m := range members {
		totalSize += m.TotalSize
		refs = append(refs, m.SequenceRefs...)
		for _, t := range m.TaxonIDs {
			taxaSet[t] = struct{}{}
		}
	}
	if totalSize > cfg.MaxChunkSize {
		return ChunkManifest{}, false
	}

	taxaIDs := taxaSet.Slice()
	merged := buildManifest(refs, taxaIDs, chunkTypeFor(members), taxonomyVersion, sequenceVersion, now)
	return merged, true
}

func chunkTypeFor(members []ChunkManifest) ChunkType {
	if len(members) == 0 {
		return Full
	}
	return members[0].ChunkType
}
