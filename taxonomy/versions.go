package taxonomy

import (
	"sort"

	"talaria/taxon"
)

// CompareVersions computes the set difference between two loaded trees plus
// a parent-change scan over nodes common to both, with heuristic merge
// detection (spec §4.C): a deprecated node all of whose former children now
// share a single new parent is recorded as merged into that parent.
func CompareVersions(old, new *Tree) TaxonomyChanges {
	changes := TaxonomyChanges{
		Reclassifications:          map[taxon.ID]taxon.ID{},
		MergedTaxa:                 map[taxon.ID]taxon.ID{},
		AmbiguousReclassifications: map[taxon.ID][]taxon.ID{},
	}

	for id := range new.Nodes {
		if !old.TaxonExists(id) {
			changes.NewTaxa = append(changes.NewTaxa, id)
		}
	}

	var deprecated []taxon.ID
	for id := range old.Nodes {
		if !new.TaxonExists(id) {
			deprecated = append(deprecated, id)
			continue
		}
		oldNode := old.Nodes[id]
		newNode := new.Nodes[id]
		if id != old.Root && oldNode.Parent != newNode.Parent {
			changes.Reclassifications[id] = newNode.Parent
		}
	}
	changes.DeprecatedTaxa = deprecated

	for _, dep := range deprecated {
		depNode := old.Nodes[dep]
		if len(depNode.Children) == 0 {
			continue
		}
		candidates := make(map[taxon.ID]struct{})
		for _, child := range depNode.Children {
			newChild, ok := new.Nodes[child]
			if !ok {
				continue
			}
			candidates[newChild.Parent] = struct{}{}
		}
		switch len(candidates) {
		case 0:
			// every former child vanished too; nothing to reclassify against.
		case 1:
			for parent := range candidates {
				if parent != dep {
					changes.MergedTaxa[dep] = parent
				}
			}
		default:
			ids := make([]taxon.ID, 0, len(candidates))
			for parent := range candidates {
				ids = append(ids, parent)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			changes.AmbiguousReclassifications[dep] = ids
		}
	}

	return changes
}
