package taxonomy

import (
	"sort"

	"talaria/hashid"
	"talaria/internal/talerr"
	"talaria/taxon"
)

// TaxonExists reports whether id is present in the tree.
func (t *Tree) TaxonExists(id taxon.ID) bool {
	_, ok := t.Nodes[id]
	return ok
}

// GetParent returns id's parent, or ok=false at the root.
func (t *Tree) GetParent(id taxon.ID) (taxon.ID, bool) {
	n, ok := t.Nodes[id]
	if !ok || id == t.Root {
		return taxon.Unclassified, false
	}
	return n.Parent, true
}

// GetAncestorAtRank walks up from id looking for the first ancestor whose
// Rank equals rank (inclusive of id itself).
func (t *Tree) GetAncestorAtRank(id taxon.ID, rank string) (taxon.ID, bool) {
	cur := id
	for {
		n, ok := t.Nodes[cur]
		if !ok {
			return taxon.Unclassified, false
		}
		if n.Rank == rank {
			return cur, true
		}
		if cur == t.Root {
			return taxon.Unclassified, false
		}
		cur = n.Parent
	}
}

// GetLineage returns the root-to-leaf path of ids ending at id.
func (t *Tree) GetLineage(id taxon.ID) ([]taxon.ID, error) {
	if !t.TaxonExists(id) {
		return nil, talerr.Newf(talerr.NotFound, "taxon %s not found", id)
	}
	var reversed []taxon.ID
	cur := id
	for {
		reversed = append(reversed, cur)
		if cur == t.Root {
			break
		}
		n := t.Nodes[cur]
		cur = n.Parent
	}
	lineage := make([]taxon.ID, len(reversed))
	for i, id := range reversed {
		lineage[len(reversed)-1-i] = id
	}
	return lineage, nil
}

// RootHash computes the taxonomy Merkle root recursively from the root:
// each node's hash combines its own identity with its children's hashes
// (children in ascending id order), which are computed first (spec §4.C).
func (t *Tree) RootHash() hashid.Hash {
	memo := make(map[taxon.ID]hashid.Hash, len(t.Nodes))
	var hashNode func(id taxon.ID) hashid.Hash
	hashNode = func(id taxon.ID) hashid.Hash {
		if h, ok := memo[id]; ok {
			return h
		}
		n := t.Nodes[id]
		children := append([]taxon.ID(nil), n.Children...)
		sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })

		childHashes := make([]hashid.Hash, len(children))
		for i, c := range children {
			childHashes[i] = hashNode(c)
		}
		h := hashid.Sum(n.canonicalBytes(childHashes))
		memo[id] = h
		return h
	}
	if _, ok := t.Nodes[t.Root]; !ok {
		return hashid.Zero
	}
	return hashNode(t.Root)
}
