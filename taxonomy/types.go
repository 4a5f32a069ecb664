// Package taxonomy loads and versions NCBI-style taxonomy trees (spec §4.C):
// nodes.dmp/names.dmp parsing, lineage walks, and version comparison.
package taxonomy

import (
	"time"

	"talaria/hashid"
	"talaria/taxon"
)

// Node is one entry in the taxonomy tree.
type Node struct {
	ID       taxon.ID
	Parent   taxon.ID // only meaningful when ID != taxon.Root
	Name     string
	Rank     string
	Children []taxon.ID
}

// canonicalBytes serializes a node's own identity plus its already-computed
// child hashes; Tree.RootHash hashes this to get the node's hash.
func (n Node) canonicalBytes(childHashes []hashid.Hash) []byte {
	buf := make([]byte, 0, 64+len(childHashes)*32)
	buf = append(buf, []byte(n.ID.String())...)
	buf = append(buf, '|')
	buf = append(buf, []byte(n.Rank)...)
	buf = append(buf, '|')
	buf = append(buf, []byte(n.Name)...)
	for _, h := range childHashes {
		buf = append(buf, h.Bytes()...)
	}
	return buf
}

// Tree is a loaded, validated taxonomy.
type Tree struct {
	Nodes map[taxon.ID]*Node
	Root  taxon.ID
}

// Version records one loaded taxonomy snapshot (spec §3).
type Version struct {
	VersionTag      string
	Timestamp       time.Time
	RootHash        hashid.Hash
	NodeCount       int
	Source          string
	Reclassifications map[taxon.ID]taxon.ID
	ActiveTaxa      taxon.Set
}

// TaxonomyChanges is the result of comparing two taxonomy versions (spec §4.C).
type TaxonomyChanges struct {
	Reclassifications map[taxon.ID]taxon.ID // old parent-changed taxa -> new parent
	NewTaxa           []taxon.ID
	DeprecatedTaxa    []taxon.ID
	MergedTaxa        map[taxon.ID]taxon.ID // deprecated taxon -> surviving parent it merged into
	// AmbiguousReclassifications holds deprecated taxa whose former children
	// now report more than one distinct new parent, so no single surviving
	// taxon can be picked automatically (spec §4.H ClassificationConflict).
	// Candidate lists are sorted and have at least two entries.
	AmbiguousReclassifications map[taxon.ID][]taxon.ID
}
