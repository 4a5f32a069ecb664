package temporal

import (
	"talaria/hashid"
	"talaria/internal/talerr"
	"talaria/manifest"
	"talaria/merkle"
	"talaria/taxon"
	"talaria/taxonomy"
)

// Signer is the minimal capability GenerateTemporalProof needs to seal a
// proof. talaria/seal.Signer satisfies this structurally.
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// TaxonomyInclusion witnesses a taxon's membership in a taxonomy version.
// The taxonomy Merkle root (taxonomy.Tree.RootHash) is computed by
// recursively hashing each node over its children's hashes rather than as a
// binary sibling tree, so
// inclusion here is witnessed by the root-to-leaf lineage rather than a
// classic Merkle sibling path.
type TaxonomyInclusion struct {
	Taxon    taxon.ID
	Lineage  []taxon.ID
	RootHash hashid.Hash
}

// TemporalProof bundles a chunk's Merkle inclusion proof, a taxon's
// taxonomy inclusion witness, a cross-time hash binding the two roots, and
// an optional cryptographic seal (spec §4.G generate_temporal_proof).
type TemporalProof struct {
	ChunkHash     hashid.Hash
	Coordinate    Coordinate
	SequenceProof merkle.Proof
	Taxonomy      TaxonomyInclusion
	CrossHash     hashid.Hash
	Seal          []byte
}

// GenerateTemporalProof builds a TemporalProof for chunkHash's membership
// in m's chunk index and taxonID's membership in tree, at coord. signer
// may be nil, in which case Seal is left empty — an unsigned proof still
// supports local verification, just not cross-party attestation.
func GenerateTemporalProof(m manifest.TemporalManifest, chunkHash hashid.Hash, tree *taxonomy.Tree, taxonID taxon.ID, coord Coordinate, signer Signer) (TemporalProof, error) {
	chunkItem, ok := findChunkMetadata(m.ChunkIndex, chunkHash)
	if !ok {
		return TemporalProof{}, talerr.Newf(talerr.NotFound, "chunk %s not in manifest chunk index", chunkHash)
	}

	items := make([]merkle.Item, len(m.ChunkIndex))
	for i, c := range m.ChunkIndex {
		items[i] = c
	}
	dag := merkle.BuildFromItems(items)
	leaf := merkle.LeafHash(chunkItem)
	sequenceProof, ok := dag.GenerateProofByHash(leaf)
	if !ok {
		return TemporalProof{}, talerr.New(talerr.IntegrityFailure, "chunk leaf absent from rebuilt manifest dag")
	}

	if tree == nil {
		return TemporalProof{}, talerr.New(talerr.NoTaxonomy, "no taxonomy loaded at this coordinate")
	}
	if !tree.TaxonExists(taxonID) {
		return TemporalProof{}, talerr.Newf(talerr.NotFound, "taxon %s not found in taxonomy at this coordinate", taxonID)
	}
	lineage, err := tree.GetLineage(taxonID)
	if err != nil {
		return TemporalProof{}, err
	}
	taxonomyRoot := tree.RootHash()

	crossBuf := make([]byte, 0, 64)
	crossBuf = append(crossBuf, m.SequenceRoot.Bytes()...)
	crossBuf = append(crossBuf, taxonomyRoot.Bytes()...)
	crossHash := hashid.Sum(crossBuf)

	proof := TemporalProof{
		ChunkHash:     chunkHash,
		Coordinate:    coord,
		SequenceProof: sequenceProof,
		Taxonomy: TaxonomyInclusion{
			Taxon:    taxonID,
			Lineage:  lineage,
			RootHash: taxonomyRoot,
		},
		CrossHash: crossHash,
	}

	if signer != nil {
		msg := make([]byte, 0, 64)
		msg = append(msg, chunkHash.Bytes()...)
		msg = append(msg, crossHash.Bytes()...)
		seal, err := signer.Sign(msg)
		if err != nil {
			return TemporalProof{}, talerr.Wrap(talerr.ExternalFailure, "sign temporal proof", err)
		}
		proof.Seal = seal
	}

	return proof, nil
}

func findChunkMetadata(idx []manifest.ChunkMetadata, h hashid.Hash) (manifest.ChunkMetadata, bool) {
	for _, c := range idx {
		if c.Hash == h {
			return c, true
		}
	}
	return manifest.ChunkMetadata{}, false
}

// VerifyTemporalProof recomputes the sequence Merkle root from p and
// compares it against expectedSequenceRoot, the only check that does not
// require re-deriving the taxonomy tree.
func VerifyTemporalProof(p TemporalProof, expectedSequenceRoot hashid.Hash) bool {
	return merkle.VerifyProof(p.SequenceProof, expectedSequenceRoot)
}
