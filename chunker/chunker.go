package chunker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"talaria/hashid"
	"talaria/sequence"
	"talaria/taxon"
	"talaria/taxonomy"
)

// ingestBatchSize is the suggested mini-batch size for parallel hashing
// through the canonical sequence store (spec §4.E step 2).
const ingestBatchSize = 50000

// Chunker runs the enrich/store/group/pack/special-taxa pipeline over a
// batch of input sequences (spec §4.E).
type Chunker struct {
	cfg      Config
	seqStore *sequence.Store
	tree     *taxonomy.Tree // optional; enables GroupWithSiblings/GroupAtLevel and accession lookups
	log      zerolog.Logger
}

// New creates a Chunker. tree may be nil if taxonomy-aware special-taxa
// policies are not in use.
func New(cfg Config, seqStore *sequence.Store, tree *taxonomy.Tree, log zerolog.Logger) *Chunker {
	return &Chunker{cfg: cfg, seqStore: seqStore, tree: tree, log: log.With().Str("component", "chunker").Logger()}
}

// Result is the outcome of one chunking run.
type Result struct {
	Chunks        []ChunkManifest
	Discrepancies []Discrepancy
}

// Chunk runs the full pipeline: enrich taxa, store canonically, group,
// pack, and apply the special-taxa post-pass. now is caller-supplied rather
// than sampled internally so a resumed run of the same logical batch (spec
// §4.K) reproduces byte-identical chunk manifests instead of drifting on
// CreatedAt with every retry.
func (c *Chunker) Chunk(items []Sequence, taxonomyVersion, sequenceVersion string, lookup AccessionLookup, now time.Time) (Result, error) {
	resolved := make([]taxon.ID, len(items))
	var discMu sync.Mutex
	var discrepancies []Discrepancy
	for i, seq := range items {
		t, disc := resolveTaxon(seq, lookup)
		resolved[i] = t
		if disc != nil {
			discMu.Lock()
			discrepancies = append(discrepancies, *disc)
			discMu.Unlock()
		}
	}

	hashToTaxon := make(map[hashid.Hash]taxon.ID, len(items))
	for start := 0; start < len(items); start += ingestBatchSize {
		end := start + ingestBatchSize
		if end > len(items) {
			end = len(items)
		}
		batchItems := make([]sequence.BatchItem, end-start)
		for i, seq := range items[start:end] {
			batchItems[i] = sequence.BatchItem{Bytes: seq.Bytes, Header: seq.Header, Source: seq.SourceDatabase}
		}
		results, err := c.seqStore.StoreSequencesBatch(batchItems)
		if err != nil {
			return Result{}, err
		}
		for i, r := range results {
			if r.Err != nil {
				continue // per-item failures are dropped from chunking, not fatal (spec §7)
			}
			hashToTaxon[r.Hash] = resolved[start+i]
		}
	}

	taxonIDs, groups := groupByTaxon(hashToTaxon)

	batchSize := adaptiveBatchSize(len(taxonIDs))
	chunksByTaxon := make([][]ChunkManifest, len(taxonIDs))

	for batchStart := 0; batchStart < len(taxonIDs); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(taxonIDs) {
			batchEnd = len(taxonIDs)
		}
		var g errgroup.Group
		for i := batchStart; i < batchEnd; i++ {
			i := i
			g.Go(func() error {
				t := taxonIDs[i]
				chunksByTaxon[i] = packGroup(c.cfg, t, groups[t], taxonomyVersion, sequenceVersion, now)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
	}

	var chunks []ChunkManifest
	for _, cs := range chunksByTaxon {
		chunks = append(chunks, cs...)
	}

	chunks = applySpecialTaxa(c.cfg, c.tree, chunks, taxonomyVersion, sequenceVersion, now)

	return Result{Chunks: chunks, Discrepancies: discrepancies}, nil
}

// adaptiveBatchSize picks a parallel batch size in [10, 100], scaling with
// the total number of taxa groups (spec §4.E parallelism note). With 10 or
// fewer groups, all of them form a single batch.
func adaptiveBatchSize(totalTaxa int) int {
	if totalTaxa <= 10 {
		return totalTaxa
	}
	size := totalTaxa / 8
	if size < 10 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	return size
}
