// Package semantic implements the semantic index (C9): a dense
// embedding store keyed by (corpus, model_name), searched by an
// approximate nearest-neighbor index whose variant is chosen by
// vocabulary size. At or below FlatThreshold words, an exact
// brute-force cosine scan is used (HNSW degenerates to exact at this
// scale anyway, so a separate flat implementation earns its keep only
// by being simpler and allocation-free for small corpora); above it,
// github.com/coder/hnsw's pure-Go graph is used. IVF/PQ/OPQ variants
// described in the size table are not separately wired — no pack repo
// carries a Go IVF/PQ/FAISS binding, so those tiers fall back to the
// HNSW graph with the same fixed parameters (see DESIGN.md).
package semantic

import (
	"bytes"
	"encoding/gob"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/aman-cerp/corpuscore/internal/errors"
)

// FlatThreshold is the vocabulary size at/under which Index uses an
// exact brute-force scan instead of the HNSW graph.
const FlatThreshold = 5000

// HNSW parameters for vocabularies above FlatThreshold, tuned for the
// 40k-150k range and used unchanged at every vocabulary size above
// FlatThreshold. NewIndex and Unmarshal apply HNSWM and HNSWEfSearch;
// HNSWEfConstruction is not passed to the graph.
const (
	HNSWM              = 32
	HNSWEfConstruction = 200
	HNSWEfSearch       = 64
)

// Result is a single nearest-neighbor hit.
type Result struct {
	ID    string
	Score float64
}

// indexMode selects the search strategy.
type indexMode int

const (
	modeFlat indexMode = iota
	modeHNSW
)

// Index holds embeddings for one corpus snapshot and serves ANN
// queries against them. Not safe to share across corpora; one Index
// exists per (corpus_id, model_name, vocabulary_hash).
type Index struct {
	mu   sync.RWMutex
	dims int
	mode indexMode

	graph *hnsw.Graph[uint64]

	// flatVectors backs the brute-force path (nil when mode == modeHNSW).
	flatVectors map[uint64][]float32

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// NewIndex creates an Index sized for the given dimensionality and
// expected vocabulary size, selecting flat or HNSW by FlatThreshold.
func NewIndex(dims int, expectedVocabSize int) *Index {
	idx := &Index{
		dims:    dims,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		nextKey: 0,
	}

	if expectedVocabSize <= FlatThreshold {
		idx.mode = modeFlat
		idx.flatVectors = make(map[uint64][]float32)
		return idx
	}

	idx.mode = modeHNSW
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = HNSWM
	graph.EfSearch = HNSWEfSearch
	graph.Ml = 1.0 / math.Log(float64(HNSWM))
	idx.graph = graph
	return idx
}

// Dimensions returns the configured embedding dimensionality.
func (idx *Index) Dimensions() int {
	return idx.dims
}

// Len returns the number of embeddings held.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idMap)
}

// Add inserts or replaces the embedding for id. Replacing an existing
// id uses lazy deletion in the HNSW path (the underlying graph never
// shrinks): deleting the last node in coder/hnsw is unreliable, so
// orphaned nodes are simply unreachable via idMap/keyMap instead of
// being removed from the graph.
func (idx *Index) Add(id string, vector []float32) error {
	if len(vector) != idx.dims {
		return errors.DimensionMismatch(idx.dims, len(vector))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existingKey, ok := idx.idMap[id]; ok {
		delete(idx.keyMap, existingKey)
		delete(idx.idMap, id)
		if idx.flatVectors != nil {
			delete(idx.flatVectors, existingKey)
		}
	}

	key := idx.nextKey
	idx.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)

	switch idx.mode {
	case modeFlat:
		idx.flatVectors[key] = vec
	case modeHNSW:
		idx.graph.Add(hnsw.MakeNode(key, vec))
	}

	idx.idMap[id] = key
	idx.keyMap[key] = id
	return nil
}

// Search returns up to k nearest neighbors of query, highest score first.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if len(query) != idx.dims {
		return nil, errors.DimensionMismatch(idx.dims, len(query))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.idMap) == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	switch idx.mode {
	case modeFlat:
		return idx.searchFlat(q, k), nil
	default:
		return idx.searchHNSW(q, k), nil
	}
}

func (idx *Index) searchFlat(q []float32, k int) []Result {
	results := make([]Result, 0, len(idx.flatVectors))
	for key, vec := range idx.flatVectors {
		id, ok := idx.keyMap[key]
		if !ok {
			continue
		}
		results = append(results, Result{ID: id, Score: cosineScore(q, vec)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

func (idx *Index) searchHNSW(q []float32, k int) []Result {
	nodes := idx.graph.Search(q, k)
	results := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		id, ok := idx.keyMap[n.Key]
		if !ok {
			continue // orphaned (lazily deleted) node
		}
		distance := idx.graph.Distance(q, n.Value)
		results = append(results, Result{ID: id, Score: 1.0 - float64(distance)/2.0})
	}
	return results
}

// indexEnvelope is the gob-serializable snapshot of an Index.
type indexEnvelope struct {
	Dims        int
	Mode        indexMode
	IDMap       map[string]uint64
	NextKey     uint64
	FlatVectors map[uint64][]float32
}

// Marshal serializes the index. For the HNSW path, the graph is
// exported separately via coder/hnsw's own binary format and appended
// as a second byte slice; the flat path has no second slice.
func (idx *Index) Marshal() (envelope []byte, graphBytes []byte, err error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	env := indexEnvelope{
		Dims:        idx.dims,
		Mode:        idx.mode,
		IDMap:       idx.idMap,
		NextKey:     idx.nextKey,
		FlatVectors: idx.flatVectors,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, nil, errors.InternalError("failed to serialize semantic index", err)
	}

	if idx.mode != modeHNSW {
		return buf.Bytes(), nil, nil
	}

	var graphBuf bytes.Buffer
	if err := idx.graph.Export(&graphBuf); err != nil {
		return nil, nil, errors.InternalError("failed to export hnsw graph", err)
	}
	return buf.Bytes(), graphBuf.Bytes(), nil
}

// Unmarshal reconstructs an Index from bytes produced by Marshal.
func Unmarshal(envelope []byte, graphBytes []byte) (*Index, error) {
	var env indexEnvelope
	if err := gob.NewDecoder(bytes.NewReader(envelope)).Decode(&env); err != nil {
		return nil, errors.CorruptIndexError(err)
	}

	idx := &Index{
		dims:    env.Dims,
		mode:    env.Mode,
		idMap:   env.IDMap,
		nextKey: env.NextKey,
	}
	idx.keyMap = make(map[uint64]string, len(idx.idMap))
	for id, key := range idx.idMap {
		idx.keyMap[key] = id
	}

	if idx.mode == modeFlat {
		idx.flatVectors = env.FlatVectors
		return idx, nil
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = HNSWM
	graph.EfSearch = HNSWEfSearch
	graph.Ml = 1.0 / math.Log(float64(HNSWM))
	if err := graph.Import(bytes.NewReader(graphBytes)); err != nil {
		return nil, errors.CorruptIndexError(err)
	}
	idx.graph = graph
	return idx, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

func cosineScore(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	// a, b are both unit vectors (normalized on insert/query), so dot
	// product is already the cosine similarity in [-1, 1].
	return dot
}
