// Package search implements the search orchestrator (C10): a
// cascading exact -> fuzzy/prefix -> semantic query policy over one
// corpus snapshot, with weighted merge/dedup, hot-reload on vocabulary
// change, and non-blocking semantic search. Two retrieval paths run
// concurrently via an errgroup fan-out, and the snapshot itself is
// built through a functional-options constructor.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aman-cerp/corpuscore/internal/corpus"
	"github.com/aman-cerp/corpuscore/internal/errors"
	"github.com/aman-cerp/corpuscore/internal/fuzzy"
	"github.com/aman-cerp/corpuscore/internal/model"
	"github.com/aman-cerp/corpuscore/internal/semantic"
	"github.com/aman-cerp/corpuscore/internal/trie"
)

// Mode selects which cascade tier(s) a Search call runs.
type Mode string

const (
	ModeExact    Mode = "exact"
	ModePrefix   Mode = "prefix"
	ModeFuzzy    Mode = "fuzzy"
	ModeSemantic Mode = "semantic"
	ModeSmart    Mode = "smart"
)

// DefaultPollInterval is how often the orchestrator checks the
// corpus's vocabulary_hash for hot-reload.
const DefaultPollInterval = 30 * time.Second

// weights blend each method's raw score into the merged ranking:
// exact 1.00, prefix 0.95, fuzzy 0.80xscore, semantic 0.70xscore.
const (
	weightExact    = 1.00
	weightPrefix   = 0.95
	weightFuzzy    = 0.80
	weightSemantic = 0.70
)

// Options configures one Search call.
type Options struct {
	Mode     Mode
	K        int
	MinScore float64

	// AlwaysFuzzy disables smart mode's exact-hit short-circuit, so
	// prefix/fuzzy/semantic still run (and merge) even when an exact
	// match was found.
	AlwaysFuzzy bool
}

func (o Options) mode() Mode {
	if o.Mode == "" {
		return ModeSmart
	}
	return o.Mode
}

func (o Options) k() int {
	if o.K <= 0 {
		return 10
	}
	return o.K
}

// Orchestrator runs the cascade over one immutable corpus snapshot: a
// trie+bloom index over the normalized vocabulary, a candidate table
// for fuzzy ranking, and an optional semantic manager shared across
// reloads.
type Orchestrator struct {
	corpusID       string
	vocabularyHash string

	trie       *trie.Trie
	candidates []fuzzy.Candidate
	canonical  map[string]string // original/normalized word -> canonical normalized form

	semanticMgr *semantic.Manager
}

// Option configures an Orchestrator at construction (mirrors the
// teacher's EngineOption pattern).
type Option func(*Orchestrator)

// WithSemanticManager attaches a semantic.Manager so mode=semantic and
// mode=smart can fall through to vector search once it reports ready.
func WithSemanticManager(m *semantic.Manager) Option {
	return func(o *Orchestrator) { o.semanticMgr = m }
}

// NewOrchestrator builds an Orchestrator over one corpus snapshot.
func NewOrchestrator(entity *corpus.Entity, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		corpusID:       entity.CorpusID,
		vocabularyHash: entity.VocabularyHash,
		trie:           trie.Build(entity.NormalizedVocabulary),
		canonical:      make(map[string]string, len(entity.Vocabulary)),
	}

	o.candidates = make([]fuzzy.Candidate, len(entity.Vocabulary))
	for i, word := range entity.Vocabulary {
		normalized := entity.NormalizedVocabulary[i]
		lemma := ""
		if i < len(entity.LemmatizedVocabulary) {
			lemma = entity.LemmatizedVocabulary[i]
		}
		o.candidates[i] = fuzzy.Candidate{
			Word:            normalized,
			Lemma:           lemma,
			Language:        entity.Language,
			SignatureBucket: fuzzy.SignatureBucket(normalized),
		}
		o.canonical[word] = normalized
		o.canonical[normalized] = normalized
	}

	for _, opt := range opts {
		opt(o)
	}
	return o
}

// VocabularyHash reports the snapshot's vocabulary_hash, compared
// against the corpus's live hash to decide whether a reload is due.
func (o *Orchestrator) VocabularyHash() string {
	return o.vocabularyHash
}

// Search runs the cascade described by opts.Mode.
func (o *Orchestrator) Search(ctx context.Context, query string, opts Options) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	switch opts.mode() {
	case ModeExact:
		return o.exact(query), nil
	case ModePrefix:
		return o.prefix(query, opts.k()), nil
	case ModeFuzzy:
		return o.fuzzy(query, opts.k(), opts.MinScore), nil
	case ModeSemantic:
		return o.semanticSearch(ctx, query, opts.k())
	default:
		return o.smart(ctx, query, opts, opts.AlwaysFuzzy)
	}
}

func (o *Orchestrator) exact(query string) []model.SearchResult {
	if !o.trie.Contains(query) {
		return nil
	}
	return []model.SearchResult{{
		Word:   query,
		Score:  weightExact,
		Method: model.SearchMethodExact,
	}}
}

func (o *Orchestrator) prefix(query string, k int) []model.SearchResult {
	words := o.trie.Prefix(query, k)
	out := make([]model.SearchResult, len(words))
	for i, w := range words {
		out[i] = model.SearchResult{Word: w, Score: weightPrefix, Method: model.SearchMethodPrefix}
	}
	return out
}

func (o *Orchestrator) fuzzy(query string, k int, minScore float64) []model.SearchResult {
	results := fuzzy.Rank(query, o.candidates, k, minScore, fuzzy.Options{})
	for i := range results {
		results[i].Score *= weightFuzzy
	}
	return results
}

func (o *Orchestrator) semanticSearch(ctx context.Context, query string, k int) ([]model.SearchResult, error) {
	if o.semanticMgr == nil || !o.semanticMgr.Ready() {
		return nil, errors.SemanticNotReady(o.corpusID)
	}
	results, err := o.semanticMgr.Search(ctx, o.corpusID, query, k)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Score *= weightSemantic
	}
	return results, nil
}

// smart runs the default cascade: exact first, returned immediately
// unless alwaysFuzzy is set; otherwise fuzzy and prefix run
// concurrently via errgroup; semantic runs only if still below k and
// the index is ready; results are merged, deduped by canonical word
// keeping the highest weight, and sorted by score descending with a
// stable tie-break.
func (o *Orchestrator) smart(ctx context.Context, query string, opts Options, alwaysFuzzy bool) ([]model.SearchResult, error) {
	k := opts.k()
	var all []model.SearchResult

	exactHits := o.exact(query)
	all = append(all, exactHits...)
	if len(exactHits) >= 1 && !alwaysFuzzy {
		return dedupAndSort(all, o.canonical), nil
	}

	var mu sync.Mutex
	var g errgroup.Group

	g.Go(func() error {
		prefixHits := o.prefix(query, k)
		mu.Lock()
		all = append(all, prefixHits...)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		fuzzyHits := o.fuzzy(query, k, opts.MinScore)
		mu.Lock()
		all = append(all, fuzzyHits...)
		mu.Unlock()
		return nil
	})
	_ = g.Wait() // best-effort: neither goroutine returns an error

	if len(all) < k && o.semanticMgr != nil && o.semanticMgr.Ready() {
		semanticHits, err := o.semanticSearch(ctx, query, k)
		if err == nil {
			all = append(all, semanticHits...)
		}
	}

	return dedupAndSort(all, o.canonical), nil
}

// dedupAndSort implements the dedup rule: keep the highest-weighted
// hit per canonical (normalized) word, then sort by score descending,
// stable under ties.
func dedupAndSort(results []model.SearchResult, canonical map[string]string) []model.SearchResult {
	best := make(map[string]model.SearchResult, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		key := canonicalWord(r.Word, canonical)
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = r
			continue
		}
		if r.Score > existing.Score {
			best[key] = r
		}
	}

	out := make([]model.SearchResult, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func canonicalWord(word string, canonical map[string]string) string {
	if c, ok := canonical[word]; ok {
		return c
	}
	return word
}
