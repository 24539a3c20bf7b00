package semantic

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sort"

	"github.com/aman-cerp/corpuscore/internal/async"
	"github.com/aman-cerp/corpuscore/internal/coldstore"
	"github.com/aman-cerp/corpuscore/internal/embed"
	"github.com/aman-cerp/corpuscore/internal/errors"
	"github.com/aman-cerp/corpuscore/internal/model"
	"github.com/aman-cerp/corpuscore/internal/version"
)

// embedBatchSize is the batch size used when embedding corpus lemmas
// during a build.
const embedBatchSize = 64

// Manager owns the semantic index lifecycle for one corpus: building
// it asynchronously, persisting it through the version manager once
// non-empty, loading it back, and serving ready/not-ready query state.
type Manager struct {
	versions *version.Manager
	embedder embed.Embedder
	lockDir  string

	task  *async.Task
	index *Index

	ready bool
	err   error
}

// ManagerOption configures a Manager at construction.
type ManagerOption func(*Manager)

// WithLockDir enables cross-process rebuild coordination: EnableSemantic
// acquires an exclusive github.com/gofrs/flock-backed FileLock rooted at
// dir before building, so two processes sharing the same data directory
// never race to rebuild the same corpus's index concurrently.
func WithLockDir(dir string) ManagerOption {
	return func(m *Manager) { m.lockDir = dir }
}

// NewManager creates a Manager for one corpus, backed by the given
// version manager (for persistence) and embedder (for vectorizing
// words).
func NewManager(versions *version.Manager, embedder embed.Embedder, opts ...ManagerOption) *Manager {
	m := &Manager{versions: versions, embedder: embedder}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ready reports whether a built, loaded semantic index is currently
// available for Search.
func (m *Manager) Ready() bool {
	return m.ready
}

// LastError returns the error from the most recent failed build, if any.
func (m *Manager) LastError() error {
	return m.err
}

// Search runs query against the loaded index, returning SearchResults
// scored by the semantic method. Returns SemanticNotReady if no index
// has been built or loaded yet; the caller orchestrating multi-method
// search treats that as an omission rather than a hard failure.
func (m *Manager) Search(ctx context.Context, corpusID, query string, k int) ([]model.SearchResult, error) {
	if !m.ready || m.index == nil {
		return nil, errors.SemanticNotReady(corpusID)
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.BuilderFailed(err)
	}

	hits, err := m.index.Search(vec, k)
	if err != nil {
		return nil, err
	}

	out := make([]model.SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, model.SearchResult{
			Word:           h.ID,
			LemmatizedWord: h.ID,
			Score:          h.Score,
			Method:         model.SearchMethodSemantic,
		})
	}
	return out, nil
}

// EnableSemantic spawns a background build for corpusID over the
// given lemmas. Non-blocking; returns the Task handle so
// callers can poll progress or Wait. Calling this again while a
// previous attempt is running returns the in-flight task unchanged;
// calling it again after a failure starts a fresh attempt.
func (m *Manager) EnableSemantic(ctx context.Context, corpusID, vocabularyHash string, lemmas []string) *async.Task {
	if m.task != nil && m.task.IsRunning() {
		return m.task
	}

	m.task = async.NewTask(func(ctx context.Context, p *async.Progress) error {
		var lock *embed.FileLock
		if m.lockDir != "" {
			lock = embed.NewFileLock(m.lockDir)
			if err := lock.Lock(); err != nil {
				m.ready = false
				m.err = err
				slog.Warn("semantic_build_lock_failed",
					slog.String("corpus_id", corpusID),
					slog.String("error", err.Error()))
				return err
			}
			defer lock.Unlock()
		}

		idx, err := m.build(ctx, p, corpusID, vocabularyHash, lemmas)
		if err != nil {
			m.ready = false
			m.err = err
			slog.Warn("semantic_build_failed",
				slog.String("corpus_id", corpusID),
				slog.String("error", err.Error()))
			return err
		}
		m.index = idx
		m.ready = true
		m.err = nil
		slog.Info("semantic_build_complete",
			slog.String("corpus_id", corpusID),
			slog.Int("num_embeddings", idx.Len()))
		return nil
	})
	m.task.Start(ctx)
	return m.task
}

// build tokenizes, embeds in batches, populates the index, and
// persists only once num_embeddings > 0.
func (m *Manager) build(ctx context.Context, p *async.Progress, corpusID, vocabularyHash string, lemmas []string) (*Index, error) {
	p.SetStage(async.StageTokenizing, len(lemmas))
	words := dedupe(lemmas)
	p.UpdateItems(len(words))

	if len(words) == 0 {
		return nil, errors.EmptySemanticIndex(corpusID)
	}

	p.SetStage(async.StageEmbedding, len(words))
	idx := NewIndex(m.embedder.Dimensions(), len(words))

	for start := 0; start < len(words); start += embedBatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + embedBatchSize
		if end > len(words) {
			end = len(words)
		}
		batch := words[start:end]

		vectors, err := m.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, errors.BuilderFailed(err)
		}
		for i, word := range batch {
			if err := idx.Add(word, vectors[i]); err != nil {
				return nil, errors.BuilderFailed(err)
			}
		}
		p.UpdateItems(end)
	}

	p.SetStage(async.StageBuilding, idx.Len())
	if idx.Len() == 0 {
		return nil, errors.EmptySemanticIndex(corpusID)
	}

	entity, err := m.marshalEntity(corpusID, vocabularyHash, idx)
	if err != nil {
		return nil, errors.BuilderFailed(err)
	}

	if _, err := m.versions.Save(ctx, model.ResourceTypeSemantic, corpusID, entity, version.SaveOptions{
		Sparse: coldstore.SparseFields{CorpusID: corpusID, VocabularyHash: vocabularyHash},
	}); err != nil {
		return nil, errors.PersistError(err)
	}

	p.UpdateItems(idx.Len())
	return idx, nil
}

// marshalEntity packs an Index's envelope (and, for HNSW, its graph
// bytes) into one length-prefixed blob so it round-trips through a
// single []byte column.
func (m *Manager) marshalEntity(corpusID, vocabularyHash string, idx *Index) (coldstore.SemanticIndexEntity, error) {
	envelope, graphBytes, err := idx.Marshal()
	if err != nil {
		return coldstore.SemanticIndexEntity{}, err
	}

	variant := "flat"
	if idx.mode == modeHNSW {
		variant = "hnsw"
	}

	return coldstore.SemanticIndexEntity{
		CorpusID:       corpusID,
		VocabularyHash: vocabularyHash,
		ModelName:      m.embedder.ModelName(),
		Dimensions:     idx.Dimensions(),
		NumEmbeddings:  idx.Len(),
		IndexVariant:   variant,
		SerializedData: packBlobs(envelope, graphBytes),
	}, nil
}

// Load reads the latest persisted semantic index for corpusID and
// makes it available for Search, refusing entities with
// num_embeddings = 0.
func (m *Manager) Load(corpusID string) error {
	rec, err := m.versions.GetLatest(model.ResourceTypeSemantic, corpusID)
	if err != nil {
		m.ready = false
		return err
	}

	var entity coldstore.SemanticIndexEntity
	if err := m.versions.LoadContent(rec, &entity); err != nil {
		m.ready = false
		return err
	}
	if entity.NumEmbeddings == 0 {
		m.ready = false
		return errors.EmptySemanticIndex(corpusID)
	}

	envelope, graphBytes, err := unpackBlobs(entity.SerializedData)
	if err != nil {
		m.ready = false
		return errors.CorruptIndexError(err)
	}

	idx, err := Unmarshal(envelope, graphBytes)
	if err != nil {
		m.ready = false
		return err
	}

	m.index = idx
	m.ready = true
	m.err = nil
	return nil
}

// packBlobs concatenates two byte slices with a length prefix on the
// first so they can be split back apart unambiguously.
func packBlobs(a, b []byte) []byte {
	out := make([]byte, 8+len(a)+len(b))
	binary.BigEndian.PutUint64(out[:8], uint64(len(a)))
	copy(out[8:], a)
	copy(out[8+len(a):], b)
	return out
}

func unpackBlobs(data []byte) (a, b []byte, err error) {
	if len(data) < 8 {
		return nil, nil, errors.InternalError("semantic index blob too short", nil)
	}
	n := binary.BigEndian.Uint64(data[:8])
	data = data[8:]
	if uint64(len(data)) < n {
		return nil, nil, errors.InternalError("semantic index blob truncated", nil)
	}
	return data[:n], data[n:], nil
}

func dedupe(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
