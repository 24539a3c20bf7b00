// Package corpus implements the corpus manager (C11): vocabulary
// storage, normalization, lemmatization, signature bucketing, tree
// aggregation, and cascade deletion over CorpusEntity records held by
// the version manager.
package corpus

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"

	"github.com/aman-cerp/corpuscore/internal/canon"
	"github.com/aman-cerp/corpuscore/internal/coldstore"
	"github.com/aman-cerp/corpuscore/internal/errors"
	"github.com/aman-cerp/corpuscore/internal/fuzzy"
	"github.com/aman-cerp/corpuscore/internal/model"
	"github.com/aman-cerp/corpuscore/internal/version"
)

// Entity is the persisted corpus payload.
type Entity = coldstore.CorpusEntity

// Manager implements the corpus operations over a version manager.
type Manager struct {
	versions *version.Manager
}

// NewManager creates a corpus Manager backed by versions.
func NewManager(versions *version.Manager) *Manager {
	return &Manager{versions: versions}
}

// DB returns the underlying cold-store connection backing this
// corpus's versions, used by internal/search to persist query
// telemetry in the same database file.
func (m *Manager) DB() *sql.DB {
	return m.versions.DB()
}

// Create starts a new, empty corpus.
func (m *Manager) Create(ctx context.Context, name, corpusType, language string, preserveDiacritics bool) (*Entity, error) {
	if name == "" {
		return nil, errors.ValidationError("corpus name must not be empty")
	}

	entity := &Entity{
		CorpusID:                  uuid.NewString(),
		CorpusName:                name,
		CorpusType:                corpusType,
		Language:                  language,
		Vocabulary:                []string{},
		NormalizedVocabulary:      []string{},
		LemmatizedVocabulary:      []string{},
		VocabularyToIndex:         map[string]int{},
		NormalizedToOriginalIndex: map[int][]int{},
		LemmaToWordIndices:        map[string][]int{},
		SignatureBuckets:          map[string][]int{},
		PreserveDiacritics:        preserveDiacritics,
	}
	entity.VocabularyHash = vocabularyHash(entity.NormalizedVocabulary)

	if err := m.save(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// AddWords merges words into the corpus's vocabulary, skipping blanks
// and duplicates, then recomputes every derived field.
func (m *Manager) AddWords(ctx context.Context, corpusID string, words []string) (*Entity, error) {
	entity, err := m.load(corpusID)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool, len(entity.Vocabulary))
	for _, w := range entity.Vocabulary {
		existing[w] = true
	}
	for _, w := range words {
		if w == "" || existing[w] {
			continue
		}
		existing[w] = true
		entity.Vocabulary = append(entity.Vocabulary, w)
	}

	reindex(entity)

	if err := m.save(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// RemoveWords drops words from the corpus's vocabulary, symmetric to
// AddWords.
func (m *Manager) RemoveWords(ctx context.Context, corpusID string, words []string) (*Entity, error) {
	entity, err := m.load(corpusID)
	if err != nil {
		return nil, err
	}

	remove := make(map[string]bool, len(words))
	for _, w := range words {
		remove[w] = true
	}

	kept := entity.Vocabulary[:0:0]
	for _, w := range entity.Vocabulary {
		if !remove[w] {
			kept = append(kept, w)
		}
	}
	entity.Vocabulary = kept

	reindex(entity)

	if err := m.save(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// AddChild wires a parent/child relationship and re-aggregates the
// parent's vocabulary as the union over all its children.
func (m *Manager) AddChild(ctx context.Context, parentID, childID string) (*Entity, error) {
	parent, err := m.load(parentID)
	if err != nil {
		return nil, err
	}
	child, err := m.load(childID)
	if err != nil {
		return nil, err
	}

	hasChild := false
	for _, id := range parent.ChildIDs {
		if id == childID {
			hasChild = true
			break
		}
	}
	if !hasChild {
		parent.ChildIDs = append(parent.ChildIDs, childID)
	}

	child.ParentID = parentID
	if err := m.save(ctx, child); err != nil {
		return nil, err
	}

	if err := m.aggregate(ctx, parent); err != nil {
		return nil, err
	}
	return parent, nil
}

// aggregate rebuilds a parent's vocabulary as the union over its
// children's current vocabularies and persists it, so the parent's
// own vocabulary field after reload always equals the aggregation
// result rather than a stale local snapshot.
func (m *Manager) aggregate(ctx context.Context, parent *Entity) error {
	union := map[string]bool{}
	for _, childID := range parent.ChildIDs {
		child, err := m.load(childID)
		if err != nil {
			if errors.IsNotFoundCode(errors.GetCode(err)) {
				continue
			}
			return err
		}
		for _, w := range child.Vocabulary {
			union[w] = true
		}
	}

	words := make([]string, 0, len(union))
	for w := range union {
		words = append(words, w)
	}
	sort.Strings(words)
	parent.Vocabulary = words

	reindex(parent)
	return m.save(ctx, parent)
}

// Delete removes a corpus. With cascade, every SearchIndex, TrieIndex,
// and SemanticIndex referencing corpusID is deleted first, then every
// child is deleted recursively, and the parent's child_ids is updated.
// Returns the number of resources removed: each corpus and each index
// counts once, whatever its number of stored versions.
func (m *Manager) Delete(ctx context.Context, corpusID string, cascade bool) (int, error) {
	entity, err := m.load(corpusID)
	if err != nil {
		return 0, err
	}

	count := 0
	if cascade {
		for _, rt := range []model.ResourceType{model.ResourceTypeSearch, model.ResourceTypeTrie, model.ResourceTypeSemantic} {
			refs, err := m.versions.FindBySparseField(rt, "corpus_id", corpusID)
			if err != nil {
				return count, err
			}
			for _, ref := range refs {
				if _, err := m.versions.Delete(ctx, rt, ref.ResourceID, false); err != nil {
					return count, err
				}
				count++
			}
		}

		for _, childID := range entity.ChildIDs {
			n, err := m.Delete(ctx, childID, true)
			count += n
			if err != nil {
				return count, err
			}
		}
	}

	if _, err := m.versions.Delete(ctx, model.ResourceTypeCorpus, corpusID, false); err != nil {
		return count, err
	}
	count++

	if entity.ParentID != "" {
		parent, err := m.load(entity.ParentID)
		if err == nil {
			kept := parent.ChildIDs[:0:0]
			for _, id := range parent.ChildIDs {
				if id != corpusID {
					kept = append(kept, id)
				}
			}
			parent.ChildIDs = kept
			if err := m.aggregate(ctx, parent); err != nil {
				return count, err
			}
		} else if !errors.IsNotFoundCode(errors.GetCode(err)) {
			return count, err
		}
	}

	return count, nil
}

// Get loads the current persisted state of one corpus, used by
// internal/search to detect vocabulary_hash drift for hot reload.
func (m *Manager) Get(ctx context.Context, corpusID string) (*Entity, error) {
	return m.load(corpusID)
}

func (m *Manager) load(corpusID string) (*Entity, error) {
	rec, err := m.versions.GetLatest(model.ResourceTypeCorpus, corpusID)
	if err != nil {
		return nil, err
	}
	var entity Entity
	if err := m.versions.LoadContent(rec, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (m *Manager) save(ctx context.Context, entity *Entity) error {
	_, err := m.versions.Save(ctx, model.ResourceTypeCorpus, entity.CorpusID, *entity, version.SaveOptions{
		Sparse: coldstore.SparseFields{
			CorpusName:     entity.CorpusName,
			CorpusID:       entity.CorpusID,
			ParentCorpusID: entity.ParentID,
			VocabularyHash: entity.VocabularyHash,
		},
	})
	return err
}

// reindex recomputes every derived field from entity.Vocabulary:
// normalized/lemmatized forms, the index maps, signature buckets, and
// the vocabulary hash.
func reindex(entity *Entity) {
	n := len(entity.Vocabulary)
	entity.NormalizedVocabulary = make([]string, n)
	entity.LemmatizedVocabulary = make([]string, n)
	entity.VocabularyToIndex = make(map[string]int, n)
	entity.NormalizedToOriginalIndex = make(map[int][]int)
	entity.LemmaToWordIndices = make(map[string][]int)
	entity.SignatureBuckets = make(map[string][]int)

	normalizedIndex := make(map[string]int)
	for i, word := range entity.Vocabulary {
		normalized := normalizeWord(word, entity.PreserveDiacritics)
		lemma := lemmatize(normalized)

		entity.NormalizedVocabulary[i] = normalized
		entity.LemmatizedVocabulary[i] = lemma
		entity.VocabularyToIndex[word] = i

		normIdx, ok := normalizedIndex[normalized]
		if !ok {
			normIdx = len(normalizedIndex)
			normalizedIndex[normalized] = normIdx
		}
		entity.NormalizedToOriginalIndex[normIdx] = append(entity.NormalizedToOriginalIndex[normIdx], i)
		entity.LemmaToWordIndices[lemma] = append(entity.LemmaToWordIndices[lemma], i)

		bucket := fuzzy.SignatureBucket(normalized)
		entity.SignatureBuckets[bucket] = append(entity.SignatureBuckets[bucket], i)
	}

	entity.VocabularyHash = vocabularyHash(entity.NormalizedVocabulary)
}

// vocabularyHash computes sha256(sorted(normalized)).
func vocabularyHash(normalized []string) string {
	sorted := make([]string, len(normalized))
	copy(sorted, normalized)
	sort.Strings(sorted)

	hash, err := canon.Hash(sorted)
	if err != nil {
		// sorted is always a []string, always JSON-serializable.
		panic("corpus: vocabulary hash over []string failed: " + err.Error())
	}
	return hash
}
