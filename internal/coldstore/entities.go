package coldstore

// These are the typed payloads carried inside a VersionedRecord's
// ContentInline/ContentLocation for each ResourceType. They are
// marshaled/unmarshaled as ordinary JSON content by internal/content;
// coldstore only needs their names and sparse fields to be known here
// so FindBySparseField's callers share one vocabulary for columns.

// CorpusEntity is the persisted payload for ResourceTypeCorpus.
type CorpusEntity struct {
	CorpusID                  string           `json:"corpus_id"`
	CorpusName                string           `json:"corpus_name"`
	CorpusType                string           `json:"corpus_type"`
	Language                  string           `json:"language"`
	ParentID                  string           `json:"parent_id,omitempty"`
	ChildIDs                  []string         `json:"child_ids,omitempty"`
	IsMaster                  bool             `json:"is_master"`
	Vocabulary                []string         `json:"vocabulary"`
	NormalizedVocabulary      []string         `json:"normalized_vocabulary"`
	LemmatizedVocabulary      []string         `json:"lemmatized_vocabulary"`
	SignatureBuckets          map[string][]int `json:"signature_buckets,omitempty"`
	VocabularyToIndex         map[string]int   `json:"vocabulary_to_index,omitempty"`
	NormalizedToOriginalIndex map[int][]int    `json:"normalized_to_original_indices,omitempty"`
	LemmaToWordIndices        map[string][]int `json:"lemma_to_word_indices,omitempty"`
	VocabularyHash            string           `json:"vocabulary_hash"`
	PreserveDiacritics        bool             `json:"preserve_diacritics,omitempty"`
}

// SearchIndexEntity is the persisted payload for ResourceTypeSearch: a
// thin pointer record naming which derived indexes exist for a corpus
// snapshot, without embedding their bytes.
type SearchIndexEntity struct {
	CorpusID        string `json:"corpus_id"`
	VocabularyHash  string `json:"vocabulary_hash"`
	HasTrie         bool   `json:"has_trie"`
	HasFuzzy        bool   `json:"has_fuzzy"`
	HasSemantic     bool   `json:"has_semantic"`
	TrieIndexID     string `json:"trie_index_id,omitempty"`
	SemanticIndexID string `json:"semantic_index_id,omitempty"`
}

// TrieIndexEntity is the persisted payload for ResourceTypeTrie: the
// serialized trie and Bloom filter produced by internal/trie.
type TrieIndexEntity struct {
	CorpusID       string `json:"corpus_id"`
	VocabularyHash string `json:"vocabulary_hash"`
	SerializedTrie []byte `json:"serialized_trie"`
	BloomBits      []byte `json:"bloom_bits"`
	BloomHashes    int    `json:"bloom_hashes"`
}

// SemanticIndexEntity is the persisted payload for ResourceTypeSemantic.
// num_embeddings must be > 0 for this entity to ever be written or
// read; internal/semantic enforces that invariant.
type SemanticIndexEntity struct {
	CorpusID       string `json:"corpus_id"`
	VocabularyHash string `json:"vocabulary_hash"`
	ModelName      string `json:"model_name"`
	Dimensions     int    `json:"dimensions"`
	NumEmbeddings  int    `json:"num_embeddings"`
	IndexVariant   string `json:"index_variant"`
	SerializedData []byte `json:"serialized_data"`
	Checksum       string `json:"checksum"`
}
