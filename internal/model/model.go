// Package model defines the shared entities of the versioned cache and
// search core: namespaces, resource types, version metadata, and
// content location descriptors. It has no dependency on any other
// internal package.
package model

import "time"

// Namespace labels a cache partition. Every ResourceType maps to
// exactly one Namespace via ResourceTypeNamespace.
type Namespace string

const (
	NamespaceCorpus   Namespace = "CORPUS"
	NamespaceSearch   Namespace = "SEARCH"
	NamespaceTrie     Namespace = "TRIE"
	NamespaceSemantic Namespace = "SEMANTIC"
	NamespaceDefault  Namespace = "DEFAULT"
)

// ResourceType classifies a versioned resource. Each value deterministically
// maps to exactly one Namespace (see ResourceTypeNamespace).
type ResourceType string

const (
	ResourceTypeCorpus   ResourceType = "CORPUS"
	ResourceTypeSearch   ResourceType = "SEARCH"
	ResourceTypeTrie     ResourceType = "TRIE"
	ResourceTypeSemantic ResourceType = "SEMANTIC"
)

// resourceNamespace is the resource_type -> namespace dispatch table.
// Deliberately a plain map rather than reflection or a switch generated
// from struct tags: the mapping is small, closed, and fixed at compile
// time.
var resourceNamespace = map[ResourceType]Namespace{
	ResourceTypeCorpus:   NamespaceCorpus,
	ResourceTypeSearch:   NamespaceSearch,
	ResourceTypeTrie:     NamespaceTrie,
	ResourceTypeSemantic: NamespaceSemantic,
}

// NamespaceFor returns the namespace a resource type is stored under.
// Unknown resource types map to NamespaceDefault.
func NamespaceFor(rt ResourceType) Namespace {
	if ns, ok := resourceNamespace[rt]; ok {
		return ns
	}
	return NamespaceDefault
}

// ContentLocationKind distinguishes inline from externally-stored content.
type ContentLocationKind string

const (
	ContentLocationInline   ContentLocationKind = "INLINE"
	ContentLocationExternal ContentLocationKind = "EXTERNAL"
)

// ContentLocation describes where a VersionedRecord's content physically
// lives.
type ContentLocation struct {
	Kind        ContentLocationKind `json:"kind"`
	Namespace   Namespace           `json:"namespace,omitempty"`
	Key         string              `json:"key,omitempty"`
	Compression string              `json:"compression,omitempty"`
	Checksum    string              `json:"checksum,omitempty"`
}

// VersionInfo carries the version-chain metadata for a VersionedRecord.
type VersionInfo struct {
	Version       string    `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	DataHash      string    `json:"data_hash"`
	IsLatest      bool      `json:"is_latest"`
	Supersedes    string    `json:"supersedes,omitempty"`
	SupersededBy  string    `json:"superseded_by,omitempty"`
	Dependencies  []string  `json:"dependencies,omitempty"`
}

// VersionedRecord is the polymorphic document stored in the cold store,
// keyed by (namespace, resource_id, version).
type VersionedRecord struct {
	ID              string                 `json:"id"`
	ResourceID      string                 `json:"resource_id"`
	ResourceType    ResourceType           `json:"resource_type"`
	Namespace       Namespace              `json:"namespace"`
	VersionInfo     VersionInfo            `json:"version_info"`
	ContentInline   map[string]interface{} `json:"content_inline,omitempty"`
	ContentLocation *ContentLocation       `json:"content_location,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	TTL             *time.Duration         `json:"ttl,omitempty"`
}

// NamespaceConfig is the per-namespace cache policy: memory-entry limit,
// TTLs, and compression choice (C4).
type NamespaceConfig struct {
	MemoryLimit int
	MemoryTTL   time.Duration
	DiskTTL     time.Duration
	Compression string // codec algorithm name; "" means NONE
}

// DefaultNamespaceConfigs returns sensible per-namespace defaults. Callers
// load overrides from internal/config on top of this table.
func DefaultNamespaceConfigs() map[Namespace]NamespaceConfig {
	return map[Namespace]NamespaceConfig{
		NamespaceCorpus: {
			MemoryLimit: 256,
			MemoryTTL:   30 * time.Minute,
			DiskTTL:     0, // no expiry
			Compression: "ZSTD",
		},
		NamespaceSearch: {
			MemoryLimit: 512,
			MemoryTTL:   15 * time.Minute,
			DiskTTL:     0,
			Compression: "ZSTD",
		},
		NamespaceTrie: {
			MemoryLimit: 64,
			MemoryTTL:   30 * time.Minute,
			DiskTTL:     0,
			Compression: "LZ4",
		},
		NamespaceSemantic: {
			MemoryLimit: 32,
			MemoryTTL:   30 * time.Minute,
			DiskTTL:     0,
			Compression: "ZSTD",
		},
		NamespaceDefault: {
			MemoryLimit: 1024,
			MemoryTTL:   5 * time.Minute,
			DiskTTL:     1 * time.Hour,
			Compression: "",
		},
	}
}

// SearchMethod identifies which matching method produced a SearchResult.
type SearchMethod string

const (
	SearchMethodExact    SearchMethod = "exact"
	SearchMethodPrefix   SearchMethod = "prefix"
	SearchMethodFuzzy    SearchMethod = "fuzzy"
	SearchMethodSemantic SearchMethod = "semantic"
)

// SearchResult is a single match produced by a matching method (trie,
// fuzzy, semantic) or the search orchestrator's merged ranking.
type SearchResult struct {
	Word           string       `json:"word"`
	LemmatizedWord string       `json:"lemmatized_word,omitempty"`
	Score          float64      `json:"score"`
	Method         SearchMethod `json:"method"`
	Language       string       `json:"language,omitempty"`
}
