// Package content implements the content store (C5): canonical-JSON
// serialization of arbitrary resource content, with small payloads
// stored inline on the owning VersionedRecord and large payloads stored
// externally through the two-tier cache manager, content-addressed by
// their data hash.
package content

import (
	"encoding/json"

	"github.com/aman-cerp/corpuscore/internal/canon"
	"github.com/aman-cerp/corpuscore/internal/errors"
	"github.com/aman-cerp/corpuscore/internal/gcm"
	"github.com/aman-cerp/corpuscore/internal/model"
)

// InlineThreshold is the canonical-JSON byte size below which content is
// stored inline on the owning VersionedRecord rather than externally.
const InlineThreshold = 16 * 1024

// Store saves and loads resource content through the two-tier cache.
type Store struct {
	cache *gcm.Manager
}

// New creates a content Store backed by the given cache manager.
func New(cache *gcm.Manager) *Store {
	return &Store{cache: cache}
}

// Save canonicalizes content once, then either returns it for inline
// storage or writes it through the cache and returns an EXTERNAL
// ContentLocation.
func (s *Store) Save(resourceType model.ResourceType, resourceID string, content interface{}) (*model.ContentLocation, map[string]interface{}, error) {
	raw, err := canon.Marshal(content)
	if err != nil {
		return nil, nil, errors.ValidationError("content is not JSON-serializable: " + err.Error())
	}

	if len(raw) < InlineThreshold {
		var inline map[string]interface{}
		if err := json.Unmarshal(raw, &inline); err != nil {
			return nil, nil, errors.ValidationError("inline content must be a JSON object: " + err.Error())
		}
		return &model.ContentLocation{Kind: model.ContentLocationInline}, inline, nil
	}

	dataHash := canon.HashBytes(raw)
	ns := model.NamespaceFor(resourceType)
	key := contentKey(resourceID, dataHash)

	if err := s.cache.Set(ns, key, json.RawMessage(raw), 0); err != nil {
		return nil, nil, err
	}

	return &model.ContentLocation{
		Kind:        model.ContentLocationExternal,
		Namespace:   ns,
		Key:         key,
		Compression: "", // resolved by the cache tier's namespace policy
		Checksum:    dataHash,
	}, nil, nil
}

// Load resolves a ContentLocation back into its content. For INLINE
// locations the caller's already-materialized inline content is
// returned unchanged; for EXTERNAL locations the bytes are fetched
// through the cache and checksum-verified.
func (s *Store) Load(loc *model.ContentLocation, inline map[string]interface{}, dest interface{}) error {
	if loc == nil || loc.Kind == model.ContentLocationInline {
		raw, err := json.Marshal(inline)
		if err != nil {
			return errors.ValidationError("inline content failed to re-serialize: " + err.Error())
		}
		if err := json.Unmarshal(raw, dest); err != nil {
			return errors.Corruption("inline content failed to deserialize", err)
		}
		return nil
	}

	var raw json.RawMessage
	ok, err := s.cache.Get(loc.Namespace, loc.Key, &raw)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ContentMissing(loc.Key)
	}

	if loc.Checksum != "" && canon.HashBytes(raw) != loc.Checksum {
		return errors.ContentCorrupt(loc.Key)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.Corruption("external content failed to deserialize", err)
	}
	return nil
}

// contentKey is the resource content key:
// sha256(resource_id || ":content:" || data_hash).
func contentKey(resourceID, dataHash string) string {
	return canon.HashBytes([]byte(resourceID + ":content:" + dataHash))
}
