// Package gcm implements the two-tier cache manager (C4): memory-first,
// disk-backed, namespace-policy-aware reads and writes. It composes
// internal/memcache and internal/diskcache, serializing values with
// internal/canon (canonical JSON) and internal/codec (compression).
package gcm

import (
	"encoding/json"
	"time"

	"github.com/aman-cerp/corpuscore/internal/canon"
	"github.com/aman-cerp/corpuscore/internal/codec"
	"github.com/aman-cerp/corpuscore/internal/diskcache"
	"github.com/aman-cerp/corpuscore/internal/errors"
	"github.com/aman-cerp/corpuscore/internal/memcache"
	"github.com/aman-cerp/corpuscore/internal/model"
)

// diskEnvelope records which algorithm a disk-tier payload was actually
// compressed with, since Compress may fall back to NONE when the
// configured algorithm would not save enough space.
type diskEnvelope struct {
	Algo codec.Algorithm `json:"algo"`
	Data []byte          `json:"data"`
}

// Manager is the two-tier cache manager.
type Manager struct {
	mem     *memcache.Cache
	disk    *diskcache.Store
	configs map[model.Namespace]model.NamespaceConfig
}

// New composes mem and disk into a Manager governed by configs. A nil
// configs falls back to model.DefaultNamespaceConfigs().
func New(mem *memcache.Cache, disk *diskcache.Store, configs map[model.Namespace]model.NamespaceConfig) *Manager {
	if configs == nil {
		configs = model.DefaultNamespaceConfigs()
	}
	return &Manager{mem: mem, disk: disk, configs: configs}
}

func (m *Manager) config(ns model.Namespace) model.NamespaceConfig {
	if cfg, ok := m.configs[ns]; ok {
		return cfg
	}
	return model.DefaultNamespaceConfigs()[model.NamespaceDefault]
}

func (m *Manager) algorithm(ns model.Namespace) codec.Algorithm {
	cfg := m.config(ns)
	if cfg.Compression == "" {
		return codec.AlgorithmNone
	}
	return codec.Algorithm(cfg.Compression)
}

// cacheKey derives the two-tier cache key for (namespace, key): a
// namespace-prefixed hash of "namespace:key", keeping the namespace
// legible so Clear can prefix-scan the disk tier.
func cacheKey(ns model.Namespace, key string) string {
	return string(ns) + ":" + canon.HashBytes([]byte(string(ns)+":"+key))
}

// Get looks up key in namespace ns, memory first, falling back to disk
// and promoting a disk hit back into memory. dest must be a pointer; the
// deserialized value is written into it. ok is false on a miss.
func (m *Manager) Get(ns model.Namespace, key string, dest interface{}) (ok bool, err error) {
	ck := cacheKey(ns, key)

	if raw, hit := m.mem.Get(ns, ck); hit {
		if err := json.Unmarshal(raw, dest); err != nil {
			return false, errors.Corruption("memory cache entry failed to deserialize", err)
		}
		return true, nil
	}

	wrapped, hit, err := m.disk.Get(ck)
	if err != nil {
		// Disk read failures degrade to a cache miss; the caller's
		// caller (content/version layers) is expected to fall through
		// to the cold store.
		return false, nil
	}
	if !hit {
		return false, nil
	}

	var env diskEnvelope
	if err := json.Unmarshal(wrapped, &env); err != nil {
		return false, errors.Corruption("disk cache envelope is malformed", err)
	}

	raw, err := codec.Decompress(env.Data, env.Algo)
	if err != nil {
		return false, errors.Corruption("disk cache payload failed to decompress", err)
	}

	m.mem.Set(ns, ck, raw, m.config(ns).MemoryTTL)

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, errors.Corruption("disk cache entry failed to deserialize", err)
	}
	return true, nil
}

// Set serializes value to canonical JSON and writes it to both tiers. A
// zero ttl uses the namespace's configured TTLs.
func (m *Manager) Set(ns model.Namespace, key string, value interface{}, ttl time.Duration) error {
	ck := cacheKey(ns, key)

	raw, err := canon.Marshal(value)
	if err != nil {
		return errors.ValidationError("value is not JSON-serializable: " + err.Error())
	}

	cfg := m.config(ns)
	memTTL, diskTTL := ttl, ttl
	if ttl <= 0 {
		memTTL = cfg.MemoryTTL
		diskTTL = cfg.DiskTTL
	}

	m.mem.Set(ns, ck, raw, memTTL)

	compressed, usedAlgo, err := codec.Compress(raw, m.algorithm(ns))
	if err != nil {
		return errors.CacheWriteError(err)
	}

	wrapped, err := json.Marshal(diskEnvelope{Algo: usedAlgo, Data: compressed})
	if err != nil {
		return errors.CacheWriteError(err)
	}

	if err := m.disk.Set(ck, wrapped, diskTTL); err != nil {
		return errors.CacheWriteError(err)
	}
	return nil
}

// Delete removes key from namespace ns in both tiers.
func (m *Manager) Delete(ns model.Namespace, key string) error {
	ck := cacheKey(ns, key)
	m.mem.Delete(ns, ck)
	if err := m.disk.Delete(ck); err != nil {
		return errors.CacheWriteError(err)
	}
	return nil
}

// Clear removes every entry in namespace ns from both tiers.
func (m *Manager) Clear(ns model.Namespace) error {
	m.mem.Clear(ns)

	var keys []string
	prefix := string(ns) + ":"
	err := m.disk.Iter(prefix, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return errors.BackendError(err)
	}
	for _, k := range keys {
		if err := m.disk.Delete(k); err != nil {
			return errors.CacheWriteError(err)
		}
	}
	return nil
}

// Stats returns the memory-tier hit/miss/eviction counters for ns.
func (m *Manager) Stats(ns model.Namespace) memcache.Stats {
	return m.mem.Stats(ns)
}
