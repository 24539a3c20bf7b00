// Package diskcache is the persistent tier of the two-tier cache manager:
// an ordered key-to-bytes store backed by bbolt, size-capped with
// background and lazy TTL expiry plus size-based LRU eviction.
package diskcache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aman-cerp/corpuscore/internal/errors"
)

const bucketName = "cache"

// DefaultCapacityBytes is the default total size cap (10 GiB) before
// size-based LRU eviction begins.
const DefaultCapacityBytes int64 = 10 << 30

// envelope is the on-disk representation of a cached value.
type envelope struct {
	Value     []byte `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix nano, 0 = no TTL
}

func (e envelope) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.UnixNano() > e.ExpiresAt
}

// recencyEntry tracks a key's size for LRU eviction bookkeeping.
type recencyEntry struct {
	key  string
	size int64
}

// Store is a persistent, size-capped, TTL-aware key-value store.
type Store struct {
	db       *bolt.DB
	capacity int64

	mu        sync.Mutex
	totalSize int64
	order     *list.List
	elements  map[string]*list.Element
}

// Open opens (creating if necessary) a bbolt-backed store at path with the
// given total size cap. A non-positive capacity uses DefaultCapacityBytes.
func Open(path string, capacityBytes int64) (*Store, error) {
	if capacityBytes <= 0 {
		capacityBytes = DefaultCapacityBytes
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.BackendError(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.BackendError(err)
	}

	s := &Store{
		db:       db,
		capacity: capacityBytes,
		order:    list.New(),
		elements: make(map[string]*list.Element),
	}
	if err := s.rebuildRecency(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// rebuildRecency scans existing keys to seed the in-memory size-tracking
// list. Ordering after a restart is by key iteration order, not true
// recency; this is an accepted approximation since bbolt does not
// persist access order.
func (s *Store) rebuildRecency() error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.ForEach(func(k, v []byte) error {
			el := s.order.PushBack(&recencyEntry{key: string(k), size: int64(len(v))})
			s.elements[string(k)] = el
			s.totalSize += int64(len(v))
			return nil
		})
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key. A miss (absent or expired) returns
// ok=false. An expired entry is deleted as a side effect.
func (s *Store) Get(key string) (value []byte, ok bool, err error) {
	var env envelope
	found := false

	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if e := json.Unmarshal(raw, &env); e != nil {
			return errors.Corruption("disk cache entry is not valid JSON", e)
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if env.expired(time.Now()) {
		_ = s.Delete(key)
		return nil, false, nil
	}

	s.touch(key)
	return env.Value, true, nil
}

// Set stores value under key with an optional ttl (zero means no expiry),
// evicting least-recently-used entries if the store exceeds its capacity.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	env := envelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).UnixNano()
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return errors.CacheWriteError(err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put([]byte(key), raw)
	})
	if err != nil {
		return errors.CacheWriteError(err)
	}

	s.record(key, int64(len(raw)))
	return s.evictIfOverCapacity()
}

// Delete removes key, if present.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Delete([]byte(key))
	})
	if err != nil {
		return errors.CacheWriteError(err)
	}
	s.forget(key)
	return nil
}

// Iter calls fn for every key with the given prefix, in key order. It
// stops early if fn returns an error.
func (s *Store) Iter(prefix string, fn func(key string, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		c := b.Cursor()
		p := []byte(prefix)
		now := time.Now()
		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			var env envelope
			if err := json.Unmarshal(v, &env); err != nil {
				continue
			}
			if env.expired(now) {
				continue
			}
			if err := fn(string(k), env.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reap deletes every expired entry. Intended to be called periodically
// by a background task.
func (s *Store) Reap() (removed int, err error) {
	var expiredKeys []string
	now := time.Now()

	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.ForEach(func(k, v []byte) error {
			var env envelope
			if e := json.Unmarshal(v, &env); e != nil {
				return nil
			}
			if env.expired(now) {
				expiredKeys = append(expiredKeys, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return 0, errors.BackendError(err)
	}

	for _, k := range expiredKeys {
		if err := s.Delete(k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Size returns the current tracked total size in bytes.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSize
}

func (s *Store) record(key string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.elements[key]; ok {
		re := el.Value.(*recencyEntry)
		s.totalSize += size - re.size
		re.size = size
		s.order.MoveToBack(el)
		return
	}

	el := s.order.PushBack(&recencyEntry{key: key, size: size})
	s.elements[key] = el
	s.totalSize += size
}

func (s *Store) touch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.elements[key]; ok {
		s.order.MoveToBack(el)
	}
}

func (s *Store) forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.elements[key]; ok {
		re := el.Value.(*recencyEntry)
		s.totalSize -= re.size
		s.order.Remove(el)
		delete(s.elements, key)
	}
}

func (s *Store) evictIfOverCapacity() error {
	for {
		s.mu.Lock()
		if s.totalSize <= s.capacity || s.order.Len() == 0 {
			s.mu.Unlock()
			return nil
		}
		oldest := s.order.Front()
		re := oldest.Value.(*recencyEntry)
		s.mu.Unlock()

		if err := s.Delete(re.key); err != nil {
			return err
		}
	}
}

func hasPrefix(k, prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
