// Package reslock implements the per-resource lock table used by the
// version manager: one mutex per (resource_type, resource_id), created
// lazily and pruned once uncontended so the table does not grow without
// bound. Disjoint resources make progress in parallel; there is no
// global writer lock.
package reslock

import (
	"context"
	"sync"

	"github.com/aman-cerp/corpuscore/internal/errors"
	"github.com/aman-cerp/corpuscore/internal/model"
)

type entry struct {
	mu       sync.Mutex
	refCount int
}

// Table is a lock table keyed by (resource_type, resource_id).
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty lock table.
func New() *Table {
	return &Table{entries: make(map[string]*entry)}
}

func key(rt model.ResourceType, resourceID string) string {
	return string(rt) + "\x00" + resourceID
}

// Acquire blocks until the lock for (resourceType, resourceID) is held
// or ctx is cancelled/times out, returning an errors.LockTimeout error
// (code ERR_601_LOCK_TIMEOUT) in the latter case. The returned release function must be called exactly once.
func (t *Table) Acquire(ctx context.Context, resourceType model.ResourceType, resourceID string) (func(), error) {
	k := key(resourceType, resourceID)

	t.mu.Lock()
	e, ok := t.entries[k]
	if !ok {
		e = &entry{}
		t.entries[k] = e
	}
	e.refCount++
	t.mu.Unlock()

	release := func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refCount--
		if e.refCount == 0 {
			delete(t.entries, k)
		}
		t.mu.Unlock()
	}

	acquired := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return release, nil
	case <-ctx.Done():
		// The goroutine above may still acquire the mutex later; when it
		// does, immediately release it and drop the refcount so the
		// entry doesn't leak. We never hand that acquisition to the caller.
		go func() {
			<-acquired
			e.mu.Unlock()
			t.mu.Lock()
			e.refCount--
			if e.refCount == 0 {
				delete(t.entries, k)
			}
			t.mu.Unlock()
		}()
		return nil, errors.LockTimeout(resourceID)
	}
}

// Len returns the number of currently tracked (contended or held)
// entries. Exposed for tests and diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
