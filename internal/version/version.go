// Package version implements the version manager (VCM, C6): content
// deduplication by data hash, semver version-chain bookkeeping, and
// keep-newest-K retention, all behind internal/reslock's per-resource
// lock table.
package version

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blang/semver/v4"
	"github.com/google/uuid"

	"github.com/aman-cerp/corpuscore/internal/canon"
	"github.com/aman-cerp/corpuscore/internal/coldstore"
	"github.com/aman-cerp/corpuscore/internal/content"
	"github.com/aman-cerp/corpuscore/internal/errors"
	"github.com/aman-cerp/corpuscore/internal/model"
	"github.com/aman-cerp/corpuscore/internal/reslock"
)

// DefaultRetainK is the default number of newest versions kept per
// resource when no override applies.
const DefaultRetainK = 3

// DefaultLockTimeout bounds how long Save/Delete/Retain wait to acquire
// their per-resource lock before giving up with LockTimeout, for a
// caller that imposes no deadline of its own.
const DefaultLockTimeout = 60 * time.Second

// SaveOptions customizes a Save call.
type SaveOptions struct {
	Version      string
	Metadata     map[string]interface{}
	Tags         []string
	TTL          *time.Duration
	ForceNew     bool
	Dependencies []string
	Sparse       coldstore.SparseFields
	// LockTimeout overrides the Manager's default lock-acquisition
	// timeout for this call. Zero uses the Manager's default.
	LockTimeout time.Duration
}

// Manager is the version manager.
type Manager struct {
	cold        *coldstore.Store
	content     *content.Store
	locks       *reslock.Table
	lockTimeout time.Duration
}

// ManagerOption configures a Manager at construction.
type ManagerOption func(*Manager)

// WithLockTimeout overrides DefaultLockTimeout for every Save/Delete/
// Retain call on this Manager that doesn't supply its own
// SaveOptions.LockTimeout.
func WithLockTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.lockTimeout = d }
}

// New creates a version Manager over the given cold store and content
// store, with its own per-resource lock table.
func New(cold *coldstore.Store, contentStore *content.Store, opts ...ManagerOption) *Manager {
	m := &Manager{cold: cold, content: contentStore, locks: reslock.New(), lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// boundedContext wraps ctx with a timeout so a caller that imposes no
// deadline of its own still gets LockTimeout rather than blocking
// forever; a parent ctx with an earlier deadline is left unchanged.
func (m *Manager) boundedContext(ctx context.Context, override time.Duration) (context.Context, context.CancelFunc) {
	d := m.lockTimeout
	if override > 0 {
		d = override
	}
	if d <= 0 {
		d = DefaultLockTimeout
	}
	return context.WithTimeout(ctx, d)
}

// Save dedups by data_hash, then performs a per-resource-locked
// version-chain update with a single atomic cold-store write.
func (m *Manager) Save(ctx context.Context, resourceType model.ResourceType, resourceID string, payload interface{}, opts SaveOptions) (*model.VersionedRecord, error) {
	loc, inline, err := m.content.Save(resourceType, resourceID, payload)
	if err != nil {
		return nil, err
	}
	dataHash := loc.Checksum
	if dataHash == "" {
		// inline content: hash what was actually saved, not the caller's
		// original value, so dedup lookups are consistent with storage.
		dataHash, err = canon.Hash(inline)
		if err != nil {
			return nil, errors.ValidationError("inline content is not JSON-serializable: " + err.Error())
		}
	}

	lockCtx, cancel := m.boundedContext(ctx, opts.LockTimeout)
	defer cancel()
	release, err := m.locks.Acquire(lockCtx, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer release()

	if !opts.ForceNew {
		if existing, err := m.cold.GetByHash(resourceType, resourceID, dataHash); err == nil {
			return existing, nil
		} else if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	latest, latestErr := m.cold.GetLatest(resourceType, resourceID)
	var latestVersion string
	if latestErr == nil {
		latestVersion = latest.VersionInfo.Version
	} else if !errors.IsNotFound(latestErr) {
		return nil, latestErr
	}

	nextVersion, err := resolveNextVersion(latestVersion, opts.Version)
	if err != nil {
		return nil, err
	}

	rec := &model.VersionedRecord{
		ID:            uuid.NewString(),
		ResourceID:    resourceID,
		ResourceType:  resourceType,
		Namespace:     model.NamespaceFor(resourceType),
		ContentInline: inline,
		Metadata:      opts.Metadata,
		Tags:          opts.Tags,
		TTL:           opts.TTL,
		VersionInfo: model.VersionInfo{
			Version:      nextVersion,
			CreatedAt:    time.Now().UTC(),
			DataHash:     dataHash,
			IsLatest:     true,
			Dependencies: opts.Dependencies,
		},
	}
	if loc.Kind == model.ContentLocationExternal {
		rec.ContentLocation = loc
	}
	if latestErr == nil {
		rec.VersionInfo.Supersedes = latest.ID
	}

	if latestErr == nil {
		if err := m.cold.ClearLatest(resourceType, resourceID, rec.ID); err != nil {
			return nil, err
		}
	}
	if err := m.cold.Insert(rec, opts.Sparse); err != nil {
		return nil, err
	}

	return rec, nil
}

// DB returns the underlying cold-store connection, used by
// internal/telemetry to persist query metrics in the same database
// file rather than opening a separate one.
func (m *Manager) DB() *sql.DB {
	return m.cold.DB()
}

// LoadContent decodes a VersionedRecord's content (inline or external)
// into dest, verifying the external checksum if applicable.
func (m *Manager) LoadContent(rec *model.VersionedRecord, dest interface{}) error {
	return m.content.Load(rec.ContentLocation, rec.ContentInline, dest)
}

// GetLatest returns the current latest version of a resource.
func (m *Manager) GetLatest(resourceType model.ResourceType, resourceID string) (*model.VersionedRecord, error) {
	return m.cold.GetLatest(resourceType, resourceID)
}

// GetByVersion returns a specific version of a resource.
func (m *Manager) GetByVersion(resourceType model.ResourceType, resourceID, version string) (*model.VersionedRecord, error) {
	return m.cold.GetByVersion(resourceType, resourceID, version)
}

// GetByHash returns the record matching a content hash, if any.
func (m *Manager) GetByHash(resourceType model.ResourceType, resourceID, dataHash string) (*model.VersionedRecord, error) {
	return m.cold.GetByHash(resourceType, resourceID, dataHash)
}

// ListVersions returns every version of a resource, newest first.
func (m *Manager) ListVersions(resourceType model.ResourceType, resourceID string) ([]*model.VersionedRecord, error) {
	return m.cold.ListVersions(resourceType, resourceID)
}

// FindBySparseField returns the latest version of every resource of
// resourceType whose sparse column matches value, used by
// internal/corpus's cascade delete to find the indexes that reference
// a corpus.
func (m *Manager) FindBySparseField(resourceType model.ResourceType, field, value string) ([]*model.VersionedRecord, error) {
	return m.cold.FindBySparseField(resourceType, field, value)
}

// Delete removes every version of a resource. cascade is accepted for
// API symmetry with collaborators that cascade-delete dependents
// (internal/corpus owns that cascade); this layer only ever deletes
// the resource's own version chain.
func (m *Manager) Delete(ctx context.Context, resourceType model.ResourceType, resourceID string, cascade bool) (int, error) {
	lockCtx, cancel := m.boundedContext(ctx, 0)
	defer cancel()
	release, err := m.locks.Acquire(lockCtx, resourceType, resourceID)
	if err != nil {
		return 0, err
	}
	defer release()

	return m.cold.DeleteAllForResource(resourceType, resourceID)
}

// Retain keeps the K newest versions of a resource and deletes the
// rest, never deleting the latest or a version another undeleted
// record depends on.
func (m *Manager) Retain(ctx context.Context, resourceType model.ResourceType, resourceID string, keepK int) (int, error) {
	if keepK <= 0 {
		keepK = DefaultRetainK
	}

	lockCtx, cancel := m.boundedContext(ctx, 0)
	defer cancel()
	release, err := m.locks.Acquire(lockCtx, resourceType, resourceID)
	if err != nil {
		return 0, err
	}
	defer release()

	versions, err := m.cold.ListVersions(resourceType, resourceID)
	if err != nil {
		return 0, err
	}
	if len(versions) <= keepK {
		return 0, nil
	}

	depended := make(map[string]bool)
	for _, v := range versions {
		for _, dep := range v.VersionInfo.Dependencies {
			depended[dep] = true
		}
	}

	deleted := 0
	for _, v := range versions[keepK:] {
		if v.VersionInfo.IsLatest || depended[v.ID] {
			continue
		}
		if err := m.cold.Delete(v.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// resolveNextVersion picks the next semver string: the caller's
// explicit version if it strictly exceeds the current latest,
// otherwise a patch bump of the latest (or 1.0.0 if none).
func resolveNextVersion(latestVersion, requested string) (string, error) {
	if requested != "" {
		requestedSV, err := semver.Parse(requested)
		if err != nil {
			return "", errors.ValidationError("version is not valid semver: " + requested)
		}
		if latestVersion != "" {
			latestSV, err := semver.Parse(latestVersion)
			if err != nil {
				return "", errors.Corruption("stored latest version is not valid semver", err)
			}
			if !requestedSV.GT(latestSV) {
				return "", errors.VersionConflict(fmt.Sprintf("requested version %s does not exceed current latest %s", requested, latestVersion))
			}
		}
		return requestedSV.String(), nil
	}

	if latestVersion == "" {
		return "1.0.0", nil
	}
	latestSV, err := semver.Parse(latestVersion)
	if err != nil {
		return "", errors.Corruption("stored latest version is not valid semver", err)
	}
	latestSV.Patch++
	return latestSV.String(), nil
}
