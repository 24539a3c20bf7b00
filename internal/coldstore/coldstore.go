// Package coldstore is the persistent store for VersionedRecords: a
// single SQLite table discriminated by resource_type, opened through
// the pure-Go modernc.org/sqlite driver in WAL mode with a single writer
// and a busy timeout. Open does not run an integrity check on the
// database file.
package coldstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aman-cerp/corpuscore/internal/errors"
	"github.com/aman-cerp/corpuscore/internal/model"
)

// SparseFields carries the typed subfields indexed for filtering:
// corpus_name, corpus_id, parent_corpus_id, vocabulary_hash. Only
// the fields relevant to a record's resource_type need be set.
type SparseFields struct {
	CorpusName     string
	CorpusID       string
	ParentCorpusID string
	VocabularyHash string
}

// sparseColumns are the only column names FindBySparseField will accept,
// preventing arbitrary column injection from a caller-supplied string.
var sparseColumns = map[string]bool{
	"corpus_name":      true,
	"corpus_id":        true,
	"parent_corpus_id": true,
	"vocabulary_hash":  true,
}

// Store is the persistent VersionedRecord collection.
type Store struct {
	mu      sync.RWMutex
	db      *sql.DB
	path    string
	closed  bool
	breaker *errors.CircuitBreaker
}

// DB returns the underlying connection, used by internal/telemetry to
// persist query metrics in the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Open opens (creating if necessary) the cold store at path in WAL mode.
// An empty path opens an in-memory store, for tests.
func Open(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.BackendError(fmt.Errorf("create cold store directory: %w", err))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.BackendError(fmt.Errorf("open cold store: %w", err))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.BackendError(fmt.Errorf("set pragma %q: %w", p, err))
		}
	}

	s := &Store{db: db, path: path, breaker: errors.NewCircuitBreaker("coldstore")}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// checkBreaker fails fast with a BackendError when the circuit breaker
// is open, so a read doesn't queue up behind a cold store that repeated
// PersistErrors have already shown to be unhealthy.
func (s *Store) checkBreaker() error {
	if !s.breaker.Allow() {
		return errors.BackendError(errors.ErrCircuitOpen)
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS versioned_records (
		id               TEXT PRIMARY KEY,
		resource_id      TEXT NOT NULL,
		resource_type    TEXT NOT NULL,
		namespace        TEXT NOT NULL,
		version          TEXT NOT NULL,
		created_at       TEXT NOT NULL,
		data_hash        TEXT NOT NULL,
		is_latest        INTEGER NOT NULL,
		supersedes       TEXT,
		superseded_by    TEXT,
		dependencies     TEXT,
		content_inline   TEXT,
		content_location TEXT,
		metadata         TEXT,
		tags             TEXT,
		ttl_seconds      INTEGER,
		corpus_name      TEXT,
		corpus_id        TEXT,
		parent_corpus_id TEXT,
		vocabulary_hash  TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_versioned_records_latest
		ON versioned_records(resource_id, is_latest, id DESC);
	CREATE INDEX IF NOT EXISTS idx_versioned_records_version
		ON versioned_records(resource_id, version);
	CREATE INDEX IF NOT EXISTS idx_versioned_records_hash
		ON versioned_records(resource_id, data_hash);

	CREATE INDEX IF NOT EXISTS idx_versioned_records_corpus_name
		ON versioned_records(corpus_name) WHERE resource_type = 'CORPUS';
	CREATE INDEX IF NOT EXISTS idx_versioned_records_corpus_id
		ON versioned_records(corpus_id) WHERE resource_type = 'CORPUS';
	CREATE INDEX IF NOT EXISTS idx_versioned_records_parent_corpus_id
		ON versioned_records(parent_corpus_id) WHERE resource_type = 'CORPUS';
	CREATE INDEX IF NOT EXISTS idx_versioned_records_vocabulary_hash
		ON versioned_records(vocabulary_hash)
		WHERE resource_type IN ('SEARCH', 'TRIE', 'SEMANTIC');
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return errors.BackendError(fmt.Errorf("init cold store schema: %w", err))
	}
	return nil
}

// Close closes the underlying database, checkpointing WAL first.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// row is the flat scan target matching the versioned_records schema.
type row struct {
	id              string
	resourceID      string
	resourceType    string
	namespace       string
	version         string
	createdAt       string
	dataHash        string
	isLatest        int
	supersedes      sql.NullString
	supersededBy    sql.NullString
	dependencies    sql.NullString
	contentInline   sql.NullString
	contentLocation sql.NullString
	metadata        sql.NullString
	tags            sql.NullString
	ttlSeconds      sql.NullInt64
}

func (r row) toRecord() (*model.VersionedRecord, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, r.createdAt)
	if err != nil {
		return nil, errors.Corruption("cold store record has malformed created_at", err)
	}

	rec := &model.VersionedRecord{
		ID:           r.id,
		ResourceID:   r.resourceID,
		ResourceType: model.ResourceType(r.resourceType),
		Namespace:    model.Namespace(r.namespace),
		VersionInfo: model.VersionInfo{
			Version:      r.version,
			CreatedAt:    createdAt,
			DataHash:     r.dataHash,
			IsLatest:     r.isLatest != 0,
			Supersedes:   r.supersedes.String,
			SupersededBy: r.supersededBy.String,
		},
	}

	if r.dependencies.Valid {
		if err := json.Unmarshal([]byte(r.dependencies.String), &rec.VersionInfo.Dependencies); err != nil {
			return nil, errors.Corruption("cold store record has malformed dependencies", err)
		}
	}
	if r.contentInline.Valid {
		if err := json.Unmarshal([]byte(r.contentInline.String), &rec.ContentInline); err != nil {
			return nil, errors.Corruption("cold store record has malformed content_inline", err)
		}
	}
	if r.contentLocation.Valid {
		var loc model.ContentLocation
		if err := json.Unmarshal([]byte(r.contentLocation.String), &loc); err != nil {
			return nil, errors.Corruption("cold store record has malformed content_location", err)
		}
		rec.ContentLocation = &loc
	}
	if r.metadata.Valid {
		if err := json.Unmarshal([]byte(r.metadata.String), &rec.Metadata); err != nil {
			return nil, errors.Corruption("cold store record has malformed metadata", err)
		}
	}
	if r.tags.Valid {
		if err := json.Unmarshal([]byte(r.tags.String), &rec.Tags); err != nil {
			return nil, errors.Corruption("cold store record has malformed tags", err)
		}
	}
	if r.ttlSeconds.Valid {
		d := time.Duration(r.ttlSeconds.Int64) * time.Second
		rec.TTL = &d
	}
	return rec, nil
}

const selectColumns = `id, resource_id, resource_type, namespace, version, created_at,
	data_hash, is_latest, supersedes, superseded_by, dependencies,
	content_inline, content_location, metadata, tags, ttl_seconds`

func scanRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.VersionedRecord, error) {
	var r row
	err := scanner.Scan(&r.id, &r.resourceID, &r.resourceType, &r.namespace, &r.version,
		&r.createdAt, &r.dataHash, &r.isLatest, &r.supersedes, &r.supersededBy,
		&r.dependencies, &r.contentInline, &r.contentLocation, &r.metadata, &r.tags, &r.ttlSeconds)
	if err != nil {
		return nil, err
	}
	return r.toRecord()
}

// Insert writes a new VersionedRecord along with its sparse index fields.
// Callers are responsible for having already cleared is_latest on
// siblings within the same per-resource lock (internal/reslock).
func (s *Store) Insert(rec *model.VersionedRecord, sparse SparseFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deps, err := json.Marshal(rec.VersionInfo.Dependencies)
	if err != nil {
		return errors.ValidationError("dependencies is not JSON-serializable: " + err.Error())
	}
	inline, err := json.Marshal(rec.ContentInline)
	if err != nil {
		return errors.ValidationError("content_inline is not JSON-serializable: " + err.Error())
	}
	var loc []byte
	if rec.ContentLocation != nil {
		loc, err = json.Marshal(rec.ContentLocation)
		if err != nil {
			return errors.ValidationError("content_location is not JSON-serializable: " + err.Error())
		}
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return errors.ValidationError("metadata is not JSON-serializable: " + err.Error())
	}
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return errors.ValidationError("tags is not JSON-serializable: " + err.Error())
	}

	var ttlSeconds sql.NullInt64
	if rec.TTL != nil {
		ttlSeconds = sql.NullInt64{Int64: int64(*rec.TTL / time.Second), Valid: true}
	}

	err = s.breaker.Execute(func() error {
		_, err := s.db.Exec(`
			INSERT INTO versioned_records (
				id, resource_id, resource_type, namespace, version, created_at,
				data_hash, is_latest, supersedes, superseded_by, dependencies,
				content_inline, content_location, metadata, tags, ttl_seconds,
				corpus_name, corpus_id, parent_corpus_id, vocabulary_hash
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.ResourceID, string(rec.ResourceType), string(rec.Namespace),
			rec.VersionInfo.Version, rec.VersionInfo.CreatedAt.Format(time.RFC3339Nano),
			rec.VersionInfo.DataHash, boolToInt(rec.VersionInfo.IsLatest),
			nullableString(rec.VersionInfo.Supersedes), nullableString(rec.VersionInfo.SupersededBy),
			string(deps), string(inline), nullableBytes(loc), string(meta), string(tags), ttlSeconds,
			nullableString(sparse.CorpusName), nullableString(sparse.CorpusID),
			nullableString(sparse.ParentCorpusID), nullableString(sparse.VocabularyHash))
		return err
	})
	if err == errors.ErrCircuitOpen {
		return errors.BackendError(err)
	}
	if err != nil {
		return errors.PersistError(err)
	}
	return nil
}

// ClearLatest unsets is_latest for every record of (resourceType,
// resourceID) except keepID, and wires their superseded_by pointer.
func (s *Store) ClearLatest(resourceType model.ResourceType, resourceID, keepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.breaker.Execute(func() error {
		_, err := s.db.Exec(`
			UPDATE versioned_records
			SET is_latest = 0, superseded_by = ?
			WHERE resource_type = ? AND resource_id = ? AND id != ? AND is_latest = 1`,
			keepID, string(resourceType), resourceID, keepID)
		return err
	})
	if err == errors.ErrCircuitOpen {
		return errors.BackendError(err)
	}
	if err != nil {
		return errors.PersistError(err)
	}
	return nil
}

// GetLatest returns the current latest VersionedRecord for a resource.
func (s *Store) GetLatest(resourceType model.ResourceType, resourceID string) (*model.VersionedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkBreaker(); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(`
		SELECT `+selectColumns+`
		FROM versioned_records
		WHERE resource_type = ? AND resource_id = ? AND is_latest = 1
		ORDER BY id DESC LIMIT 1`, string(resourceType), resourceID)

	rec, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(fmt.Sprintf("no latest version for %s:%s", resourceType, resourceID))
	}
	if err != nil {
		return nil, errors.BackendError(err)
	}
	return rec, nil
}

// GetByVersion returns a specific version of a resource.
func (s *Store) GetByVersion(resourceType model.ResourceType, resourceID, version string) (*model.VersionedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkBreaker(); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(`
		SELECT `+selectColumns+`
		FROM versioned_records
		WHERE resource_type = ? AND resource_id = ? AND version = ?`,
		string(resourceType), resourceID, version)

	rec, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(fmt.Sprintf("no version %s for %s:%s", version, resourceType, resourceID))
	}
	if err != nil {
		return nil, errors.BackendError(err)
	}
	return rec, nil
}

// GetByHash returns the record matching (resourceID, dataHash), used
// to dedup on save.
func (s *Store) GetByHash(resourceType model.ResourceType, resourceID, dataHash string) (*model.VersionedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkBreaker(); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(`
		SELECT `+selectColumns+`
		FROM versioned_records
		WHERE resource_type = ? AND resource_id = ? AND data_hash = ?`,
		string(resourceType), resourceID, dataHash)

	rec, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(fmt.Sprintf("no record with hash %s for %s:%s", dataHash, resourceType, resourceID))
	}
	if err != nil {
		return nil, errors.BackendError(err)
	}
	return rec, nil
}

// ListVersions returns every version of a resource, newest first.
func (s *Store) ListVersions(resourceType model.ResourceType, resourceID string) ([]*model.VersionedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkBreaker(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT `+selectColumns+`
		FROM versioned_records
		WHERE resource_type = ? AND resource_id = ?
		ORDER BY created_at DESC`, string(resourceType), resourceID)
	if err != nil {
		return nil, errors.BackendError(err)
	}
	defer rows.Close()

	var out []*model.VersionedRecord
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, errors.BackendError(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendError(err)
	}
	return out, nil
}

// Delete removes a single record by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.breaker.Execute(func() error {
		_, err := s.db.Exec(`DELETE FROM versioned_records WHERE id = ?`, id)
		return err
	})
	if err == errors.ErrCircuitOpen {
		return errors.BackendError(err)
	}
	if err != nil {
		return errors.PersistError(err)
	}
	return nil
}

// DeleteAllForResource removes every version of a resource, returning
// the number of rows removed.
func (s *Store) DeleteAllForResource(resourceType model.ResourceType, resourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.breaker.Execute(func() error {
		res, err := s.db.Exec(`
			DELETE FROM versioned_records WHERE resource_type = ? AND resource_id = ?`,
			string(resourceType), resourceID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err == errors.ErrCircuitOpen {
		return 0, errors.BackendError(err)
	}
	if err != nil {
		return 0, errors.PersistError(err)
	}
	return int(n), nil
}

// FindBySparseField returns the latest version of every resource whose
// sparse field (one of corpus_name, corpus_id, parent_corpus_id,
// vocabulary_hash) equals value. internal/corpus uses it to find the
// indexes that reference a corpus when cascading a delete.
func (s *Store) FindBySparseField(resourceType model.ResourceType, field, value string) ([]*model.VersionedRecord, error) {
	if !sparseColumns[field] {
		return nil, errors.ValidationError("unsupported sparse field: " + field)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkBreaker(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM versioned_records
		WHERE resource_type = ? AND %s = ? AND is_latest = 1
		ORDER BY created_at DESC`, selectColumns, field)

	rows, err := s.db.Query(query, string(resourceType), value)
	if err != nil {
		return nil, errors.BackendError(err)
	}
	defer rows.Close()

	var out []*model.VersionedRecord
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, errors.BackendError(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendError(err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableBytes(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
