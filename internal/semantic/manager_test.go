package semantic

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/corpuscore/internal/coldstore"
	"github.com/aman-cerp/corpuscore/internal/content"
	"github.com/aman-cerp/corpuscore/internal/diskcache"
	"github.com/aman-cerp/corpuscore/internal/embed"
	"github.com/aman-cerp/corpuscore/internal/errors"
	"github.com/aman-cerp/corpuscore/internal/gcm"
	"github.com/aman-cerp/corpuscore/internal/memcache"
	"github.com/aman-cerp/corpuscore/internal/model"
	"github.com/aman-cerp/corpuscore/internal/version"
)

func newTestVersionManager(t *testing.T) *version.Manager {
	t.Helper()
	cold, err := coldstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cold.Close() })

	disk, err := diskcache.Open(filepath.Join(t.TempDir(), "cache.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = disk.Close() })

	configs := model.DefaultNamespaceConfigs()
	cache := gcm.New(memcache.New(configs), disk, configs)
	contentStore := content.New(cache)

	return version.New(cold, contentStore)
}

func TestManager_EnableSemantic_BuildsAndBecomesReady(t *testing.T) {
	vm := newTestVersionManager(t)
	m := NewManager(vm, embed.NewStaticEmbedder())

	task := m.EnableSemantic(context.Background(), "c1", "hash1", []string{"cat", "dog", "bird"})
	require.NoError(t, task.Wait())

	assert.True(t, m.Ready())
	assert.Nil(t, m.LastError())
}

func TestManager_EnableSemantic_EmptyVocabularyFailsWithoutPersisting(t *testing.T) {
	vm := newTestVersionManager(t)
	m := NewManager(vm, embed.NewStaticEmbedder())

	task := m.EnableSemantic(context.Background(), "c1", "hash1", nil)
	err := task.Wait()

	require.Error(t, err)
	assert.False(t, m.Ready())

	_, getErr := vm.GetLatest(model.ResourceTypeSemantic, "c1")
	assert.True(t, errors.IsNotFound(getErr))
}

func TestManager_Search_BeforeReady_ReturnsSemanticNotReady(t *testing.T) {
	vm := newTestVersionManager(t)
	m := NewManager(vm, embed.NewStaticEmbedder())

	_, err := m.Search(context.Background(), "c1", "cat", 5)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSemanticNotReady, errors.GetCode(err))
}

func TestManager_Search_AfterBuild_ReturnsQueryWordAsTopHit(t *testing.T) {
	vm := newTestVersionManager(t)
	m := NewManager(vm, embed.NewStaticEmbedder())

	task := m.EnableSemantic(context.Background(), "c1", "hash1", []string{"cat", "dog", "bird"})
	require.NoError(t, task.Wait())

	results, err := m.Search(context.Background(), "c1", "cat", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "cat", results[0].Word)
	assert.Equal(t, model.SearchMethodSemantic, results[0].Method)
}

func TestManager_Load_ReloadsPersistedIndexIntoFreshManager(t *testing.T) {
	vm := newTestVersionManager(t)
	builder := NewManager(vm, embed.NewStaticEmbedder())

	task := builder.EnableSemantic(context.Background(), "c1", "hash1", []string{"cat", "dog", "bird"})
	require.NoError(t, task.Wait())

	reloaded := NewManager(vm, embed.NewStaticEmbedder())
	require.NoError(t, reloaded.Load("c1"))
	assert.True(t, reloaded.Ready())

	results, err := reloaded.Search(context.Background(), "c1", "dog", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "dog", results[0].Word)
}

func TestManager_Load_UnknownCorpus_ReturnsError(t *testing.T) {
	vm := newTestVersionManager(t)
	m := NewManager(vm, embed.NewStaticEmbedder())

	err := m.Load("missing")
	require.Error(t, err)
	assert.False(t, m.Ready())
}

func TestManager_EnableSemantic_WithLockDirAcquiresAndReleasesFileLock(t *testing.T) {
	vm := newTestVersionManager(t)
	lockDir := t.TempDir()
	m := NewManager(vm, embed.NewStaticEmbedder(), WithLockDir(lockDir))

	task := m.EnableSemantic(context.Background(), "c1", "hash1", []string{"cat", "dog"})
	require.NoError(t, task.Wait())
	assert.True(t, m.Ready())

	// the build released its lock, so a fresh lock over the same
	// directory must still be free to acquire.
	lock := embed.NewFileLock(lockDir)
	acquired, err := lock.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	_ = lock.Unlock()
}

func TestManager_EnableSemantic_DedupesRepeatedLemmas(t *testing.T) {
	vm := newTestVersionManager(t)
	m := NewManager(vm, embed.NewStaticEmbedder())

	task := m.EnableSemantic(context.Background(), "c1", "hash1", []string{"cat", "cat", "cat"})
	require.NoError(t, task.Wait())

	assert.Equal(t, 1, m.index.Len())
}
