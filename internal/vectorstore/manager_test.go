package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	base := t.TempDir()
	m, err := NewManager(ManagerConfig{BasePath: base, VectorSize: testVectorSize}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, base
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(ManagerConfig{VectorSize: 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(ManagerConfig{BasePath: t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGetStore_SharedAndIsolatedPaths(t *testing.T) {
	m, base := newTestManager(t)
	ctx := context.Background()

	_, err := m.GetStore(ctx, "")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(base, "shared"))

	_, err = m.GetStore(ctx, "tenant-a")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(base, "isolated", "tenant-a"))
}

func TestGetStore_ReturnsSameHandle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s1, err := m.GetStore(ctx, "tenant-a")
	require.NoError(t, err)
	s2, err := m.GetStore(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	s3, err := m.GetStore(ctx, "tenant-b")
	require.NoError(t, err)
	assert.NotSame(t, s1, s3)
}

func TestGetStore_ConcurrentSameKey(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	const n = 16
	stores := make([]Store, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.GetStore(ctx, "tenant-a")
			require.NoError(t, err)
			stores[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, stores[0], stores[i])
	}
}

func TestGetStore_IsolationBetweenKeys(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	a, err := m.GetStore(ctx, "tenant-a")
	require.NoError(t, err)
	b, err := m.GetStore(ctx, "tenant-b")
	require.NoError(t, err)

	require.NoError(t, a.Insert(ctx, []Chunk{
		testChunk("doc-a", 0, 1, []float32{1, 0, 0}),
	}))

	countA, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, countA)

	countB, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, countB)
}

func TestGetStore_FailedOpenNotCached(t *testing.T) {
	m, base := newTestManager(t)
	ctx := context.Background()

	// A file where the store directory should go makes the open fail.
	blocker := filepath.Join(base, "shared")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := m.GetStore(ctx, "")
	require.Error(t, err)

	// Once the obstruction is gone the next call succeeds.
	require.NoError(t, os.Remove(blocker))
	_, err = m.GetStore(ctx, "")
	assert.NoError(t, err)
}

func TestDrop_RemovesDirectoryAndHandle(t *testing.T) {
	m, base := newTestManager(t)
	ctx := context.Background()

	s, err := m.GetStore(ctx, "tenant-a")
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, []Chunk{
		testChunk("doc-a", 0, 1, []float32{1, 0, 0}),
	}))

	dir := filepath.Join(base, "isolated", "tenant-a")
	require.DirExists(t, dir)

	require.NoError(t, m.Drop(ctx, "tenant-a"))
	assert.NoDirExists(t, dir)

	// The old handle is closed.
	_, err = s.Count(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	// A later GetStore for the key starts fresh and empty.
	fresh, err := m.GetStore(ctx, "tenant-a")
	require.NoError(t, err)
	count, err := fresh.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDrop_WithoutOpenHandle(t *testing.T) {
	m, base := newTestManager(t)
	ctx := context.Background()

	// Residue on disk but no live handle.
	dir := filepath.Join(base, "isolated", "tenant-x")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, m.Drop(ctx, "tenant-x"))
	assert.NoDirExists(t, dir)
}

func TestManagerClear(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.GetStore(ctx, "tenant-a")
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, []Chunk{
		testChunk("doc-a", 0, 1, []float32{1, 0, 0}),
	}))

	require.NoError(t, m.Clear(ctx, "tenant-a"))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The handle survives a clear.
	again, err := m.GetStore(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestManagerClose(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.GetStore(ctx, "tenant-a")
	require.NoError(t, err)

	require.NoError(t, m.Close())

	_, err = m.GetStore(ctx, "tenant-a")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Count(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	// Close is idempotent.
	assert.NoError(t, m.Close())
}
