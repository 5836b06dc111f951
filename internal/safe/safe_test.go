// internal/safe/safe_test.go
package safe

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arca/internal/vcserrors"
)

func setupTestSafe(t *testing.T) (*Safe, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "safe-test")
	require.NoError(t, err)

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)

	s, err := New(db, Options{
		Root:      filepath.Join(dir, "content"),
		CacheSize: 16,
	})
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.RemoveAll(dir)
	}

	return s, cleanup
}

func TestSafe_StoreAndGet(t *testing.T) {
	s, cleanup := setupTestSafe(t)
	defer cleanup()

	content := []byte("hello world")
	hash, err := s.Store("a.txt", content)
	require.NoError(t, err)
	assert.Equal(t, HashContent(content), hash)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	exists, err := s.Exists(hash)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSafe_EmptyContent(t *testing.T) {
	s, cleanup := setupTestSafe(t)
	defer cleanup()

	hash, err := s.Store("empty.txt", nil)
	require.NoError(t, err)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSafe_Deduplication(t *testing.T) {
	s, cleanup := setupTestSafe(t)
	defer cleanup()

	content := []byte("same bytes")
	hash1, err := s.Store("a.txt", content)
	require.NoError(t, err)
	hash2, err := s.Store("b.txt", content)
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)

	meta, err := s.Meta(hash1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), meta.RefCount)
	assert.Equal(t, int64(len(content)), meta.Size)
}

func TestSafe_CompressionRoundTrip(t *testing.T) {
	s, cleanup := setupTestSafe(t)
	defer cleanup()

	// Highly repetitive content well above the 1KB floor
	content := bytes.Repeat([]byte("abcdefgh"), 4096)
	hash, err := s.Store("big.txt", content)
	require.NoError(t, err)

	meta, err := s.Meta(hash)
	require.NoError(t, err)
	assert.True(t, meta.Compressed)
	assert.Equal(t, int64(len(content)), meta.Size)

	// The stored blob is smaller than the original
	info, err := os.Stat(s.blobPath(hash))
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(content)))

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSafe_SkipsCompressedExtensions(t *testing.T) {
	s, cleanup := setupTestSafe(t)
	defer cleanup()

	content := bytes.Repeat([]byte("abcdefgh"), 4096)
	hash, err := s.Store("archive.zip", content)
	require.NoError(t, err)

	meta, err := s.Meta(hash)
	require.NoError(t, err)
	assert.False(t, meta.Compressed)
}

func TestSafe_CorruptionDetected(t *testing.T) {
	s, cleanup := setupTestSafe(t)
	defer cleanup()

	content := []byte("precious data")
	hash, err := s.Store("a.txt", content)
	require.NoError(t, err)

	// Flip the blob on disk behind the store's back
	require.NoError(t, os.WriteFile(s.blobPath(hash), []byte("tampered"), 0644))

	// A fresh store instance bypasses the read cache
	s2, err := New(s.db, Options{Root: s.root, CacheSize: 16})
	require.NoError(t, err)

	_, err = s2.Get(hash)
	require.Error(t, err)
	assert.True(t, vcserrors.IsStorage(err))
}

func TestSafe_GetUnknownHash(t *testing.T) {
	s, cleanup := setupTestSafe(t)
	defer cleanup()

	_, err := s.Get(HashContent([]byte("never stored")))
	require.Error(t, err)
	assert.True(t, vcserrors.IsNotFound(err))

	_, err = s.Get("not-a-hash")
	require.Error(t, err)
	assert.True(t, vcserrors.IsValidation(err))
}

func TestSafe_Verify(t *testing.T) {
	s, cleanup := setupTestSafe(t)
	defer cleanup()

	hash, err := s.Store("a.txt", []byte("content"))
	require.NoError(t, err)
	assert.NoError(t, s.Verify(hash))
}
