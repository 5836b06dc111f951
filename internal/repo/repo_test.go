// internal/repo/repo_test.go
package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arca/internal/config"
	"arca/internal/logging"
	"arca/internal/vcserrors"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	r, err := Open(t.TempDir(), config.Default(), logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.Init())
	return r
}

func writeFile(t *testing.T, r *Repository, relPath, content string) {
	t.Helper()
	abs := filepath.Join(r.WorkDir(), filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
}

func readFile(t *testing.T, r *Repository, relPath string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(r.WorkDir(), filepath.FromSlash(relPath)))
	require.NoError(t, err)
	return string(content)
}

func TestRepository_Init(t *testing.T) {
	r, err := Open(t.TempDir(), nil, nil)
	require.NoError(t, err)
	assert.False(t, r.IsInitialized())

	require.NoError(t, r.Init())
	assert.True(t, r.IsInitialized())
	assert.DirExists(t, filepath.Join(r.StorageDir(), "db"))
	assert.DirExists(t, filepath.Join(r.StorageDir(), "content"))

	// A second init is rejected, not silently repeated
	err = r.Init()
	require.Error(t, err)
	assert.True(t, vcserrors.IsIdempotency(err))
}

func TestRepository_OperationsRequireInit(t *testing.T) {
	r, err := Open(t.TempDir(), nil, nil)
	require.NoError(t, err)

	_, err = r.Commit("msg", "Alice")
	assert.True(t, vcserrors.IsNotFound(err))

	_, err = r.GetHistory()
	assert.True(t, vcserrors.IsNotFound(err))

	err = r.Checkout("whatever")
	assert.True(t, vcserrors.IsNotFound(err))
}

func TestRepository_CommitValidation(t *testing.T) {
	r := setupTestRepo(t)

	_, err := r.Commit("", "Alice")
	require.Error(t, err)
	assert.True(t, vcserrors.IsValidation(err))

	_, err = r.Commit("msg", "   ")
	require.Error(t, err)
	assert.True(t, vcserrors.IsValidation(err))

	// Failed commits leave no trace in history
	history, err := r.GetHistory()
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRepository_FirstCommit(t *testing.T) {
	r := setupTestRepo(t)
	writeFile(t, r, "a.txt", "hello")

	id, err := r.Commit("initial", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	history, err := r.GetHistory()
	require.NoError(t, err)
	require.Len(t, history, 1)

	c := history[0].Commit
	assert.Equal(t, id, c.ID())
	assert.Equal(t, "initial", c.Message())
	assert.Equal(t, "Alice", c.Author())
	assert.True(t, c.IsInitial())

	n, ok := c.Find("a.txt")
	require.True(t, ok)
	assert.Equal(t, int64(5), n.Size())

	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, id, st.Head)
	assert.Equal(t, 1, st.TrackedFiles)
	assert.Equal(t, 1, st.TotalCommits)
}

func TestRepository_LinearHistory(t *testing.T) {
	r := setupTestRepo(t)

	writeFile(t, r, "a.txt", "hello")
	first, err := r.Commit("first", "Alice")
	require.NoError(t, err)

	writeFile(t, r, "b.txt", "hi")
	second, err := r.Commit("second", "Bob")
	require.NoError(t, err)

	history, err := r.GetHistory()
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Oldest first, each commit's parent is its predecessor
	assert.Equal(t, first, history[0].ID)
	assert.Equal(t, second, history[1].ID)
	assert.Empty(t, history[0].Commit.ParentID())
	assert.Equal(t, first, history[1].Commit.ParentID())

	// Reads are idempotent
	again, err := r.GetHistory()
	require.NoError(t, err)
	assert.Equal(t, len(history), len(again))
	for i := range history {
		assert.Equal(t, history[i].ID, again[i].ID)
	}
}

func TestRepository_GetFileHistory(t *testing.T) {
	r := setupTestRepo(t)

	writeFile(t, r, "a.txt", "hello")
	first, err := r.Commit("first", "Alice")
	require.NoError(t, err)

	// Delete a.txt, add b.txt
	require.NoError(t, os.Remove(filepath.Join(r.WorkDir(), "a.txt")))
	writeFile(t, r, "b.txt", "hi")
	second, err := r.Commit("second", "Alice")
	require.NoError(t, err)

	aHist, err := r.GetFileHistory("a.txt")
	require.NoError(t, err)
	require.Len(t, aHist, 1)
	assert.Equal(t, first, aHist[0].ID)
	assert.Equal(t, int64(5), aHist[0].Node.Size())

	bHist, err := r.GetFileHistory("b.txt")
	require.NoError(t, err)
	require.Len(t, bHist, 1)
	assert.Equal(t, second, bHist[0].ID)

	none, err := r.GetFileHistory("never-existed.txt")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_CheckoutRoundTrip(t *testing.T) {
	r := setupTestRepo(t)

	writeFile(t, r, "a.txt", "hello")
	writeFile(t, r, "src/main.go", "package main\n")
	id, err := r.Commit("snapshot", "Alice")
	require.NoError(t, err)

	// Mutate everything, then restore
	writeFile(t, r, "a.txt", "mutated")
	require.NoError(t, os.Remove(filepath.Join(r.WorkDir(), "src", "main.go")))
	writeFile(t, r, "stray.txt", "should vanish")

	require.NoError(t, r.Checkout(id))

	assert.Equal(t, "hello", readFile(t, r, "a.txt"))
	assert.Equal(t, "package main\n", readFile(t, r, "src/main.go"))
	assert.NoFileExists(t, filepath.Join(r.WorkDir(), "stray.txt"))
}

func TestRepository_CheckoutLeavesHead(t *testing.T) {
	r := setupTestRepo(t)

	writeFile(t, r, "a.txt", "hello")
	first, err := r.Commit("first", "Alice")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(r.WorkDir(), "a.txt")))
	writeFile(t, r, "b.txt", "hi")
	second, err := r.Commit("second", "Alice")
	require.NoError(t, err)

	require.NoError(t, r.Checkout(first))

	// Working directory shows the old snapshot
	assert.Equal(t, "hello", readFile(t, r, "a.txt"))
	assert.NoFileExists(t, filepath.Join(r.WorkDir(), "b.txt"))

	// But head and history are untouched
	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, second, st.Head)
	assert.Equal(t, 2, st.TotalCommits)

	history, err := r.GetHistory()
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRepository_CheckoutUnknownCommit(t *testing.T) {
	r := setupTestRepo(t)
	writeFile(t, r, "a.txt", "hello")
	_, err := r.Commit("first", "Alice")
	require.NoError(t, err)

	err = r.Checkout("no-such-commit")
	require.Error(t, err)
	assert.True(t, vcserrors.IsNotFound(err))

	// An unknown target leaves the working directory alone
	assert.Equal(t, "hello", readFile(t, r, "a.txt"))
}

func TestRepository_CheckoutPreservesStorage(t *testing.T) {
	r := setupTestRepo(t)

	writeFile(t, r, "a.txt", "hello")
	id, err := r.Commit("first", "Alice")
	require.NoError(t, err)

	require.NoError(t, r.Checkout(id))

	// The reserved subtree survives checkout and stays functional
	assert.DirExists(t, r.StorageDir())
	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, id, st.Head)
}

func TestRepository_GetCommit(t *testing.T) {
	r := setupTestRepo(t)
	writeFile(t, r, "a.txt", "hello")
	id, err := r.Commit("first", "Alice")
	require.NoError(t, err)

	c, err := r.GetCommit(id)
	require.NoError(t, err)
	assert.Equal(t, id, c.ID())
	assert.Equal(t, 1, c.FileCount())

	_, err = r.GetCommit("missing")
	require.Error(t, err)
	assert.True(t, vcserrors.IsNotFound(err))
}

func TestRepository_EmptyCommit(t *testing.T) {
	r := setupTestRepo(t)

	// Committing an empty working directory is allowed
	id, err := r.Commit("empty", "Alice")
	require.NoError(t, err)

	c, err := r.GetCommit(id)
	require.NoError(t, err)
	assert.Equal(t, 0, c.FileCount())
}

func TestRepository_StatusBeforeFirstCommit(t *testing.T) {
	r := setupTestRepo(t)

	st, err := r.Status()
	require.NoError(t, err)
	assert.Empty(t, st.Head)
	assert.Equal(t, 0, st.TrackedFiles)
	assert.Equal(t, 0, st.TotalCommits)
}
