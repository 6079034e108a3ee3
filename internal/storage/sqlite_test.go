package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dshills/semindex/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNS = "local:hash-bow:v2:2"

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func testVector(ns, path string, idx int, vec []float32) *types.EmbeddingVector {
	return &types.EmbeddingVector{
		ID:         types.VectorID(ns, path, idx),
		Path:       path,
		ChunkIndex: idx,
		Vector:     vec,
		Metadata: types.VectorMetadata{
			Title:       path,
			ContentHash: types.ContentHash(path + string(rune('a'+idx))),
			Provider:    "local",
			Model:       "hash-bow",
			Dimension:   len(vec),
			Namespace:   ns,
			Complete:    idx == 0,
			ChunkCount:  1,
		},
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)

	// Initialize is idempotent
	require.NoError(t, storage.Initialize(context.Background()))
	require.NoError(t, storage.Initialize(context.Background()))
}

func TestStoreVectors_RoundTrip(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	v := testVector(testNS, "notes/a.md", 0, []float32{0.6, 0.8})
	v.Metadata.HeadingPath = []string{"Intro", "Setup"}
	require.NoError(t, storage.StoreVectors(ctx, []*types.EmbeddingVector{v}))

	got, err := storage.GetVector(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Path, got.Path)
	assert.Equal(t, v.Vector, got.Vector)
	assert.Equal(t, v.Metadata, got.Metadata)

	_, err = storage.GetVector(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreVectors_Upsert(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	v := testVector(testNS, "a.md", 0, []float32{1, 0})
	require.NoError(t, storage.StoreVectors(ctx, []*types.EmbeddingVector{v}))

	v2 := v.Clone()
	v2.Vector = []float32{0, 1}
	v2.Metadata.Title = "renamed"
	require.NoError(t, storage.StoreVectors(ctx, []*types.EmbeddingVector{v2}))

	count, err := storage.CountVectors(ctx, testNS)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := storage.GetVector(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got.Vector)
	assert.Equal(t, "renamed", got.Metadata.Title)
}

func TestStoreVectors_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(v *types.EmbeddingVector)
		wantErr error
	}{
		{"zero vector", func(v *types.EmbeddingVector) { v.Vector = []float32{0, 0} }, types.ErrZeroVector},
		{"not normalized", func(v *types.EmbeddingVector) { v.Vector = []float32{2, 0} }, types.ErrNotNormalized},
		{"dimension mismatch", func(v *types.EmbeddingVector) { v.Vector = []float32{1, 0, 0} }, types.ErrDimensionMismatch},
		{"id path mismatch", func(v *types.EmbeddingVector) { v.Path = "other.md" }, types.ErrInvalidVectorID},
		{"bad id", func(v *types.EmbeddingVector) { v.ID = "nonsense" }, types.ErrInvalidVectorID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := setupTestDB(t)
			ctx := context.Background()

			good := testVector(testNS, "good.md", 0, []float32{1, 0})
			bad := testVector(testNS, "bad.md", 0, []float32{1, 0})
			tt.mutate(bad)

			err := storage.StoreVectors(ctx, []*types.EmbeddingVector{good, bad})
			assert.ErrorIs(t, err, tt.wantErr)

			// nothing from the batch is written
			count, err := storage.CountVectors(ctx, "")
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestStoreVectors_EmptySentinel(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	v := testVector(testNS, "tiny.md", 0, nil)
	v.Metadata.IsEmpty = true
	v.Metadata.Dimension = 2
	require.NoError(t, storage.StoreVectors(ctx, []*types.EmbeddingVector{v}))

	got, err := storage.GetVector(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Vector)
	assert.True(t, got.Metadata.IsEmpty)
	assert.False(t, got.Eligible())
}

func TestQueries(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	other := "openai:text-embedding-3-small:v2:2"

	require.NoError(t, storage.StoreVectors(ctx, []*types.EmbeddingVector{
		testVector(testNS, "a.md", 0, []float32{1, 0}),
		testVector(testNS, "a.md", 1, []float32{0, 1}),
		testVector(testNS, "dir/b.md", 0, []float32{1, 0}),
		testVector(other, "a.md", 0, []float32{1, 0}),
	}))

	byPath, err := storage.GetVectorsByPath(ctx, "a.md")
	require.NoError(t, err)
	assert.Len(t, byPath, 3)

	byNS, err := storage.GetVectorsByNamespace(ctx, testNS)
	require.NoError(t, err)
	assert.Len(t, byNS, 3)

	byPrefix, err := storage.GetVectorsByNamespacePrefix(ctx, "local:hash-bow:")
	require.NoError(t, err)
	assert.Len(t, byPrefix, 3)

	roots, err := storage.GetRootVectors(ctx, testNS)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "a.md", roots[0].Path)
	assert.Equal(t, "dir/b.md", roots[1].Path)

	hashed, err := storage.GetVectorsByContentHash(ctx, roots[0].Metadata.ContentHash)
	require.NoError(t, err)
	assert.Len(t, hashed, 2, "same text in both namespaces")

	paths, err := storage.GetDistinctPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "dir/b.md"}, paths)

	total, err := storage.CountVectors(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestRemove(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	other := "openai:text-embedding-3-small:v2:2"

	require.NoError(t, storage.StoreVectors(ctx, []*types.EmbeddingVector{
		testVector(testNS, "a.md", 0, []float32{1, 0}),
		testVector(testNS, "a.md", 1, []float32{0, 1}),
		testVector(testNS, "a.md", 2, []float32{0, 1}),
		testVector(testNS, "dir/b.md", 0, []float32{1, 0}),
		testVector(testNS, "dir/sub/c.md", 0, []float32{1, 0}),
		testVector(testNS, "directory.md", 0, []float32{1, 0}),
		testVector(other, "x.md", 0, []float32{1, 0}),
	}))

	n, err := storage.RemoveByPathExceptIDs(ctx, "a.md", []string{
		types.VectorID(testNS, "a.md", 0),
		types.VectorID(testNS, "a.md", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = storage.RemoveByDirectory(ctx, "dir")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "sibling directory.md is not under dir/")

	n, err = storage.RemoveByNamespacePrefix(ctx, "openai:")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = storage.RemoveByNamespacePrefix(ctx, "")
	assert.Error(t, err)

	n, err = storage.RemoveByPath(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	paths, err := storage.GetDistinctPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"directory.md"}, paths)
}

func TestRenameByPath(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.StoreVectors(ctx, []*types.EmbeddingVector{
		testVector(testNS, "old.md", 0, []float32{1, 0}),
		testVector(testNS, "old.md", 1, []float32{0, 1}),
		testVector(testNS, "new.md", 0, []float32{0, 1}),
	}))

	n, err := storage.RenameByPath(ctx, "old.md", "new.md")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	moved, err := storage.GetVectorsByPath(ctx, "new.md")
	require.NoError(t, err)
	require.Len(t, moved, 2)
	assert.Equal(t, types.VectorID(testNS, "new.md", 0), moved[0].ID)
	assert.Equal(t, []float32{1, 0}, moved[0].Vector, "stale target replaced")

	old, err := storage.GetVectorsByPath(ctx, "old.md")
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestRenameByDirectory(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.StoreVectors(ctx, []*types.EmbeddingVector{
		testVector(testNS, "inbox/a.md", 0, []float32{1, 0}),
		testVector(testNS, "inbox/deep/b.md", 0, []float32{1, 0}),
		testVector(testNS, "inboxed.md", 0, []float32{1, 0}),
	}))

	n, err := storage.RenameByDirectory(ctx, "inbox", "archive/2024")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	paths, err := storage.GetDistinctPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive/2024/a.md", "archive/2024/deep/b.md", "inboxed.md"}, paths)

	v, err := storage.GetVector(ctx, types.VectorID(testNS, "archive/2024/deep/b.md", 0))
	require.NoError(t, err)
	assert.Equal(t, "archive/2024/deep/b.md", v.Path)
}

func TestMoveVectorID(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	a := testVector(testNS, "a.md", 0, []float32{1, 0})
	b := testVector(testNS, "b.md", 0, []float32{1, 0})
	require.NoError(t, storage.StoreVectors(ctx, []*types.EmbeddingVector{a, b}))

	err := storage.MoveVectorID(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	target := types.VectorID(testNS, "c.md", 3)
	require.NoError(t, storage.MoveVectorID(ctx, a.ID, target))
	moved, err := storage.GetVector(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, "c.md", moved.Path)
	assert.Equal(t, 3, moved.ChunkIndex)

	err = storage.MoveVectorID(ctx, "missing::x#0", types.VectorID(testNS, "d.md", 0))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailedFiles(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	failedAt := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, storage.UpsertFailedFile(ctx, &FailedFile{
		Path:         "notes/bad.md",
		Code:         "CONTENT_REJECTED",
		Message:      "blocked",
		Retryable:    false,
		Signals:      []string{"invisible-unicode"},
		ChunkIndices: []int{3},
		FailedAt:     failedAt,
	}))
	require.NoError(t, storage.UpsertFailedFile(ctx, &FailedFile{Path: "notes/flaky.md", Code: "NETWORK_ERROR", Retryable: true}))

	got, err := storage.GetFailedFile(ctx, "notes/bad.md")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, got.ChunkIndices)
	assert.Equal(t, []string{"invisible-unicode"}, got.Signals)
	assert.True(t, failedAt.Equal(got.FailedAt))

	flaky, err := storage.GetFailedFile(ctx, "notes/flaky.md")
	require.NoError(t, err)
	assert.Empty(t, flaky.Signals)
	assert.False(t, flaky.FailedAt.IsZero())

	n, err := storage.RenameFailedFiles(ctx, "notes", "archive", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = storage.RenameFailedFiles(ctx, "archive/bad.md", "archive/good.md", false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	files, err := storage.ListFailedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "archive/flaky.md", files[0].Path)
	assert.Equal(t, "archive/good.md", files[1].Path)

	require.NoError(t, storage.DeleteFailedFile(ctx, "archive/good.md"))
	_, err = storage.GetFailedFile(ctx, "archive/good.md")
	assert.ErrorIs(t, err, ErrNotFound)
}
