package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadai/kbase/internal/core/domain"
)

func TestFileStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore()

	doc, err := store.Save(ctx, &domain.Document{FileName: "a.txt", ContentHash: "h1"}, "alpha")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())

	meta, err := store.GetMeta(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, meta)

	content, err := store.GetContent(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", content)

	found, err := store.FindByHash(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, doc.ID, found.ID)
}

func TestFileStore_MissingData(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore()

	found, err := store.FindByHash(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, found)

	_, err = store.GetMeta(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetContent(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	deleted, err := store.Delete(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.Save(ctx, nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFileStore_DeleteAndSearch(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	a, err := store.Save(ctx, &domain.Document{FileName: "Budget.csv", ContentHash: "a", CreatedAt: base}, "a")
	require.NoError(t, err)
	b, err := store.Save(ctx, &domain.Document{FileName: "budget-notes.md", ContentHash: "b", CreatedAt: base.Add(time.Hour)}, "b")
	require.NoError(t, err)
	_, err = store.Save(ctx, &domain.Document{FileName: "other.txt", ContentHash: "c", CreatedAt: base.Add(2 * time.Hour)}, "c")
	require.NoError(t, err)

	hits, err := store.Search(ctx, "BUDGET")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, a.ID, hits[0].ID)
	assert.Equal(t, b.ID, hits[1].ID)

	deleted, err := store.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	found, err := store.FindByHash(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, found)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.NoError(t, store.Close())
}

func TestFileStore_HashStaysWithFirstLiveCopy(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	original, err := store.Save(ctx, &domain.Document{FileName: "a.txt", ContentHash: "h", CreatedAt: base}, "same")
	require.NoError(t, err)
	copied, err := store.Save(ctx, &domain.Document{FileName: "a.txt", ContentHash: "h", CreatedAt: base.Add(time.Minute)}, "same")
	require.NoError(t, err)

	found, err := store.FindByHash(ctx, "h")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, original.ID, found.ID)

	_, err = store.Delete(ctx, copied.ID)
	require.NoError(t, err)
	found, err = store.FindByHash(ctx, "h")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, original.ID, found.ID)

	second, err := store.Save(ctx, &domain.Document{FileName: "b.txt", ContentHash: "h", CreatedAt: base.Add(time.Hour)}, "same")
	require.NoError(t, err)
	_, err = store.Delete(ctx, original.ID)
	require.NoError(t, err)
	found, err = store.FindByHash(ctx, "h")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, second.ID, found.ID)

	_, err = store.Delete(ctx, second.ID)
	require.NoError(t, err)
	found, err = store.FindByHash(ctx, "h")
	require.NoError(t, err)
	assert.Nil(t, found)
}
