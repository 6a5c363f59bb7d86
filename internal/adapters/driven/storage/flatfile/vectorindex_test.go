package flatfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadai/kbase/internal/core/domain"
)

func newIndex(t *testing.T, dir string) *VectorIndex {
	t.Helper()
	v, err := NewVectorIndex(dir)
	require.NoError(t, err)
	return v
}

func TestVectorIndex_EmptyDir(t *testing.T) {
	ctx := context.Background()
	v := newIndex(t, filepath.Join(t.TempDir(), "nested"))

	assert.Equal(t, domain.VectorStats{}, v.Stats(ctx))
	hits, err := v.SimilaritySearch(ctx, []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	report, err := v.CheckAndRepair(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
}

func TestVectorIndex_AddAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := newIndex(t, t.TempDir())

	chunks := testChunks("doc-a", 3)
	added, err := v.AddChunks(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	require.NoError(t, v.AddChunk(ctx, testChunk("doc-b", 0)))

	got, err := v.GetDocumentChunks(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, chunks, got)

	got[0].Embedding[0] = 42
	again, err := v.GetDocumentChunks(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, float32(1), again[0].Embedding[0], "returned chunks must be copies")

	missing, err := v.GetDocumentChunks(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, missing)

	assert.Equal(t, []string{"doc-a", "doc-b"}, v.DocumentIDs(ctx))
}

func TestVectorIndex_AddChunkValidates(t *testing.T) {
	ctx := context.Background()
	v := newIndex(t, t.TempDir())

	bad := testChunk("doc", 0)
	bad.Embedding = nil
	assert.ErrorIs(t, v.AddChunk(ctx, bad), domain.ErrInvalidInput)

	noText := testChunk("doc", 1)
	noText.Text = ""
	added, err := v.AddChunks(ctx, []domain.Chunk{bad, noText, testChunk("doc", 2)})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, v.Stats(ctx).TotalVectors)
}

func TestVectorIndex_AddReplacesSameID(t *testing.T) {
	ctx := context.Background()
	v := newIndex(t, t.TempDir())

	require.NoError(t, v.AddChunk(ctx, testChunk("doc", 0)))
	require.NoError(t, v.AddChunk(ctx, testChunk("doc", 1)))

	replacement := testChunk("doc", 0)
	replacement.Text = "replaced"
	require.NoError(t, v.AddChunk(ctx, replacement))

	got, err := v.GetDocumentChunks(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "replaced", got[0].Text)
	assert.Equal(t, 2, v.Stats(ctx).TotalVectors)
}

func TestVectorIndex_RemoveDocument(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	v := newIndex(t, dir)

	_, err := v.AddChunks(ctx, testChunks("keep-1", 2))
	require.NoError(t, err)
	_, err = v.AddChunks(ctx, testChunks("gone", 5))
	require.NoError(t, err)
	_, err = v.AddChunks(ctx, testChunks("keep-2", 3))
	require.NoError(t, err)

	before := v.Stats(ctx)
	removed, err := v.RemoveDocument(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, 5, removed)

	after := v.Stats(ctx)
	assert.Equal(t, before.TotalVectors-5, after.TotalVectors)
	assert.Equal(t, before.TotalDocuments-1, after.TotalDocuments)

	got, err := v.GetDocumentChunks(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, got)

	kept, err := v.GetDocumentChunks(ctx, "keep-2")
	require.NoError(t, err)
	assert.Equal(t, testChunks("keep-2", 3), kept)

	report, err := v.CheckAndRepair(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())

	// removal persists immediately
	reloaded := newIndex(t, dir)
	assert.Equal(t, after, reloaded.Stats(ctx))

	removed, err = v.RemoveDocument(ctx, "gone")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestVectorIndex_SimilaritySearch(t *testing.T) {
	ctx := context.Background()
	v := newIndex(t, t.TempDir())

	require.NoError(t, v.AddChunk(ctx, testChunk("d", 0, 1, 0, 0)))
	require.NoError(t, v.AddChunk(ctx, testChunk("d", 1, 0, 1, 0)))
	require.NoError(t, v.AddChunk(ctx, testChunk("d", 2, 1, 1, 0)))
	require.NoError(t, v.AddChunk(ctx, testChunk("d", 3, 0, 1, 0)))

	t.Run("exact match ranks first", func(t *testing.T) {
		hits, err := v.SimilaritySearch(ctx, []float32{0, 1, 0}, 5, 0.4)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "d-chunk-1", hits[0].ID)
		assert.Equal(t, "d-chunk-3", hits[1].ID, "ties keep record order")
		assert.InDelta(t, 1, hits[0].Score, 1e-6)
		assert.Equal(t, "d-chunk-2", hits[2].ID)
		assert.InDelta(t, 0.7071, hits[2].Score, 1e-3)
		assert.Equal(t, "d", hits[0].Metadata.ID)
	})

	t.Run("threshold filters", func(t *testing.T) {
		hits, err := v.SimilaritySearch(ctx, []float32{0, 1, 0}, 5, 0.9)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("limit", func(t *testing.T) {
		hits, err := v.SimilaritySearch(ctx, []float32{1, 1, 0}, 1, 0)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "d-chunk-2", hits[0].ID)
	})

	t.Run("default limit", func(t *testing.T) {
		hits, err := v.SimilaritySearch(ctx, []float32{1, 1, 0}, 0, 0)
		require.NoError(t, err)
		assert.Len(t, hits, 4)
	})

	t.Run("empty query", func(t *testing.T) {
		hits, err := v.SimilaritySearch(ctx, nil, 5, 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("zero query", func(t *testing.T) {
		hits, err := v.SimilaritySearch(ctx, []float32{0, 0, 0}, 5, 0.1)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestVectorIndex_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	v := newIndex(t, dir)

	_, err := v.AddChunks(ctx, testChunks("doc", 4))
	require.NoError(t, err)
	require.NoError(t, v.Save(ctx))

	reloaded := newIndex(t, dir)
	got, err := reloaded.GetDocumentChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, testChunks("doc", 4), got)

	report, err := reloaded.CheckAndRepair(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
}

func TestVectorIndex_CloseFlushes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	v := newIndex(t, dir)

	require.NoError(t, v.AddChunk(ctx, testChunk("doc", 0)))
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	assert.ErrorIs(t, v.AddChunk(ctx, testChunk("doc", 1)), domain.ErrClosed)
	_, err := v.RemoveDocument(ctx, "doc")
	assert.ErrorIs(t, err, domain.ErrClosed)

	assert.Equal(t, 1, newIndex(t, dir).Stats(ctx).TotalVectors)
}

func TestVectorIndex_CorruptFiles(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		store string
		index string
	}{
		{"store is an object", `{"not":"an array"}`, `{}`},
		{"store is garbage", `]]]`, `{}`},
		{"index is garbage", `[]`, `nope`},
		{"index is an array", `[]`, `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, vectorStoreFile), []byte(tt.store), 0o600))
			require.NoError(t, os.WriteFile(filepath.Join(dir, vectorIndexFile), []byte(tt.index), 0o600))

			v := newIndex(t, dir)
			assert.Equal(t, 0, v.Stats(ctx).TotalVectors)
			require.NoError(t, v.AddChunk(ctx, testChunk("doc", 0)))
		})
	}
}

func TestVectorIndex_RepairStripsMalformedRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v := newIndex(t, dir)
	_, err := v.AddChunks(ctx, testChunks("doc", 3))
	require.NoError(t, err)
	require.NoError(t, v.Save(ctx))

	// splice one record with no embedding and one unreadable record into the file
	var records []map[string]any
	data, err := os.ReadFile(filepath.Join(dir, vectorStoreFile))
	require.NoError(t, err)
	require.NoError(t, jsonUnmarshal(data, &records))
	broken := map[string]any{"id": "x-chunk-0", "text": "orphan", "metadata": map[string]any{"id": "x"}}
	records = append(records[:1], append([]map[string]any{broken}, records[1:]...)...)
	raw, err := jsonMarshal(records)
	require.NoError(t, err)
	raw = append(raw[:len(raw)-1], []byte(`,"garbage"]`)...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorStoreFile), raw, 0o600))

	reloaded := newIndex(t, dir)
	report, err := reloaded.CheckAndRepair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.InvalidRecords)
	assert.True(t, report.IndexRebuilt)

	got, err := reloaded.GetDocumentChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, testChunks("doc", 3), got)
	assert.Equal(t, []string{"doc"}, reloaded.DocumentIDs(ctx))

	second, err := reloaded.CheckAndRepair(ctx)
	require.NoError(t, err)
	assert.False(t, second.Changed(), "repair must be idempotent")

	third, err := newIndex(t, dir).CheckAndRepair(ctx)
	require.NoError(t, err)
	assert.False(t, third.Changed(), "repair must persist its result")
}

func TestVectorIndex_RepairDropsDuplicates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	dup := []domain.Chunk{testChunk("doc", 0), testChunk("doc", 1), testChunk("doc", 0)}
	data, err := jsonMarshal(dup)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorStoreFile), data, 0o600))

	v := newIndex(t, dir)
	report, err := v.CheckAndRepair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicateRecords)
	assert.Equal(t, 2, v.Stats(ctx).TotalVectors)
}

func TestVectorIndex_MissingIndexFileIsRebuilt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v := newIndex(t, dir)
	_, err := v.AddChunks(ctx, testChunks("doc", 2))
	require.NoError(t, err)
	require.NoError(t, v.Save(ctx))
	require.NoError(t, os.Remove(filepath.Join(dir, vectorIndexFile)))

	reloaded := newIndex(t, dir)
	got, err := reloaded.GetDocumentChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	report, err := reloaded.CheckAndRepair(ctx)
	require.NoError(t, err)
	assert.True(t, report.IndexRebuilt)
	assert.FileExists(t, filepath.Join(dir, vectorIndexFile))
}

func TestVectorIndex_ConcurrentAddAndRemove(t *testing.T) {
	ctx := context.Background()
	v := newIndex(t, t.TempDir())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := fmt.Sprintf("doc-%d", w)
			_, _ = v.AddChunks(ctx, testChunks(doc, 10))
			if w%2 == 0 {
				_, _ = v.RemoveDocument(ctx, doc)
			}
			_ = v.Save(ctx)
		}()
	}
	wg.Wait()

	stats := v.Stats(ctx)
	assert.Equal(t, 40, stats.TotalVectors)
	assert.Equal(t, 4, stats.TotalDocuments)
	assert.InDelta(t, 10, stats.AverageChunksPerDocument, 1e-9)

	report, err := v.CheckAndRepair(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
}
