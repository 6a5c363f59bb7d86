package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nomadai/kbase/internal/adapters/driven/storage/memory"
	"github.com/nomadai/kbase/internal/core/domain"
)

// --- Mock implementations ---

// mockEmbeddingService implements driven.EmbeddingService for testing.
type mockEmbeddingService struct {
	mu        sync.Mutex
	embedding []float32
	embedErr  error
	// failOn makes Embed fail for texts containing the marker.
	failOn  string
	calls   int
	prompts []string
	pingErr error
	closed  bool
}

func (m *mockEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, text)
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.failOn != "" && strings.Contains(text, m.failOn) {
		return nil, errors.New("mock embedding failure")
	}
	return append([]float32(nil), m.embedding...), nil
}

func (m *mockEmbeddingService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockEmbeddingService) Dimensions() int {
	return len(m.embedding)
}

func (m *mockEmbeddingService) ModelName() string {
	return "mock-embed"
}

func (m *mockEmbeddingService) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *mockEmbeddingService) Close() error {
	m.closed = true
	return nil
}

// mockCache implements driven.EmbeddingCache for testing.
type mockCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	flushes int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]float32)}
}

func (m *mockCache) Get(key string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *mockCache) Put(key string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = vector
}

func (m *mockCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *mockCache) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *mockCache) Close() error {
	return m.Flush()
}

// failingFileStore wraps the in-memory store and injects errors.
type failingFileStore struct {
	*memory.FileStore
	saveErr   error
	findErr   error
	deleteErr error
	// saveErrAfter fails every Save after this many successful ones.
	saveErrAfter int
	saves        int
}

func (f *failingFileStore) FindByHash(ctx context.Context, hash string) (*domain.Document, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.FileStore.FindByHash(ctx, hash)
}

func (f *failingFileStore) Save(ctx context.Context, doc *domain.Document, content string) (*domain.Document, error) {
	f.saves++
	if f.saveErr != nil && f.saves > f.saveErrAfter {
		return nil, f.saveErr
	}
	return f.FileStore.Save(ctx, doc, content)
}

func (f *failingFileStore) Delete(ctx context.Context, id string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	return f.FileStore.Delete(ctx, id)
}

// panickingPipeline implements driven.PostProcessorPipeline and always panics.
type panickingPipeline struct{}

func (panickingPipeline) Process(context.Context, *domain.Document, string) ([]domain.Chunk, error) {
	panic("boom")
}

// fixedPipeline returns the same chunk texts for every document.
type fixedPipeline struct {
	texts []string
}

func (p fixedPipeline) Process(_ context.Context, doc *domain.Document, _ string) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, len(p.texts))
	for i, text := range p.texts {
		id := domain.ChunkID(doc.ID, i)
		chunks[i] = domain.Chunk{
			ID:   id,
			Text: text,
			Metadata: &domain.ChunkMetadata{
				Document:   *doc.Clone(),
				ChunkID:    id,
				ChunkIndex: i,
				ChunkTotal: len(p.texts),
			},
		}
	}
	return chunks, nil
}
