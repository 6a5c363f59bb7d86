package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driven"
)

// Ensure FileStore implements the interface.
var _ driven.FileStore = (*FileStore)(nil)

type entry struct {
	doc     *domain.Document
	content string
}

// FileStore is an in-memory implementation of driven.FileStore.
// Nothing survives the process; it backs tests and the memory storage backend.
type FileStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	byHash  map[string]string
}

// NewFileStore creates a new in-memory file store.
func NewFileStore() *FileStore {
	return &FileStore{
		entries: make(map[string]entry),
		byHash:  make(map[string]string),
	}
}

// FindByHash returns the document with the given content hash, or nil.
func (s *FileStore) FindByHash(_ context.Context, hash string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok || hash == "" {
		return nil, nil
	}
	return s.entries[id].doc.Clone(), nil
}

// Save stores a copy of the document and its content.
func (s *FileStore) Save(_ context.Context, doc *domain.Document, content string) (*domain.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}
	stored := doc.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if stored.ContentHash != "" {
		// The first live document keeps the hash; forced copies do not take it over.
		if _, owned := s.entries[s.byHash[stored.ContentHash]]; !owned {
			s.byHash[stored.ContentHash] = stored.ID
		}
	}
	s.entries[stored.ID] = entry{doc: stored, content: content}
	return stored.Clone(), nil
}

// GetMeta retrieves a document by ID.
func (s *FileStore) GetMeta(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.doc.Clone(), nil
}

// GetContent retrieves a document's text by ID.
func (s *FileStore) GetContent(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return e.content, nil
}

// Delete removes a document.
func (s *FileStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false, nil
	}
	delete(s.entries, id)
	if s.byHash[e.doc.ContentHash] == id {
		if next := s.oldestWithHashLocked(e.doc.ContentHash); next != "" {
			s.byHash[e.doc.ContentHash] = next
		} else {
			delete(s.byHash, e.doc.ContentHash)
		}
	}
	return true, nil
}

// oldestWithHashLocked returns the id of the earliest stored document with
// the given hash, or "" when none is left.
func (s *FileStore) oldestWithHashLocked(hash string) string {
	var oldest *domain.Document
	for _, e := range s.entries {
		if e.doc.ContentHash != hash {
			continue
		}
		if oldest == nil || e.doc.CreatedAt.Before(oldest.CreatedAt) ||
			(e.doc.CreatedAt.Equal(oldest.CreatedAt) && e.doc.ID < oldest.ID) {
			oldest = e.doc
		}
	}
	if oldest == nil {
		return ""
	}
	return oldest.ID
}

// GetAll returns every document, oldest first.
func (s *FileStore) GetAll(ctx context.Context) ([]domain.Document, error) {
	return s.Search(ctx, "")
}

// Search returns documents whose file name contains query, ignoring case.
func (s *FileStore) Search(_ context.Context, query string) ([]domain.Document, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Document, 0, len(s.entries))
	for _, e := range s.entries {
		if strings.Contains(strings.ToLower(e.doc.FileName), q) {
			result = append(result, *e.doc.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
