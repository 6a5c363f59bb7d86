package flatfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driven"
	"github.com/nomadai/kbase/internal/logger"
)

// Ensure FileStore implements the interface.
var _ driven.FileStore = (*FileStore)(nil)

// FileStore keeps one metadata JSON file and one text file per document,
// plus a content hash -> document id index. All metadata is held in memory;
// content is read from disk on demand.
type FileStore struct {
	mu         sync.RWMutex
	metaDir    string
	contentDir string
	hashPath   string
	docs       map[string]*domain.Document
	byHash     map[string]string
	now        func() time.Time
}

// NewFileStore loads every document under dataDir.
// Malformed metadata files are logged and skipped. The hash index is
// reconciled with the loaded documents.
func NewFileStore(dataDir string) (*FileStore, error) {
	s := &FileStore{
		metaDir:    filepath.Join(dataDir, metadataDir),
		contentDir: filepath.Join(dataDir, contentDir),
		hashPath:   filepath.Join(dataDir, hashIndexFile),
		docs:       make(map[string]*domain.Document),
		byHash:     make(map[string]string),
		now:        time.Now,
	}
	for _, dir := range []string{s.metaDir, s.contentDir} {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	entries, err := os.ReadDir(s.metaDir)
	if err != nil {
		return fmt.Errorf("%w: list metadata: %w", domain.ErrStorage, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		data, err := readFile(filepath.Join(s.metaDir, name))
		if err != nil {
			logger.Warn("skipping metadata %s: %v", name, err)
			continue
		}
		var doc domain.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			logger.Warn("skipping malformed metadata %s: %v", name, err)
			continue
		}
		if doc.ID == "" {
			doc.ID = strings.TrimSuffix(name, ".json")
		}
		s.docs[doc.ID] = &doc
	}

	data, err := readFile(s.hashPath)
	if err != nil {
		return err
	}
	if data != nil {
		if err := json.Unmarshal(data, &s.byHash); err != nil {
			logger.Warn("hash index is not a JSON object, rebuilding: %v", err)
			s.byHash = make(map[string]string)
		}
	}

	if s.reconcileLocked() {
		if err := writeJSON(s.hashPath, s.byHash); err != nil {
			logger.Warn("could not persist reconciled hash index: %v", err)
		}
	}
	logger.Debug("file store loaded %d documents", len(s.docs))
	return nil
}

// reconcileLocked drops hash entries pointing at unknown documents and
// re-adds documents missing from the index. Reports whether it changed anything.
func (s *FileStore) reconcileLocked() bool {
	changed := false
	for hash, id := range s.byHash {
		doc, ok := s.docs[id]
		if !ok || doc.ContentHash != hash {
			delete(s.byHash, hash)
			changed = true
		}
	}
	for _, doc := range s.docs {
		if doc.ContentHash == "" {
			continue
		}
		if _, ok := s.byHash[doc.ContentHash]; !ok {
			s.byHash[doc.ContentHash] = s.oldestWithHashLocked(doc.ContentHash)
			changed = true
		}
	}
	return changed
}

// oldestWithHashLocked returns the id of the earliest loaded document with
// the given hash, or "" when none is left.
func (s *FileStore) oldestWithHashLocked(hash string) string {
	var oldest *domain.Document
	for _, doc := range s.docs {
		if doc.ContentHash != hash {
			continue
		}
		if oldest == nil || doc.CreatedAt.Before(oldest.CreatedAt) ||
			(doc.CreatedAt.Equal(oldest.CreatedAt) && doc.ID < oldest.ID) {
			oldest = doc
		}
	}
	if oldest == nil {
		return ""
	}
	return oldest.ID
}

// FindByHash returns the document with the given content hash, or nil.
func (s *FileStore) FindByHash(_ context.Context, hash string) (*domain.Document, error) {
	if hash == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, nil
	}
	return s.docs[id].Clone(), nil
}

// Save writes content, then metadata, then the hash index.
// A metadata write failure removes the content file again.
func (s *FileStore) Save(_ context.Context, doc *domain.Document, content string) (*domain.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}
	stored := doc.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if !validID(stored.ID) {
		return nil, fmt.Errorf("%w: document id %q", domain.ErrInvalidInput, stored.ID)
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contentPath := s.contentPath(stored.ID)
	if err := writeFile(contentPath, []byte(content)); err != nil {
		return nil, err
	}
	if err := writeJSON(s.metaPath(stored.ID), stored); err != nil {
		_ = removeFile(contentPath)
		return nil, err
	}

	if stored.ContentHash != "" {
		// The first live document keeps the hash; forced copies do not take it over.
		if _, owned := s.docs[s.byHash[stored.ContentHash]]; !owned {
			s.byHash[stored.ContentHash] = stored.ID
		}
	}
	s.docs[stored.ID] = stored
	if err := writeJSON(s.hashPath, s.byHash); err != nil {
		logger.Warn("hash index not persisted, it will be rebuilt on next load: %v", err)
	}
	return stored.Clone(), nil
}

// GetMeta returns a document's metadata or domain.ErrNotFound.
func (s *FileStore) GetMeta(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc.Clone(), nil
}

// GetContent returns a document's raw text or domain.ErrNotFound.
func (s *FileStore) GetContent(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	_, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return "", domain.ErrNotFound
	}

	data, err := readFile(s.contentPath(id))
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", domain.ErrNotFound
	}
	return string(data), nil
}

// Delete removes both files and the hash entry. Returns false for unknown ids.
func (s *FileStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return false, nil
	}
	if err := removeFile(s.metaPath(id)); err != nil {
		return false, err
	}
	if err := removeFile(s.contentPath(id)); err != nil {
		logger.Warn("content of %s not removed: %v", id, err)
	}

	delete(s.docs, id)
	if s.byHash[doc.ContentHash] == id {
		if next := s.oldestWithHashLocked(doc.ContentHash); next != "" {
			s.byHash[doc.ContentHash] = next
		} else {
			delete(s.byHash, doc.ContentHash)
		}
	}
	if err := writeJSON(s.hashPath, s.byHash); err != nil {
		logger.Warn("hash index not persisted, it will be rebuilt on next load: %v", err)
	}
	return true, nil
}

// GetAll returns every document, oldest first.
func (s *FileStore) GetAll(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(func(*domain.Document) bool { return true }), nil
}

// Search returns documents whose file name contains query, ignoring case.
func (s *FileStore) Search(_ context.Context, query string) ([]domain.Document, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(func(d *domain.Document) bool {
		return strings.Contains(strings.ToLower(d.FileName), q)
	}), nil
}

func (s *FileStore) collectLocked(match func(*domain.Document) bool) []domain.Document {
	out := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if match(doc) {
			out = append(out, *doc.Clone())
		}
	}
	sortDocuments(out)
	return out
}

// sortDocuments orders by creation time, then id.
func sortDocuments(docs []domain.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

// Close is a no-op; every write is synchronous.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) metaPath(id string) string {
	return filepath.Join(s.metaDir, id+".json")
}

func (s *FileStore) contentPath(id string) string {
	return filepath.Join(s.contentDir, id+".txt")
}
