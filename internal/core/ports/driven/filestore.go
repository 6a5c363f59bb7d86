package driven

import (
	"context"

	"github.com/nomadai/kbase/internal/core/domain"
)

// FileStore persists document metadata, raw content and the
// content-hash index used for deduplication.
//
// Missing data is not an error for lookups: FindByHash returns nil,
// Delete returns false. GetMeta and GetContent return domain.ErrNotFound.
type FileStore interface {
	// FindByHash returns the document with the given content hash, or nil.
	FindByHash(ctx context.Context, hash string) (*domain.Document, error)

	// Save writes metadata and content. An empty ID or zero CreatedAt is
	// assigned before writing; the stored document is returned.
	Save(ctx context.Context, doc *domain.Document, content string) (*domain.Document, error)

	// GetMeta returns a document's metadata.
	GetMeta(ctx context.Context, id string) (*domain.Document, error)

	// GetContent returns a document's raw text.
	GetContent(ctx context.Context, id string) (string, error)

	// Delete removes a document. Returns false if the id is unknown.
	Delete(ctx context.Context, id string) (bool, error)

	// GetAll returns every document, oldest first.
	GetAll(ctx context.Context) ([]domain.Document, error)

	// Search returns documents whose file name contains query, ignoring case.
	Search(ctx context.Context, query string) ([]domain.Document, error)

	// Close releases resources.
	Close() error
}
