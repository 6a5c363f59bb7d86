package driven

import (
	"context"

	"github.com/nomadai/kbase/internal/core/domain"
)

// VectorIndex owns chunk records and answers similarity queries.
//
// Removal, repair and saving are serialised against concurrent adds.
type VectorIndex interface {
	// AddChunk validates and stores a chunk, replacing any record with the same id.
	AddChunk(ctx context.Context, chunk domain.Chunk) error

	// AddChunks stores a batch and returns how many chunks were stored.
	// Invalid chunks are skipped and logged.
	AddChunks(ctx context.Context, chunks []domain.Chunk) (int, error)

	// GetDocumentChunks returns the chunks owned by a document in index order.
	GetDocumentChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// RemoveDocument removes every chunk owned by a document, rebuilds the
	// position index and persists. Unknown ids are a no-op. Returns the
	// number of chunks removed.
	RemoveDocument(ctx context.Context, documentID string) (int, error)

	// SimilaritySearch returns up to limit chunks scoring at least threshold,
	// best first.
	SimilaritySearch(ctx context.Context, query []float32, limit int, threshold float64) ([]domain.SearchHit, error)

	// Stats summarises the index.
	Stats(ctx context.Context) domain.VectorStats

	// DocumentIDs lists the ids of documents that own at least one chunk.
	DocumentIDs(ctx context.Context) []string

	// CheckAndRepair strips invalid records, drops duplicates and rebuilds
	// the position index. Repeated calls on a healthy index change nothing.
	CheckAndRepair(ctx context.Context) (domain.RepairReport, error)

	// Save persists the records and the position index.
	Save(ctx context.Context) error

	// Close flushes pending changes and releases resources.
	Close() error
}
