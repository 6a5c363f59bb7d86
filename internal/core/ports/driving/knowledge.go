package driving

import (
	"context"

	"github.com/nomadai/kbase/internal/core/domain"
)

// KnowledgeService ingests documents and answers retrieval queries.
//
// Operations that return result values never return Go errors or panic:
// failures are reported through the result's Kind and Message.
type KnowledgeService interface {
	// ProcessDocument deduplicates, chunks, embeds and stores one file.
	// force skips the duplicate check.
	ProcessDocument(ctx context.Context, file domain.UploadedFile, force bool) domain.ProcessResult

	// ProcessAttachments ingests files in order and summarises each.
	ProcessAttachments(ctx context.Context, files []domain.UploadedFile) []domain.AttachmentResult

	// SearchRelevantChunks embeds the query and returns the best matching chunks.
	// A non-positive limit uses the configured default.
	SearchRelevantChunks(ctx context.Context, query string, limit int) domain.SearchResponse

	// BuildContext assembles retrieved chunks and source excerpts for a query.
	BuildContext(ctx context.Context, query string, limit int) domain.ContextResult

	// GetKnowledgeBase lists every document.
	GetKnowledgeBase(ctx context.Context) []domain.Document

	// GetDocument returns a document's metadata.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetContent returns a document's raw text.
	GetContent(ctx context.Context, id string) (string, error)

	// FindDocuments lists documents whose file name contains query.
	FindDocuments(ctx context.Context, query string) []domain.Document

	// DeleteDocument removes a document and all chunks it owns.
	// Returns false if the document did not exist or removal failed.
	DeleteDocument(ctx context.Context, id string) bool

	// Stats summarises the knowledge base.
	Stats(ctx context.Context) domain.KnowledgeStats

	// Repair checks the vector index and removes chunks whose document is gone.
	Repair(ctx context.Context) (domain.RepairReport, error)
}
