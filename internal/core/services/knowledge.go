package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driven"
	"github.com/nomadai/kbase/internal/core/ports/driving"
	"github.com/nomadai/kbase/internal/logger"
	"github.com/nomadai/kbase/internal/postprocessors/chunker"
)

// Ensure KnowledgeService implements the interface.
var _ driving.KnowledgeService = (*KnowledgeService)(nil)

const (
	// DefaultWorkers is the number of chunks embedded concurrently.
	DefaultWorkers = 4

	// excerptThreshold is the chunk count below which BuildContext adds source excerpts.
	excerptThreshold = 3
	excerptLines     = 15
	excerptChars     = 2000
)

// extensionTypes maps file extensions to the type recorded when the
// uploader did not declare one.
var extensionTypes = map[string]string{
	".csv":      "text/csv",
	".html":     "text/html",
	".htm":      "text/html",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".json":     "application/json",
	".js":       "text/javascript",
	".jsx":      "text/javascript",
	".ts":       "text/typescript",
	".tsx":      "text/typescript",
}

// KnowledgeOptions tunes a KnowledgeService.
type KnowledgeOptions struct {
	// Workers bounds concurrent chunk embedding (default 4).
	Workers int

	// SearchLimit is the result count used when a caller passes none.
	SearchLimit int

	// Threshold is the minimum similarity of a search result. Zero selects
	// domain.DefaultSearchThreshold; use NoThreshold for an explicit zero.
	Threshold float64
}

// NoThreshold asks for a zero similarity threshold.
const NoThreshold = -1.0

// KnowledgeService ingests documents into the file store and vector index
// and answers retrieval queries. It holds no state between calls.
type KnowledgeService struct {
	files    driven.FileStore
	vectors  driven.VectorIndex
	embedder driven.EmbeddingService
	pipeline driven.PostProcessorPipeline
	cache    driven.EmbeddingCache
	opts     KnowledgeOptions
	now      func() time.Time
}

// NewKnowledgeService creates a knowledge service. cache is only read for
// statistics and may be nil.
func NewKnowledgeService(
	files driven.FileStore,
	vectors driven.VectorIndex,
	embedder driven.EmbeddingService,
	pipeline driven.PostProcessorPipeline,
	cache driven.EmbeddingCache,
	opts KnowledgeOptions,
) *KnowledgeService {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = domain.DefaultSearchLimit
	}
	switch {
	case opts.Threshold == 0:
		opts.Threshold = domain.DefaultSearchThreshold
	case opts.Threshold < 0:
		opts.Threshold = 0
	}
	return &KnowledgeService{
		files:    files,
		vectors:  vectors,
		embedder: embedder,
		pipeline: pipeline,
		cache:    cache,
		opts:     opts,
		now:      time.Now,
	}
}

// DetectFileType returns declared when set, otherwise a type derived from
// the file extension, defaulting to text/plain.
func DetectFileType(declared, name string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return "text/plain"
}

func failure(kind domain.ErrorKind, message string) domain.ProcessResult {
	return domain.ProcessResult{Kind: kind, Error: message, Message: message}
}

// ProcessDocument deduplicates, chunks, embeds and stores one file.
func (s *KnowledgeService) ProcessDocument(ctx context.Context, file domain.UploadedFile, force bool) (result domain.ProcessResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("processing %s panicked: %v", file.Name, r)
			result = failure(domain.KindInternal, fmt.Sprintf("Failed to process %s: internal error", file.Name))
		}
	}()

	if strings.TrimSpace(file.Name) == "" {
		return failure(domain.KindInvalidInput, "File name is required")
	}
	if !file.HasContent() {
		return failure(domain.KindNoContent, fmt.Sprintf("No content to process in %s", file.Name))
	}
	content := *file.Content
	hash := domain.ContentHash(content)

	if !force {
		existing, err := s.files.FindByHash(ctx, hash)
		if err != nil {
			logger.Error("duplicate check for %s: %v", file.Name, err)
			return failure(domain.KindOf(err), fmt.Sprintf("Failed to process %s: %v", file.Name, err))
		}
		if existing != nil {
			logger.Info("%s duplicates %s (%s)", file.Name, existing.FileName, existing.ID)
			return domain.ProcessResult{
				Success:      true,
				IsDuplicate:  true,
				DocumentID:   existing.ID,
				ExistingFile: existing,
				Message:      fmt.Sprintf("Document already exists as %s", existing.FileName),
			}
		}
	}

	doc := s.newDocument(file, content, hash)

	chunks, err := s.pipeline.Process(ctx, doc, content)
	if err != nil {
		logger.Error("chunking %s: %v", file.Name, err)
		return failure(domain.KindOf(err), fmt.Sprintf("Failed to process %s: %v", file.Name, err))
	}
	if len(chunks) == 0 {
		return failure(domain.KindNoContent, fmt.Sprintf("No text to index in %s", file.Name))
	}
	attempted := len(chunks)

	embedded, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return failure(domain.KindInternal, fmt.Sprintf("Failed to process %s: %v", file.Name, err))
	}
	if len(embedded) == 0 {
		return failure(domain.KindEmbedding, fmt.Sprintf("Failed to embed any chunk of %s", file.Name))
	}

	doc.ChunkCount = len(embedded)
	stored, err := s.files.Save(ctx, doc, content)
	if err != nil {
		logger.Error("saving %s: %v", file.Name, err)
		return failure(domain.KindStorage, fmt.Sprintf("Failed to save %s: %v", file.Name, err))
	}
	for i := range embedded {
		if embedded[i].Metadata == nil {
			embedded[i].Metadata = &domain.ChunkMetadata{ChunkID: embedded[i].ID}
		}
		embedded[i].Metadata.Document = *stored.Clone()
	}

	added, err := s.vectors.AddChunks(ctx, embedded)
	if err != nil {
		logger.Error("indexing %s: %v", file.Name, err)
		s.rollback(ctx, stored.ID)
		return failure(domain.KindOf(err), fmt.Sprintf("Failed to index %s: %v", file.Name, err))
	}
	if added != stored.ChunkCount {
		if stored, err = s.recount(ctx, stored, content, embedded, added); err != nil {
			logger.Error("updating chunk count of %s: %v", file.Name, err)
			s.rollback(ctx, doc.ID)
			return failure(domain.KindStorage, fmt.Sprintf("Failed to save %s: %v", file.Name, err))
		}
	}
	if err := s.vectors.Save(ctx); err != nil {
		logger.Warn("vector index not persisted, it will be retried by the autosaver: %v", err)
	}

	message := fmt.Sprintf("Processed %s: %d chunks", stored.FileName, added)
	if added < attempted {
		message = fmt.Sprintf("Processed %s with %d/%d chunks", stored.FileName, added, attempted)
	}
	logger.Info("%s", message)

	return domain.ProcessResult{
		Success:    true,
		DocumentID: stored.ID,
		Document:   stored,
		Chunks:     added,
		Attempted:  attempted,
		Message:    message,
	}
}

func (s *KnowledgeService) newDocument(file domain.UploadedFile, content, hash string) *domain.Document {
	fileType := DetectFileType(file.Type, file.Name)
	size := file.Size
	if size <= 0 {
		size = int64(len(content))
	}

	doc := &domain.Document{
		ID:          uuid.New().String(),
		FileName:    file.Name,
		FileType:    fileType,
		FileSize:    size,
		ContentHash: hash,
		CreatedAt:   s.now().UTC(),
		IsCSV:       domain.IsTabular(fileType, file.Name),
	}
	if doc.IsCSV {
		if file.CSVInfo != nil {
			info := *file.CSVInfo
			info.Headers = append([]string(nil), file.CSVInfo.Headers...)
			doc.CSVInfo = &info
		} else {
			doc.CSVInfo = chunker.DescribeTable(content)
		}
	}
	return doc
}

// embedChunks embeds chunks concurrently and returns, in index order, the
// ones that got a vector. Failed chunks are logged and skipped; only a
// cancelled ctx is an error.
func (s *KnowledgeService) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error) {
	vectors := make([][]float32, len(chunks))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			vec, err := s.embedder.Embed(ctx, chunks[i].Text)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("skipping chunk %s: %v", chunks[i].ID, err)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Chunk, 0, len(chunks))
	for i := range chunks {
		if len(vectors[i]) == 0 {
			continue
		}
		chunks[i].Embedding = vectors[i]
		out = append(out, chunks[i])
	}
	return out, nil
}

// recount saves the document with the number of chunks the index accepted
// and rewrites those chunks so their metadata carries the same count.
func (s *KnowledgeService) recount(ctx context.Context, doc *domain.Document, content string, chunks []domain.Chunk, added int) (*domain.Document, error) {
	doc.ChunkCount = added
	stored, err := s.files.Save(ctx, doc, content)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Metadata.Document = *stored.Clone()
	}
	if _, err := s.vectors.AddChunks(ctx, chunks); err != nil {
		return nil, err
	}
	return stored, nil
}

// rollback removes a half-written document so no chunk outlives it.
func (s *KnowledgeService) rollback(ctx context.Context, id string) {
	if _, err := s.files.Delete(ctx, id); err != nil {
		logger.Warn("rollback of %s: %v", id, err)
	}
	if _, err := s.vectors.RemoveDocument(ctx, id); err != nil {
		logger.Warn("rollback of %s chunks: %v", id, err)
	}
}

// ProcessAttachments ingests files in order.
func (s *KnowledgeService) ProcessAttachments(ctx context.Context, files []domain.UploadedFile) []domain.AttachmentResult {
	results := make([]domain.AttachmentResult, 0, len(files))
	for _, file := range files {
		r := s.ProcessDocument(ctx, file, false)
		results = append(results, domain.AttachmentResult{
			FileName:    file.Name,
			Success:     r.Success,
			IsDuplicate: r.IsDuplicate,
			DocumentID:  r.DocumentID,
			Kind:        r.Kind,
			Message:     r.Message,
		})
	}
	return results
}

// SearchRelevantChunks embeds query and returns the best matching chunks.
func (s *KnowledgeService) SearchRelevantChunks(ctx context.Context, query string, limit int) (resp domain.SearchResponse) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("search panicked: %v", r)
			resp = domain.SearchResponse{Results: []domain.SearchHit{}, Kind: domain.KindInternal, Message: "Search failed: internal error"}
		}
	}()

	if strings.TrimSpace(query) == "" {
		return domain.SearchResponse{Results: []domain.SearchHit{}, Kind: domain.KindInvalidInput, Message: "Query is required"}
	}
	if limit <= 0 {
		limit = s.opts.SearchLimit
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("embedding query: %v", err)
		return domain.SearchResponse{Results: []domain.SearchHit{}, Kind: domain.KindEmbedding, Message: "No context available: query could not be embedded"}
	}

	hits, err := s.vectors.SimilaritySearch(ctx, vec, limit, s.opts.Threshold)
	if err != nil {
		logger.Warn("similarity search: %v", err)
		return domain.SearchResponse{Results: []domain.SearchHit{}, Kind: domain.KindOf(err), Message: "No context available: search failed"}
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}

	message := fmt.Sprintf("Found %d relevant chunks", len(hits))
	if len(hits) == 0 {
		message = "No relevant context found"
	}
	return domain.SearchResponse{Success: true, Results: hits, Message: message}
}

// BuildContext assembles the top chunks for query into one text block with
// a de-duplicated source list. With few matches it adds the start of each
// source document.
func (s *KnowledgeService) BuildContext(ctx context.Context, query string, limit int) domain.ContextResult {
	resp := s.SearchRelevantChunks(ctx, query, limit)
	if !resp.Success {
		return domain.ContextResult{Kind: resp.Kind, Message: resp.Message}
	}
	if len(resp.Results) == 0 {
		return domain.ContextResult{Sources: []domain.ContextSource{}, Message: resp.Message}
	}

	var b strings.Builder
	b.WriteString("Relevant information from the knowledge base:\n")

	sources := make([]domain.ContextSource, 0, len(resp.Results))
	seen := make(map[string]int)
	for i, hit := range resp.Results {
		name, id := "unknown", ""
		if hit.Metadata != nil {
			name, id = hit.Metadata.FileName, hit.Metadata.ID
		}
		fmt.Fprintf(&b, "\n[%d] %s (similarity %.2f)\n%s\n", i+1, name, hit.Score, hit.Text)

		if pos, ok := seen[id]; ok {
			if hit.Score > sources[pos].Similarity {
				sources[pos].Similarity = hit.Score
			}
			continue
		}
		seen[id] = len(sources)
		sources = append(sources, domain.ContextSource{ID: id, FileName: name, Similarity: hit.Score})
	}

	if len(resp.Results) < excerptThreshold {
		for _, src := range sources {
			s.writeExcerpt(ctx, &b, src)
		}
	}

	return domain.ContextResult{
		HasContext:  true,
		ContextText: b.String(),
		Sources:     sources,
		Message:     resp.Message,
	}
}

func (s *KnowledgeService) writeExcerpt(ctx context.Context, b *strings.Builder, src domain.ContextSource) {
	if src.ID == "" {
		return
	}
	doc, err := s.files.GetMeta(ctx, src.ID)
	if err != nil {
		return
	}
	content, err := s.files.GetContent(ctx, src.ID)
	if err != nil || content == "" {
		return
	}
	fmt.Fprintf(b, "\nExcerpt from %s:\n%s\n", doc.FileName, Excerpt(content, doc.IsCSV))
}

// Excerpt returns the first 15 lines of tabular content or the first 2000
// characters of anything else.
func Excerpt(content string, tabular bool) string {
	if tabular {
		lines := strings.SplitN(content, "\n", excerptLines+1)
		if len(lines) > excerptLines {
			lines = lines[:excerptLines]
		}
		return strings.TrimRight(strings.Join(lines, "\n"), "\r\n")
	}
	if utf8.RuneCountInString(content) <= excerptChars {
		return content
	}
	return string([]rune(content)[:excerptChars])
}

// GetKnowledgeBase lists every document, oldest first.
func (s *KnowledgeService) GetKnowledgeBase(ctx context.Context) []domain.Document {
	docs, err := s.files.GetAll(ctx)
	if err != nil {
		logger.Error("listing documents: %v", err)
		return []domain.Document{}
	}
	return docs
}

// GetDocument returns a document's metadata.
func (s *KnowledgeService) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return s.files.GetMeta(ctx, id)
}

// GetContent returns a document's raw text.
func (s *KnowledgeService) GetContent(ctx context.Context, id string) (string, error) {
	return s.files.GetContent(ctx, id)
}

// FindDocuments lists documents whose file name contains query.
func (s *KnowledgeService) FindDocuments(ctx context.Context, query string) []domain.Document {
	docs, err := s.files.Search(ctx, query)
	if err != nil {
		logger.Error("searching documents: %v", err)
		return []domain.Document{}
	}
	return docs
}

// DeleteDocument removes the document from the file store, then its chunks
// from the vector index. Chunks are removed even when the document is
// already gone, so a retry after a partial failure cleans up.
func (s *KnowledgeService) DeleteDocument(ctx context.Context, id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	existed, err := s.files.Delete(ctx, id)
	if err != nil {
		logger.Error("deleting document %s: %v", id, err)
		return false
	}

	removed, err := s.vectors.RemoveDocument(ctx, id)
	if err != nil {
		logger.Error("deleting chunks of %s: %v", id, err)
		return false
	}
	if existed {
		logger.Info("deleted document %s and %d chunks", id, removed)
	} else if removed > 0 {
		logger.Warn("removed %d orphaned chunks of unknown document %s", removed, id)
	}
	return existed
}

// Stats summarises the knowledge base.
func (s *KnowledgeService) Stats(ctx context.Context) domain.KnowledgeStats {
	stats := domain.KnowledgeStats{
		Vectors:     s.vectors.Stats(ctx),
		LastUpdated: s.now().UTC(),
	}
	if docs, err := s.files.GetAll(ctx); err == nil {
		stats.DocumentCount = len(docs)
	} else {
		logger.Warn("counting documents: %v", err)
	}
	if s.cache != nil {
		stats.CachedVectors = s.cache.Len()
	}
	return stats
}

// Repair checks the vector index and removes chunks whose document no
// longer exists in the file store.
func (s *KnowledgeService) Repair(ctx context.Context) (domain.RepairReport, error) {
	report, err := s.vectors.CheckAndRepair(ctx)
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, id := range s.vectors.DocumentIDs(ctx) {
		g.Go(func() error {
			_, err := s.files.GetMeta(gctx, id)
			if err == nil {
				return nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("check document %s: %w", id, err)
			}
			removed, err := s.vectors.RemoveDocument(gctx, id)
			if err != nil {
				return fmt.Errorf("remove orphans of %s: %w", id, err)
			}
			logger.Warn("repair: removed %d orphaned chunks of %s", removed, id)
			mu.Lock()
			report.OrphanedChunks += removed
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}
