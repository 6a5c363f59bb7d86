// Package chunker splits document text into overlapping chunks.
// Plain text is windowed over characters; CSV is windowed over rows
// with the header repeated in every chunk.
package chunker

import (
	"context"
	"unicode/utf8"

	"github.com/nomadai/kbase/internal/core/domain"
)

// Processor splits document content into chunks.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Process splits content into chunks owned by doc.
// Input chunks are ignored; this processor creates new chunks from the content.
// Embeddings are left empty.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, content string, _ []domain.Chunk) ([]domain.Chunk, error) {
	if content == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	texts := Split(content, Options{
		ChunkSize: p.chunkSize,
		Overlap:   p.overlap,
		Tabular:   doc.IsCSV || domain.IsTabular(doc.FileType, doc.FileName),
	})

	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		id := domain.ChunkID(doc.ID, i)
		meta := &domain.ChunkMetadata{
			ChunkID:    id,
			ChunkIndex: i,
			ChunkSize:  utf8.RuneCountInString(text),
			ChunkTotal: len(texts),
		}
		if owner := doc.Clone(); owner != nil {
			meta.Document = *owner
		}
		chunks = append(chunks, domain.Chunk{
			ID:       id,
			Text:     text,
			Metadata: meta,
		})
	}

	return chunks, nil
}
