// Package blankfilter drops chunks that carry no visible text.
package blankfilter

import (
	"context"
	"strings"

	"github.com/nomadai/kbase/internal/core/domain"
)

// Processor removes whitespace-only chunks and renumbers the rest so
// chunk ids, indices and totals stay contiguous.
type Processor struct{}

// New creates a blank filter.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "blank_filter"
}

// Process filters chunks produced by an earlier processor.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ string, chunks []domain.Chunk) ([]domain.Chunk, error) {
	kept := chunks[:0:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(chunks) {
		return chunks, nil
	}

	for i := range kept {
		id := domain.ChunkID(doc.ID, i)
		kept[i].ID = id
		if kept[i].Metadata != nil {
			meta := *kept[i].Metadata
			meta.ChunkID = id
			meta.ChunkIndex = i
			meta.ChunkTotal = len(kept)
			kept[i].Metadata = &meta
		}
	}
	return kept, nil
}
