// Package postprocessors turns a document's raw text into chunks.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driven"
	"github.com/nomadai/kbase/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline runs PostProcessors in order over one document.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a pipeline of processors.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Process runs the processors in order. The first one receives no chunks
// and creates them from content; later ones filter or rewrite the chunks.
// ctx is checked between processors.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document, content string) ([]domain.Chunk, error) {
	if doc == nil || doc.ID == "" {
		return nil, fmt.Errorf("%w: document without id", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk
	for _, proc := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		before := len(chunks)
		out, err := proc.Process(ctx, doc, content, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", proc.Name(), err)
		}
		chunks = out
		logger.Debug("%s: %s %d -> %d chunks", doc.ID, proc.Name(), before, len(chunks))
	}
	return chunks, nil
}

// Add appends a processor to the pipeline.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}

// Names returns the processor names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.processors))
	for _, proc := range p.processors {
		names = append(names, proc.Name())
	}
	return names
}
