package mcp

import (
	"github.com/nomadai/kbase/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Knowledge ingests documents and answers retrieval queries.
	Knowledge driving.KnowledgeService

	// DefaultLimit is used when a tool call passes no limit.
	DefaultLimit int
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Knowledge == nil {
		return ErrMissingKnowledgeService
	}
	return nil
}
