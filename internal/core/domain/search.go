package domain

import "time"

// Default retrieval parameters.
const (
	DefaultSearchLimit     = 5
	DefaultSearchThreshold = 0.4
)

// SearchHit is a chunk matched by similarity search.
type SearchHit struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata *ChunkMetadata `json:"metadata"`
}

// SearchResponse wraps the hits returned to the prompt-building layer.
type SearchResponse struct {
	Success bool        `json:"success"`
	Results []SearchHit `json:"results"`
	Kind    ErrorKind   `json:"kind,omitempty"`
	Message string      `json:"message"`
}

// VectorStats summarises the vector index.
type VectorStats struct {
	TotalVectors             int     `json:"totalVectors"`
	TotalDocuments           int     `json:"totalDocuments"`
	AverageChunksPerDocument float64 `json:"averageChunksPerDocument"`
}

// KnowledgeStats summarises the whole knowledge base.
type KnowledgeStats struct {
	Vectors       VectorStats `json:"vectorStats"`
	DocumentCount int         `json:"documentCount"`
	CachedVectors int         `json:"cachedVectors"`
	LastUpdated   time.Time   `json:"lastUpdated"`
}

// RepairReport describes what a repair pass changed.
type RepairReport struct {
	// InvalidRecords is the number of records stripped for missing fields.
	InvalidRecords int `json:"invalidRecords"`

	// DuplicateRecords is the number of records dropped for a repeated chunk id.
	DuplicateRecords int `json:"duplicateRecords"`

	// OrphanedChunks is the number of chunks removed because their document is gone.
	OrphanedChunks int `json:"orphanedChunks"`

	// IndexRebuilt is set when the position index had to be rebuilt.
	IndexRebuilt bool `json:"indexRebuilt"`
}

// Changed reports whether the repair modified anything.
func (r RepairReport) Changed() bool {
	return r.InvalidRecords > 0 || r.DuplicateRecords > 0 || r.OrphanedChunks > 0 || r.IndexRebuilt
}

// ContextSource is one document referenced by a context block.
type ContextSource struct {
	ID         string  `json:"id"`
	FileName   string  `json:"fileName"`
	Similarity float64 `json:"similarity"`
}

// ContextResult is the retrieved material assembled for a query.
type ContextResult struct {
	HasContext  bool            `json:"hasContext"`
	ContextText string          `json:"contextText"`
	Sources     []ContextSource `json:"sources"`
	Kind        ErrorKind       `json:"kind,omitempty"`
	Message     string          `json:"message,omitempty"`
}
