package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// EmbeddingStrategy selects how embeddings are produced.
type EmbeddingStrategy string

// Available embedding strategies.
const (
	// EmbeddingStrategyRemote calls the remote service and falls back to the local embedding.
	EmbeddingStrategyRemote EmbeddingStrategy = "remote"

	// EmbeddingStrategyLocal only uses the deterministic local embedding.
	EmbeddingStrategyLocal EmbeddingStrategy = "local"
)

// IsValid returns true if the strategy is recognised.
func (s EmbeddingStrategy) IsValid() bool {
	return s == EmbeddingStrategyRemote || s == EmbeddingStrategyLocal
}

// String returns the string representation.
func (s EmbeddingStrategy) String() string {
	return string(s)
}

// Description returns a human-readable description of the strategy.
func (s EmbeddingStrategy) Description() string {
	switch s {
	case EmbeddingStrategyRemote:
		return "Remote (Ollama-compatible, local fallback)"
	case EmbeddingStrategyLocal:
		return "Local (deterministic, offline)"
	default:
		return unknownDescription
	}
}

// StorageBackend selects where document metadata and content live.
type StorageBackend string

// Available storage backends.
const (
	// StorageBackendFlatFile keeps one JSON and one text file per document.
	StorageBackendFlatFile StorageBackend = "flatfile"

	// StorageBackendSQLite keeps documents in a SQLite database.
	StorageBackendSQLite StorageBackend = "sqlite"

	// StorageBackendMemory keeps documents in memory only.
	StorageBackendMemory StorageBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	return b == StorageBackendFlatFile || b == StorageBackendSQLite || b == StorageBackendMemory
}

// String returns the string representation.
func (b StorageBackend) String() string {
	return string(b)
}

// StorageSettings holds persistence configuration.
type StorageSettings struct {
	// DataDir is the directory holding every persisted artefact.
	DataDir string

	// Backend selects the document store implementation.
	Backend StorageBackend

	// SaveInterval is the period of the background flush.
	SaveInterval time.Duration
}

// ChunkingSettings holds chunker configuration.
type ChunkingSettings struct {
	// Size is the number of characters per chunk.
	Size int

	// Overlap is the number of characters shared by consecutive chunks.
	Overlap int
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Strategy selects remote-with-fallback or local-only embedding.
	Strategy EmbeddingStrategy

	// BaseURL is the Ollama-compatible API endpoint.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// Timeout bounds a single remote call.
	Timeout time.Duration

	// RequestsPerSecond limits the remote call rate. Zero disables limiting.
	RequestsPerSecond float64

	// Workers is the number of chunks embedded concurrently.
	Workers int
}

// CacheSettings holds embedding cache configuration.
type CacheSettings struct {
	// MaxEntries bounds the number of cached vectors.
	MaxEntries int

	// FlushProbability is the chance a cache write triggers a flush.
	FlushProbability float64
}

// SearchSettings holds retrieval defaults.
type SearchSettings struct {
	// Limit is the default number of results.
	Limit int

	// Threshold is the minimum similarity a result must reach.
	Threshold float64
}

// AppSettings is the complete application configuration.
type AppSettings struct {
	Storage   StorageSettings
	Chunking  ChunkingSettings
	Embedding EmbeddingSettings
	Cache     CacheSettings
	Search    SearchSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// DataDir is left empty and resolved against the user's home directory.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Storage: StorageSettings{
			Backend:      StorageBackendFlatFile,
			SaveInterval: 5 * time.Minute,
		},
		Chunking: ChunkingSettings{
			Size:    1000,
			Overlap: 200,
		},
		Embedding: EmbeddingSettings{
			Strategy:          EmbeddingStrategyRemote,
			BaseURL:           "http://localhost:11434",
			Model:             "all-minilm",
			Timeout:           5 * time.Second,
			RequestsPerSecond: 0,
			Workers:           4,
		},
		Cache: CacheSettings{
			MaxEntries:       10000,
			FlushProbability: 0.1,
		},
		Search: SearchSettings{
			Limit:     DefaultSearchLimit,
			Threshold: DefaultSearchThreshold,
		},
	}
}

// Validate checks that the settings are usable.
func (s AppSettings) Validate() error {
	if !s.Storage.Backend.IsValid() {
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidInput, s.Storage.Backend)
	}
	if !s.Embedding.Strategy.IsValid() {
		return fmt.Errorf("%w: unknown embedding strategy %q", ErrInvalidInput, s.Embedding.Strategy)
	}
	if s.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidInput)
	}
	if s.Chunking.Overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative", ErrInvalidInput)
	}
	if s.Search.Threshold < 0 || s.Search.Threshold > 1 {
		return fmt.Errorf("%w: search threshold must be within [0,1]", ErrInvalidInput)
	}
	if s.Cache.FlushProbability < 0 || s.Cache.FlushProbability > 1 {
		return fmt.Errorf("%w: cache flush probability must be within [0,1]", ErrInvalidInput)
	}
	return nil
}
