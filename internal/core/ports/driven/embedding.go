package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Implementations include the Ollama-compatible remote client and the
// deterministic local embedder. Vector sizes of different implementations
// may differ; similarity is computed over the shorter prefix.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size, or 0 when it is only
	// known after the first response.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// EmbeddingCache stores vectors keyed by the hash of the normalised text.
type EmbeddingCache interface {
	// Get returns the cached vector for key.
	Get(key string) ([]float32, bool)

	// Put stores a vector. Implementations may flush to disk opportunistically.
	Put(key string, vector []float32)

	// Len returns the number of cached vectors.
	Len() int

	// Flush persists the cache if it changed since the last flush.
	Flush() error

	// Close flushes and releases resources.
	Close() error
}
