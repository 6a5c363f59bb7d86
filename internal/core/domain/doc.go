// Package domain defines the core business entities for kbase.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An uploaded file with its metadata
//   - Chunk: A retrievable unit within a document, with its embedding
//   - UploadedFile: The descriptor handed over by the upload layer
//   - ProcessResult, SearchResponse, ContextResult: Result values carrying an ErrorKind
//   - AppSettings: Application configuration
//
// It also holds the two pure functions shared by every layer:
// ContentHash (deduplication key) and CosineSimilarity (search score).
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
