// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - FileStore: Document metadata, raw content and the content-hash index
//   - VectorIndex: Chunk records with embeddings and the document position index
//   - EmbeddingService: Produces vectors for text (remote or local)
//   - PostProcessor: Splits a document into chunks
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingCache: Persistent vector cache. Without it every text is embedded again.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or postprocessor package
package driven
