package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoContent indicates an uploaded file carries no text to process.
	ErrNoContent = errors.New("no content to process")

	// ErrStorage indicates a persistence failure.
	ErrStorage = errors.New("storage failure")

	// ErrEmbeddingUnavailable indicates the remote embedding service could not be used.
	// Callers normally fall back to the local embedding.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrMalformedResponse indicates the remote embedding service answered with an unexpected shape.
	ErrMalformedResponse = errors.New("malformed embedding response")

	// ErrClosed indicates a store has been closed.
	ErrClosed = errors.New("store closed")
)

// ErrorKind classifies a failure reported across a public boundary.
type ErrorKind string

// Error kinds carried by result values.
const (
	// KindNone marks a successful result.
	KindNone ErrorKind = ""

	// KindInvalidInput is a missing name, invalid query or malformed file.
	KindInvalidInput ErrorKind = "invalid_input"

	// KindNoContent is a file without text content.
	KindNoContent ErrorKind = "no_content"

	// KindStorage is a failed disk or database write.
	KindStorage ErrorKind = "storage"

	// KindEmbedding is an embedding failure that could not be recovered.
	KindEmbedding ErrorKind = "embedding"

	// KindNotFound is an unknown document.
	KindNotFound ErrorKind = "not_found"

	// KindInternal is any other failure, including recovered panics.
	KindInternal ErrorKind = "internal"
)

// KindOf maps an error onto its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrNoContent):
		return KindNoContent
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrEmbeddingUnavailable), errors.Is(err, ErrMalformedResponse):
		return KindEmbedding
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
