package domain

import (
	"fmt"
	"strings"
	"time"
)

// Document is one uploaded file in the knowledge base.
// It is created once at ingestion and is immutable afterwards.
type Document struct {
	// ID is the unique identifier generated at ingestion.
	ID string `json:"id"`

	// FileName is the name supplied by the uploader.
	FileName string `json:"fileName"`

	// FileType is the declared or detected MIME type.
	FileType string `json:"fileType"`

	// FileSize is the size in bytes as supplied by the uploader.
	FileSize int64 `json:"fileSize"`

	// ContentHash is the fingerprint of the raw text and the deduplication key.
	ContentHash string `json:"contentHash"`

	// CreatedAt is the ingestion timestamp.
	CreatedAt time.Time `json:"createdAt"`

	// ChunkCount is the number of chunks persisted for this document.
	ChunkCount int `json:"chunkCount"`

	// IsCSV marks tabular documents.
	IsCSV bool `json:"isCSV,omitempty"`

	// CSVInfo describes the table when the source is tabular.
	CSVInfo *CSVInfo `json:"csvInfo,omitempty"`
}

// CSVInfo summarises a tabular document.
type CSVInfo struct {
	RowCount    int      `json:"rowCount"`
	ColumnCount int      `json:"columnCount"`
	Headers     []string `json:"headers"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	if d.CSVInfo != nil {
		info := *d.CSVInfo
		info.Headers = append([]string(nil), d.CSVInfo.Headers...)
		out.CSVInfo = &info
	}
	return &out
}

// IsTabular reports whether the type or name marks the document as CSV.
func IsTabular(fileType, fileName string) bool {
	return strings.HasPrefix(strings.ToLower(fileType), "text/csv") ||
		strings.HasSuffix(strings.ToLower(fileName), ".csv")
}

// Chunk is one retrievable unit of a document.
type Chunk struct {
	// ID is derived from the owning document id and the chunk index.
	ID string `json:"id"`

	// Text is the raw substring (or row group) of the document.
	Text string `json:"text"`

	// Embedding is the vector representation of Text.
	Embedding []float32 `json:"embedding"`

	// Metadata copies the owning document plus chunk positioning.
	Metadata *ChunkMetadata `json:"metadata"`
}

// ChunkMetadata is a copy of the owning Document plus chunk positioning.
// The embedded document serialises inline, so "id" is the owning document id.
type ChunkMetadata struct {
	Document

	ChunkID    string `json:"chunkId"`
	ChunkIndex int    `json:"chunkIndex"`
	ChunkSize  int    `json:"chunkSize"`
	ChunkTotal int    `json:"chunkTotal"`
}

// ChunkID returns the deterministic id of chunk index within a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, index)
}

// DocumentID returns the id of the owning document, or "" if metadata is missing.
func (c *Chunk) DocumentID() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata.ID
}

// Validate checks the fields every stored chunk must carry.
func (c *Chunk) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: chunk is nil", ErrInvalidInput)
	case c.ID == "":
		return fmt.Errorf("%w: chunk id is empty", ErrInvalidInput)
	case c.Text == "":
		return fmt.Errorf("%w: chunk %s has no text", ErrInvalidInput, c.ID)
	case len(c.Embedding) == 0:
		return fmt.Errorf("%w: chunk %s has no embedding", ErrInvalidInput, c.ID)
	case c.Metadata == nil || c.Metadata.ID == "":
		return fmt.Errorf("%w: chunk %s has no owning document", ErrInvalidInput, c.ID)
	}
	return nil
}

// Clone returns a deep copy of the chunk.
func (c *Chunk) Clone() Chunk {
	out := Chunk{
		ID:        c.ID,
		Text:      c.Text,
		Embedding: append([]float32(nil), c.Embedding...),
	}
	if c.Metadata != nil {
		meta := *c.Metadata
		if doc := c.Metadata.Document.Clone(); doc != nil {
			meta.Document = *doc
		}
		out.Metadata = &meta
	}
	return out
}
