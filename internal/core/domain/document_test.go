package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	return Document{
		ID:          "doc-123",
		FileName:    "notes.csv",
		FileType:    "text/csv",
		FileSize:    42,
		ContentHash: ContentHash("a,b\n1,2"),
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ChunkCount:  1,
		IsCSV:       true,
		CSVInfo:     &CSVInfo{RowCount: 1, ColumnCount: 2, Headers: []string{"a", "b"}},
	}
}

func TestDocument_Clone(t *testing.T) {
	doc := sampleDocument()
	clone := doc.Clone()

	require.NotNil(t, clone)
	assert.Equal(t, doc, *clone)

	clone.CSVInfo.Headers[0] = "changed"
	clone.FileName = "other.csv"
	assert.Equal(t, "a", doc.CSVInfo.Headers[0])
	assert.Equal(t, "notes.csv", doc.FileName)

	var nilDoc *Document
	assert.Nil(t, nilDoc.Clone())
}

func TestIsTabular(t *testing.T) {
	tests := []struct {
		fileType string
		fileName string
		want     bool
	}{
		{"text/csv", "data", true},
		{"text/csv; charset=utf-8", "data.txt", true},
		{"text/plain", "data.CSV", true},
		{"", "report.csv", true},
		{"text/plain", "report.txt", false},
		{"application/json", "csv.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.fileType+"/"+tt.fileName, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTabular(tt.fileType, tt.fileName))
		})
	}
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc-1-chunk-0", ChunkID("doc-1", 0))
	assert.Equal(t, "abc-chunk-12", ChunkID("abc", 12))
}

func TestChunk_Validate(t *testing.T) {
	valid := func() *Chunk {
		return &Chunk{
			ID:        "doc-1-chunk-0",
			Text:      "hello",
			Embedding: []float32{1, 0},
			Metadata:  &ChunkMetadata{Document: Document{ID: "doc-1"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Chunk)
		ok     bool
	}{
		{"valid", func(*Chunk) {}, true},
		{"missing id", func(c *Chunk) { c.ID = "" }, false},
		{"missing text", func(c *Chunk) { c.Text = "" }, false},
		{"missing embedding", func(c *Chunk) { c.Embedding = nil }, false},
		{"missing metadata", func(c *Chunk) { c.Metadata = nil }, false},
		{"missing document id", func(c *Chunk) { c.Metadata.ID = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	var nilChunk *Chunk
	assert.ErrorIs(t, nilChunk.Validate(), ErrInvalidInput)
}

func TestChunk_DocumentID(t *testing.T) {
	c := &Chunk{Metadata: &ChunkMetadata{Document: Document{ID: "doc-9"}}}
	assert.Equal(t, "doc-9", c.DocumentID())
	assert.Empty(t, (&Chunk{}).DocumentID())

	var nilChunk *Chunk
	assert.Empty(t, nilChunk.DocumentID())
}

func TestChunk_Clone(t *testing.T) {
	doc := sampleDocument()
	c := Chunk{
		ID:        ChunkID(doc.ID, 0),
		Text:      "a,b\n1,2",
		Embedding: []float32{0.5, 0.5},
		Metadata:  &ChunkMetadata{Document: doc, ChunkID: ChunkID(doc.ID, 0), ChunkTotal: 1},
	}

	clone := c.Clone()
	clone.Embedding[0] = 9
	clone.Metadata.CSVInfo.Headers[0] = "z"
	clone.Metadata.ChunkIndex = 4

	assert.Equal(t, float32(0.5), c.Embedding[0])
	assert.Equal(t, "a", c.Metadata.CSVInfo.Headers[0])
	assert.Equal(t, 0, c.Metadata.ChunkIndex)
}

func TestChunkMetadata_JSONIsFlat(t *testing.T) {
	meta := ChunkMetadata{
		Document:   Document{ID: "doc-1", FileName: "a.txt"},
		ChunkID:    "doc-1-chunk-2",
		ChunkIndex: 2,
		ChunkSize:  10,
		ChunkTotal: 3,
	}

	data, err := json.Marshal(meta)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "doc-1", raw["id"])
	assert.Equal(t, "a.txt", raw["fileName"])
	assert.Equal(t, "doc-1-chunk-2", raw["chunkId"])
	assert.EqualValues(t, 3, raw["chunkTotal"])
	assert.NotContains(t, raw, "Document")
}
