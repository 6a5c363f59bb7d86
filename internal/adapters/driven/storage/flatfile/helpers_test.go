package flatfile

import (
	"encoding/json"

	"github.com/nomadai/kbase/internal/core/domain"
)

func testChunk(docID string, i int, vec ...float32) domain.Chunk {
	id := domain.ChunkID(docID, i)
	if len(vec) == 0 {
		vec = []float32{1, float32(i)}
	}
	return domain.Chunk{
		ID:        id,
		Text:      "text of " + id,
		Embedding: vec,
		Metadata: &domain.ChunkMetadata{
			Document:   domain.Document{ID: docID, FileName: docID + ".txt"},
			ChunkID:    id,
			ChunkIndex: i,
		},
	}
}

func testChunks(docID string, n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = testChunk(docID, i)
	}
	return out
}

func jsonMarshal(v any) ([]byte, error) { return json.Marshal(v) }

func jsonUnmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
