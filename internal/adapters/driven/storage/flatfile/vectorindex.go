package flatfile

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driven"
	"github.com/nomadai/kbase/internal/logger"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex keeps chunk records in memory in insertion order, with a
// document id -> positions index, and persists both to two JSON files.
//
// Adds only mark the index dirty; Save, RemoveDocument and repairs write
// to disk. One RWMutex serialises every mutation, so a rebuild can never
// interleave with an append.
type VectorIndex struct {
	mu        sync.RWMutex
	storePath string
	indexPath string
	records   []domain.Chunk
	positions map[string][]int
	byID      map[string]int
	dirty     bool
	closed    bool

	// dropped counts records discarded while loading, reported by the next repair.
	dropped int
	// stale is set when the files on disk did not load cleanly.
	stale bool
}

// NewVectorIndex loads the index from dataDir, creating the directory if needed.
// Missing or corrupt files load as empty; malformed records are dropped.
func NewVectorIndex(dataDir string) (*VectorIndex, error) {
	if err := ensureDir(dataDir); err != nil {
		return nil, err
	}

	v := &VectorIndex{
		storePath: filepath.Join(dataDir, vectorStoreFile),
		indexPath: filepath.Join(dataDir, vectorIndexFile),
	}
	if err := v.load(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VectorIndex) load() error {
	data, err := readFile(v.storePath)
	if err != nil {
		return err
	}

	v.records = nil
	if data != nil {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			logger.Warn("vector store %s is not a JSON array, starting empty: %v", v.storePath, err)
			v.stale = true
		}
		for i, msg := range raw {
			var c domain.Chunk
			if err := json.Unmarshal(msg, &c); err != nil {
				logger.Warn("dropping unreadable vector record %d: %v", i, err)
				v.dropped++
				continue
			}
			v.records = append(v.records, c)
		}
	}

	v.rebuildLocked()

	stored, err := v.loadPositions()
	if err != nil {
		return err
	}
	if !samePositions(stored, v.positions) {
		logger.Info("vector index on disk does not match records, rebuilt")
		v.stale = true
	}
	return nil
}

func (v *VectorIndex) loadPositions() (map[string][]int, error) {
	data, err := readFile(v.indexPath)
	if err != nil || data == nil {
		return nil, err
	}
	var stored map[string][]int
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.Warn("vector index %s is not a JSON object, rebuilding: %v", v.indexPath, err)
		return nil, nil
	}
	return stored, nil
}

// rebuildLocked recomputes positions and the id lookup from records.
func (v *VectorIndex) rebuildLocked() {
	v.positions = make(map[string][]int)
	v.byID = make(map[string]int, len(v.records))
	for i := range v.records {
		c := &v.records[i]
		if _, seen := v.byID[c.ID]; !seen {
			v.byID[c.ID] = i
		}
		if doc := c.DocumentID(); doc != "" {
			v.positions[doc] = append(v.positions[doc], i)
		}
	}
}

func samePositions(a, b map[string][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, pa := range a {
		pb, ok := b[k]
		if !ok || !slices.Equal(pa, pb) {
			return false
		}
	}
	return true
}

// AddChunk validates and stores a chunk. A record with the same id is
// replaced in place.
func (v *VectorIndex) AddChunk(_ context.Context, chunk domain.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return domain.ErrClosed
	}
	v.addLocked(chunk.Clone())
	return nil
}

func (v *VectorIndex) addLocked(c domain.Chunk) {
	v.dirty = true
	if pos, ok := v.byID[c.ID]; ok {
		prevOwner := v.records[pos].DocumentID()
		v.records[pos] = c
		if prevOwner != c.DocumentID() {
			v.rebuildLocked()
		}
		return
	}

	pos := len(v.records)
	v.records = append(v.records, c)
	v.byID[c.ID] = pos
	doc := c.DocumentID()
	v.positions[doc] = append(v.positions[doc], pos)
}

// AddChunks stores a batch of chunks and returns how many were stored.
// Invalid chunks are skipped and logged.
func (v *VectorIndex) AddChunks(_ context.Context, chunks []domain.Chunk) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, domain.ErrClosed
	}

	added := 0
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			logger.Warn("skipping chunk: %v", err)
			continue
		}
		v.addLocked(chunks[i].Clone())
		added++
	}
	return added, nil
}

// GetDocumentChunks returns copies of a document's chunks in insertion order.
func (v *VectorIndex) GetDocumentChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	positions := v.positions[documentID]
	out := make([]domain.Chunk, 0, len(positions))
	for _, pos := range positions {
		out = append(out, v.records[pos].Clone())
	}
	return out, nil
}

// RemoveDocument removes every record owned by documentID, rebuilds the
// position index from scratch and persists. Unknown ids are a no-op.
func (v *VectorIndex) RemoveDocument(_ context.Context, documentID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, domain.ErrClosed
	}

	kept := v.records[:0:0]
	for _, c := range v.records {
		if c.DocumentID() != documentID {
			kept = append(kept, c)
		}
	}
	removed := len(v.records) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	v.records = kept
	v.rebuildLocked()
	v.dirty = true
	return removed, v.persistLocked()
}

// SimilaritySearch scores every record against query and returns up to
// limit hits at or above threshold, best first. Ties keep record order.
// A non-positive limit means domain.DefaultSearchLimit.
func (v *VectorIndex) SimilaritySearch(_ context.Context, query []float32, limit int, threshold float64) ([]domain.SearchHit, error) {
	if len(query) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = domain.DefaultSearchLimit
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	type scored struct {
		pos   int
		score float64
	}
	matches := make([]scored, 0, len(v.records))
	for i := range v.records {
		score := domain.CosineSimilarity(query, v.records[i].Embedding)
		if score >= threshold {
			matches = append(matches, scored{pos: i, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	hits := make([]domain.SearchHit, 0, len(matches))
	for _, m := range matches {
		c := v.records[m.pos].Clone()
		hits = append(hits, domain.SearchHit{
			ID:       c.ID,
			Text:     c.Text,
			Score:    m.score,
			Metadata: c.Metadata,
		})
	}
	return hits, nil
}

// Stats summarises the index.
func (v *VectorIndex) Stats(_ context.Context) domain.VectorStats {
	v.mu.RLock()
	defer v.mu.RUnlock()

	stats := domain.VectorStats{
		TotalVectors:   len(v.records),
		TotalDocuments: len(v.positions),
	}
	if stats.TotalDocuments > 0 {
		stats.AverageChunksPerDocument = float64(stats.TotalVectors) / float64(stats.TotalDocuments)
	}
	return stats
}

// DocumentIDs returns the sorted ids of documents owning at least one chunk.
func (v *VectorIndex) DocumentIDs(_ context.Context) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ids := make([]string, 0, len(v.positions))
	for id := range v.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CheckAndRepair strips records missing required fields, drops repeated
// chunk ids (the first occurrence wins) and rebuilds the position index.
// It persists only when something changed, so it is a no-op on a healthy index.
func (v *VectorIndex) CheckAndRepair(_ context.Context) (domain.RepairReport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return domain.RepairReport{}, domain.ErrClosed
	}

	report := domain.RepairReport{InvalidRecords: v.dropped}
	v.dropped = 0

	seen := make(map[string]struct{}, len(v.records))
	kept := make([]domain.Chunk, 0, len(v.records))
	for i := range v.records {
		c := v.records[i]
		if err := c.Validate(); err != nil {
			logger.Warn("repair: dropping record %d: %v", i, err)
			report.InvalidRecords++
			continue
		}
		if _, dup := seen[c.ID]; dup {
			logger.Warn("repair: dropping duplicate record %s", c.ID)
			report.DuplicateRecords++
			continue
		}
		seen[c.ID] = struct{}{}
		kept = append(kept, c)
	}

	before := v.positions
	v.records = kept
	v.rebuildLocked()
	report.IndexRebuilt = v.stale || !samePositions(before, v.positions)
	v.stale = false

	if !report.Changed() {
		return report, nil
	}
	logger.Info("repair: %d invalid, %d duplicate, index rebuilt=%t",
		report.InvalidRecords, report.DuplicateRecords, report.IndexRebuilt)
	if err := v.persistLocked(); err != nil {
		return report, fmt.Errorf("persist repaired index: %w", err)
	}
	return report, nil
}

// Save writes both files if anything changed since the last write.
func (v *VectorIndex) Save(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.dirty {
		return nil
	}
	return v.persistLocked()
}

// Close flushes pending changes. Further mutations return domain.ErrClosed.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	if !v.dirty {
		return nil
	}
	return v.persistLocked()
}

func (v *VectorIndex) persistLocked() error {
	records := v.records
	if records == nil {
		records = []domain.Chunk{}
	}
	if err := writeJSON(v.storePath, records); err != nil {
		return err
	}
	if err := writeJSON(v.indexPath, v.positions); err != nil {
		return err
	}
	v.dirty = false
	return nil
}
