package flatfile

import (
	"encoding/json"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nomadai/kbase/internal/core/ports/driven"
	"github.com/nomadai/kbase/internal/logger"
)

// Ensure EmbeddingCache implements the interface.
var _ driven.EmbeddingCache = (*EmbeddingCache)(nil)

// DefaultCacheEntries bounds the cache when no size is configured.
const DefaultCacheEntries = 10000

// EmbeddingCache is a bounded LRU of vectors persisted as a JSON object.
// Each Put flushes with probability flushProbability; the autosaver and
// Close flush whatever is left.
type EmbeddingCache struct {
	mu               sync.Mutex
	path             string
	entries          *lru.Cache[string, []float32]
	dirty            bool
	flushProbability float64
	random           func() float64
}

// NewEmbeddingCache loads dataDir/embedding_cache.json. A missing or
// unreadable file starts an empty cache.
func NewEmbeddingCache(dataDir string, maxEntries int, flushProbability float64) (*EmbeddingCache, error) {
	if err := ensureDir(dataDir); err != nil {
		return nil, err
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	entries, err := lru.New[string, []float32](maxEntries)
	if err != nil {
		return nil, err
	}

	c := &EmbeddingCache{
		path:             filepath.Join(dataDir, embeddingCacheFile),
		entries:          entries,
		flushProbability: flushProbability,
		random:           rand.Float64,
	}
	c.load()
	return c, nil
}

func (c *EmbeddingCache) load() {
	data, err := readFile(c.path)
	if err != nil || data == nil {
		if err != nil {
			logger.Warn("embedding cache unreadable, starting empty: %v", err)
		}
		return
	}

	var stored map[string][]float32
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.Warn("embedding cache is not a JSON object, starting empty: %v", err)
		return
	}

	keys := make([]string, 0, len(stored))
	for k := range stored {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(stored[k]) > 0 {
			c.entries.Add(k, stored[k])
		}
	}
	logger.Debug("embedding cache loaded %d vectors", c.entries.Len())
}

// Get returns a copy of the cached vector for key.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

// Put stores a copy of vector and sometimes flushes.
func (c *EmbeddingCache) Put(key string, vector []float32) {
	if key == "" || len(vector) == 0 {
		return
	}
	c.entries.Add(key, append([]float32(nil), vector...))

	c.mu.Lock()
	c.dirty = true
	flush := c.random() < c.flushProbability
	c.mu.Unlock()

	if flush {
		if err := c.Flush(); err != nil {
			logger.Warn("embedding cache flush failed: %v", err)
		}
	}
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	return c.entries.Len()
}

// Flush writes the cache if it changed since the last write.
func (c *EmbeddingCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	snapshot := make(map[string][]float32, c.entries.Len())
	for _, k := range c.entries.Keys() {
		if v, ok := c.entries.Peek(k); ok {
			snapshot[k] = v
		}
	}
	if err := writeJSON(c.path, snapshot); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Close flushes pending entries.
func (c *EmbeddingCache) Close() error {
	return c.Flush()
}
