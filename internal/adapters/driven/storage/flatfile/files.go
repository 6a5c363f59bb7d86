package flatfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nomadai/kbase/internal/core/domain"
)

// File names inside the data directory.
const (
	vectorStoreFile    = "vector_store.json"
	vectorIndexFile    = "vector_index.json"
	hashIndexFile      = "hash_index.json"
	embeddingCacheFile = "embedding_cache.json"
	metadataDir        = "metadata"
	contentDir         = "content"
)

// writeJSON encodes v and atomically replaces path with it.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", domain.ErrStorage, filepath.Base(path), err)
	}
	return writeFile(path, data)
}

// writeFile atomically replaces path with data.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %w", domain.ErrStorage, filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: commit %s: %w", domain.ErrStorage, filepath.Base(path), err)
	}
	return nil
}

// readFile returns the file contents, or nil if the file does not exist.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrStorage, filepath.Base(path), err)
	}
	return data, nil
}

// removeFile deletes path, ignoring a missing file.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", domain.ErrStorage, filepath.Base(path), err)
	}
	return nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create %s: %w", domain.ErrStorage, dir, err)
	}
	return nil
}

// validID rejects ids that could escape their directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id
}
