package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nomadai/kbase/internal/adapters/driven/ai"
	"github.com/nomadai/kbase/internal/adapters/driven/config/file"
	"github.com/nomadai/kbase/internal/adapters/driven/storage/flatfile"
	"github.com/nomadai/kbase/internal/adapters/driven/storage/memory"
	"github.com/nomadai/kbase/internal/adapters/driven/storage/sqlite"
	"github.com/nomadai/kbase/internal/adapters/driving/cli"
	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driven"
	"github.com/nomadai/kbase/internal/core/ports/driving"
	"github.com/nomadai/kbase/internal/core/services"
	"github.com/nomadai/kbase/internal/logger"
	"github.com/nomadai/kbase/internal/postprocessors"
)

func openSettings(configDir string) (driving.SettingsService, error) {
	store, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	return services.NewSettingsService(store), nil
}

func checkEmbedding(ctx context.Context, settings *domain.EmbeddingSettings) error {
	return ai.ValidateEmbeddingConfig(ctx, settings)
}

// closer releases resources in reverse order of acquisition.
type closer []func() error

func (c *closer) add(fn func() error) { *c = append(*c, fn) }

func (c closer) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

// openFileStore picks the document store for the configured backend.
// The memory backend also keeps its vectors in a temporary directory.
func openFileStore(settings *domain.AppSettings, c *closer) (driven.FileStore, string, error) {
	dataDir := settings.Storage.DataDir
	switch settings.Storage.Backend {
	case domain.StorageBackendSQLite:
		store, err := sqlite.NewStore(dataDir)
		if err != nil {
			return nil, "", err
		}
		c.add(store.Close)
		return store, dataDir, nil

	case domain.StorageBackendMemory:
		vectorDir, err := os.MkdirTemp("", "kbase-vectors-")
		if err != nil {
			return nil, "", fmt.Errorf("%w: creating vector directory: %w", domain.ErrStorage, err)
		}
		c.add(func() error { return os.RemoveAll(vectorDir) })
		store := memory.NewFileStore()
		c.add(store.Close)
		return store, vectorDir, nil

	default:
		store, err := flatfile.NewFileStore(dataDir)
		if err != nil {
			return nil, "", err
		}
		c.add(store.Close)
		return store, dataDir, nil
	}
}

// openRuntime opens every store, repairs the vector index and starts the autosaver.
func openRuntime(ctx context.Context, settings *domain.AppSettings) (rt *cli.Runtime, err error) {
	var c closer
	defer func() {
		if err != nil {
			if closeErr := c.close(); closeErr != nil {
				logger.Warn("releasing partially opened stores: %v", closeErr)
			}
		}
	}()

	logger.Section("knowledge base")
	logger.Debug("opening %s (%s)", settings.Storage.DataDir, settings.Storage.Backend)
	if err := os.MkdirAll(settings.Storage.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %w", domain.ErrStorage, err)
	}

	files, vectorDir, err := openFileStore(settings, &c)
	if err != nil {
		return nil, err
	}

	vectors, err := flatfile.NewVectorIndex(vectorDir)
	if err != nil {
		return nil, err
	}
	c.add(vectors.Close)

	cache, err := flatfile.NewEmbeddingCache(settings.Storage.DataDir, settings.Cache.MaxEntries, settings.Cache.FlushProbability)
	if err != nil {
		return nil, err
	}
	c.add(cache.Close)

	embedding, err := ai.CreateEmbeddingServices(ctx, &settings.Embedding)
	if err != nil {
		return nil, err
	}
	c.add(embedding.Close)
	for _, w := range embedding.Warnings {
		logger.Warn("%s", w)
	}

	provider := services.NewEmbeddingProvider(services.EmbeddingProviderConfig{
		Strategy: settings.Embedding.Strategy,
		Remote:   embedding.Remote,
		Local:    embedding.Local,
		Cache:    cache,
	})

	pipeline, err := postprocessors.NewDefaultPipeline(settings.Chunking)
	if err != nil {
		return nil, err
	}

	threshold := settings.Search.Threshold
	if threshold == 0 {
		threshold = services.NoThreshold
	}
	knowledge := services.NewKnowledgeService(files, vectors, provider, pipeline, cache, services.KnowledgeOptions{
		Workers:     settings.Embedding.Workers,
		SearchLimit: settings.Search.Limit,
		Threshold:   threshold,
	})

	report, err := knowledge.Repair(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking vector index: %w", err)
	}
	if report.Changed() {
		logger.Info("repaired vector index: %d invalid, %d duplicate, %d orphaned chunks",
			report.InvalidRecords, report.DuplicateRecords, report.OrphanedChunks)
	}

	saver := services.NewAutosaver(settings.Storage.SaveInterval)
	saver.Add("vector index", vectors.Save)
	saver.Add("embedding cache", func(context.Context) error { return cache.Flush() })
	saver.Start(ctx)

	return &cli.Runtime{
		Knowledge: knowledge,
		Close: func(ctx context.Context) error {
			return errors.Join(saver.Stop(ctx), c.close())
		},
	}, nil
}
