package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driven"
	"github.com/nomadai/kbase/internal/core/ports/driving"
	"github.com/nomadai/kbase/internal/logger"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	keyDataDir          = "storage.data_dir"
	keyBackend          = "storage.backend"
	keySaveInterval     = "persistence.save_interval_secs"
	keyChunkSize        = "chunking.size"
	keyChunkOverlap     = "chunking.overlap"
	keyEmbedStrategy    = "embedding.strategy"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedModel       = "embedding.model"
	keyEmbedTimeout     = "embedding.timeout_secs"
	keyEmbedRate        = "embedding.requests_per_second"
	keyEmbedWorkers     = "embedding.workers"
	keyCacheMaxEntries  = "cache.max_entries"
	keyCacheFlushChance = "cache.flush_probability"
	keySearchLimit      = "search.limit"
	keySearchThreshold  = "search.threshold"
)

// EnvPrefix prefixes environment overrides: embedding.base_url is read
// from KBASE_EMBEDDING_BASE_URL.
const EnvPrefix = "KBASE_"

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
)

var settingKinds = map[string]valueKind{
	keyDataDir:          kindString,
	keyBackend:          kindString,
	keySaveInterval:     kindInt,
	keyChunkSize:        kindInt,
	keyChunkOverlap:     kindInt,
	keyEmbedStrategy:    kindString,
	keyEmbedBaseURL:     kindString,
	keyEmbedModel:       kindString,
	keyEmbedTimeout:     kindInt,
	keyEmbedRate:        kindFloat,
	keyEmbedWorkers:     kindInt,
	keyCacheMaxEntries:  kindInt,
	keyCacheFlushChance: kindFloat,
	keySearchLimit:      kindInt,
	keySearchThreshold:  kindFloat,
}

// EnvKey returns the environment variable that overrides key.
func EnvKey(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// DefaultDataDir returns ~/.kbase/data.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".kbase", "data"), nil
}

// SettingsService manages application settings. Values resolve in order:
// environment override, config file, default.
type SettingsService struct {
	configStore driven.ConfigStore
	lookupEnv   func(string) (string, bool)
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		lookupEnv:   os.LookupEnv,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	dataDir := s.getString(keyDataDir, "")
	if dataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}
		dataDir = dir
	}

	settings := &domain.AppSettings{
		Storage: domain.StorageSettings{
			DataDir:      dataDir,
			Backend:      s.getBackend(defaults.Storage.Backend),
			SaveInterval: s.getSeconds(keySaveInterval, defaults.Storage.SaveInterval),
		},
		Chunking: domain.ChunkingSettings{
			Size:    s.getInt(keyChunkSize, defaults.Chunking.Size),
			Overlap: s.getInt(keyChunkOverlap, defaults.Chunking.Overlap),
		},
		Embedding: domain.EmbeddingSettings{
			Strategy:          s.getStrategy(defaults.Embedding.Strategy),
			BaseURL:           s.getString(keyEmbedBaseURL, defaults.Embedding.BaseURL),
			Model:             s.getString(keyEmbedModel, defaults.Embedding.Model),
			Timeout:           s.getSeconds(keyEmbedTimeout, defaults.Embedding.Timeout),
			RequestsPerSecond: s.getFloat(keyEmbedRate, defaults.Embedding.RequestsPerSecond),
			Workers:           s.getInt(keyEmbedWorkers, defaults.Embedding.Workers),
		},
		Cache: domain.CacheSettings{
			MaxEntries:       s.getInt(keyCacheMaxEntries, defaults.Cache.MaxEntries),
			FlushProbability: s.getFloat(keyCacheFlushChance, defaults.Cache.FlushProbability),
		},
		Search: domain.SearchSettings{
			Limit:     s.getInt(keySearchLimit, defaults.Search.Limit),
			Threshold: s.getFloat(keySearchThreshold, defaults.Search.Threshold),
		},
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("settings in %s: %w", s.configStore.Path(), err)
	}
	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	values := map[string]any{
		keyDataDir:          settings.Storage.DataDir,
		keyBackend:          settings.Storage.Backend.String(),
		keySaveInterval:     int(settings.Storage.SaveInterval / time.Second),
		keyChunkSize:        settings.Chunking.Size,
		keyChunkOverlap:     settings.Chunking.Overlap,
		keyEmbedStrategy:    settings.Embedding.Strategy.String(),
		keyEmbedBaseURL:     settings.Embedding.BaseURL,
		keyEmbedModel:       settings.Embedding.Model,
		keyEmbedTimeout:     int(settings.Embedding.Timeout / time.Second),
		keyEmbedRate:        settings.Embedding.RequestsPerSecond,
		keyEmbedWorkers:     settings.Embedding.Workers,
		keyCacheMaxEntries:  settings.Cache.MaxEntries,
		keyCacheFlushChance: settings.Cache.FlushProbability,
		keySearchLimit:      settings.Search.Limit,
		keySearchThreshold:  settings.Search.Threshold,
	}
	for _, key := range s.Keys() {
		if err := s.configStore.Set(key, values[key]); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return nil
}

// Set parses value for key, checks the result is a valid configuration
// and persists the single key.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKinds[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	value = strings.TrimSpace(value)
	parsed, err := parseValue(kind, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
	}
	switch key {
	case keyBackend:
		if !domain.StorageBackend(value).IsValid() {
			return fmt.Errorf("%w: unknown storage backend %q", domain.ErrInvalidInput, value)
		}
	case keyEmbedStrategy:
		if !domain.EmbeddingStrategy(value).IsValid() {
			return fmt.Errorf("%w: unknown embedding strategy %q", domain.ErrInvalidInput, value)
		}
	}

	previous, existed := s.configStore.Get(key)
	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if _, err := s.Get(); err != nil {
		if existed {
			_ = s.configStore.Set(key, previous)
		} else {
			_ = s.configStore.Set(key, defaultValue(key))
		}
		return err
	}
	return nil
}

func parseValue(kind valueKind, raw string) (any, error) {
	switch kind {
	case kindInt:
		return strconv.Atoi(raw)
	case kindFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

// defaultValue is the value written back when a rejected Set must be undone
// for a key that had no previous value.
func defaultValue(key string) any {
	d := domain.DefaultAppSettings()
	switch key {
	case keyBackend:
		return d.Storage.Backend.String()
	case keySaveInterval:
		return int(d.Storage.SaveInterval / time.Second)
	case keyChunkSize:
		return d.Chunking.Size
	case keyChunkOverlap:
		return d.Chunking.Overlap
	case keyEmbedStrategy:
		return d.Embedding.Strategy.String()
	case keyEmbedTimeout:
		return int(d.Embedding.Timeout / time.Second)
	case keyEmbedRate:
		return d.Embedding.RequestsPerSecond
	case keyEmbedWorkers:
		return d.Embedding.Workers
	case keyCacheMaxEntries:
		return d.Cache.MaxEntries
	case keyCacheFlushChance:
		return d.Cache.FlushProbability
	case keySearchLimit:
		return d.Search.Limit
	case keySearchThreshold:
		return d.Search.Threshold
	default:
		return ""
	}
}

// Keys lists the supported setting keys in sorted order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(settingKinds))
	for k := range settingKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Path returns the configuration file path.
func (s *SettingsService) Path() string {
	return s.configStore.Path()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) env(key string) (string, bool) {
	if s.lookupEnv == nil {
		return "", false
	}
	v, ok := s.lookupEnv(EnvKey(key))
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (s *SettingsService) getString(key, defaultVal string) string {
	if v, ok := s.env(key); ok {
		return v
	}
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if v, ok := s.env(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
		logger.Warn("ignoring %s=%q: %v", EnvKey(key), v, err)
	}
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if v, ok := s.env(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
		logger.Warn("ignoring %s=%q: %v", EnvKey(key), v, err)
	}
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getSeconds(key string, defaultVal time.Duration) time.Duration {
	secs := s.getInt(key, int(defaultVal/time.Second))
	if secs <= 0 {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func (s *SettingsService) getBackend(defaultVal domain.StorageBackend) domain.StorageBackend {
	backend := domain.StorageBackend(s.getString(keyBackend, ""))
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}

func (s *SettingsService) getStrategy(defaultVal domain.EmbeddingStrategy) domain.EmbeddingStrategy {
	strategy := domain.EmbeddingStrategy(s.getString(keyEmbedStrategy, ""))
	if !strategy.IsValid() {
		return defaultVal
	}
	return strategy
}
