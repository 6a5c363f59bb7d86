package services

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driven"
	"github.com/nomadai/kbase/internal/logger"
)

// Ensure EmbeddingProvider implements the interface.
var _ driven.EmbeddingService = (*EmbeddingProvider)(nil)

const (
	// MaxRemoteTextLength is the longest normalised text, in characters,
	// sent to the remote service. Longer texts use the local embedding.
	MaxRemoteTextLength = 10000

	// DefaultRemoteCooldown is how long the remote service is skipped after a failure.
	DefaultRemoteCooldown = 30 * time.Second
)

// EmbeddingProviderConfig wires an EmbeddingProvider.
type EmbeddingProviderConfig struct {
	// Strategy selects remote-with-fallback or local-only.
	Strategy domain.EmbeddingStrategy

	// Remote is the remote service. Nil behaves like the local strategy.
	Remote driven.EmbeddingService

	// Local is the deterministic fallback. Required.
	Local driven.EmbeddingService

	// Cache stores vectors by normalised-text hash. Optional.
	Cache driven.EmbeddingCache

	// Cooldown overrides DefaultRemoteCooldown. Negative disables it.
	Cooldown time.Duration
}

// EmbeddingProvider turns text into vectors: cache first, then the remote
// service, then the local embedding. Embed only fails when ctx is done.
type EmbeddingProvider struct {
	strategy domain.EmbeddingStrategy
	remote   driven.EmbeddingService
	local    driven.EmbeddingService
	cache    driven.EmbeddingCache
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	downUntil time.Time
}

// NewEmbeddingProvider creates a provider from cfg.
func NewEmbeddingProvider(cfg EmbeddingProviderConfig) *EmbeddingProvider {
	if !cfg.Strategy.IsValid() {
		cfg.Strategy = domain.EmbeddingStrategyRemote
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = DefaultRemoteCooldown
	}
	return &EmbeddingProvider{
		strategy: cfg.Strategy,
		remote:   cfg.Remote,
		local:    cfg.Local,
		cache:    cfg.Cache,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// NormaliseText trims and lowercases text before hashing and embedding.
func NormaliseText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Embed returns the vector for text.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalised := NormaliseText(text)
	if normalised == "" {
		return p.local.Embed(ctx, "")
	}

	key := domain.ContentHash(normalised)
	if p.cache != nil {
		if vec, ok := p.cache.Get(key); ok {
			return vec, nil
		}
	}

	if p.useRemote(normalised) {
		vec, err := p.remote.Embed(ctx, normalised)
		if err == nil && len(vec) > 0 {
			p.store(key, vec)
			return vec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.markDown(err)
	}

	vec, err := p.local.Embed(ctx, normalised)
	if err != nil {
		return nil, err
	}
	p.store(key, vec)
	return vec, nil
}

func (p *EmbeddingProvider) useRemote(normalised string) bool {
	if p.strategy != domain.EmbeddingStrategyRemote || p.remote == nil {
		return false
	}
	if utf8.RuneCountInString(normalised) > MaxRemoteTextLength {
		logger.Debug("text longer than %d characters, using local embedding", MaxRemoteTextLength)
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.now().Before(p.downUntil)
}

func (p *EmbeddingProvider) markDown(err error) {
	if err == nil {
		err = domain.ErrMalformedResponse
	}
	logger.Warn("remote embedding failed, using local embedding: %v", err)
	if p.cooldown <= 0 {
		return
	}

	p.mu.Lock()
	p.downUntil = p.now().Add(p.cooldown)
	p.mu.Unlock()
}

func (p *EmbeddingProvider) store(key string, vec []float32) {
	if p.cache != nil {
		p.cache.Put(key, vec)
	}
}

// Strategy returns the configured strategy.
func (p *EmbeddingProvider) Strategy() domain.EmbeddingStrategy {
	return p.strategy
}

// Dimensions returns the local embedding size, the size every fallback vector has.
func (p *EmbeddingProvider) Dimensions() int {
	return p.local.Dimensions()
}

// ModelName names the model new vectors come from.
func (p *EmbeddingProvider) ModelName() string {
	if p.strategy == domain.EmbeddingStrategyRemote && p.remote != nil {
		return p.remote.ModelName()
	}
	return p.local.ModelName()
}

// Ping checks the remote service. It is always nil under the local strategy.
func (p *EmbeddingProvider) Ping(ctx context.Context) error {
	if p.strategy != domain.EmbeddingStrategyRemote || p.remote == nil {
		return nil
	}
	return p.remote.Ping(ctx)
}

// Close releases the remote client. The cache is closed by its owner.
func (p *EmbeddingProvider) Close() error {
	if p.remote != nil {
		return p.remote.Close()
	}
	return nil
}
