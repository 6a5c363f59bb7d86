// Package ai provides factory functions for creating embedding service adapters.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nomadai/kbase/internal/adapters/driven/embedding/local"
	ollamaembed "github.com/nomadai/kbase/internal/adapters/driven/embedding/ollama"
	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the result of embedding service initialisation.
type InitResult struct {
	Remote   driven.EmbeddingService // Nil for the local strategy.
	Local    driven.EmbeddingService
	Warnings []string // Non-fatal issues, such as an unreachable remote.
	FellBack bool     // True if the remote did not answer the startup ping.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() error {
	var errs []error
	if r.Remote != nil {
		errs = append(errs, r.Remote.Close())
	}
	if r.Local != nil {
		errs = append(errs, r.Local.Close())
	}
	return errors.Join(errs...)
}

// CreateEmbeddingServices builds the remote and local services for settings.
// An unreachable remote is kept, since the provider retries it after a
// cooldown, and reported as a warning.
func CreateEmbeddingServices(ctx context.Context, settings *domain.EmbeddingSettings) (*InitResult, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: embedding settings are required", domain.ErrInvalidInput)
	}

	result := &InitResult{Local: local.NewEmbeddingService()}
	remote, err := CreateRemoteEmbeddingService(settings)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		return result, nil
	}
	result.Remote = remote

	if err := ping(ctx, remote); err != nil {
		result.FellBack = true
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("embedding service at %s unreachable (%v), using local embeddings until it responds",
				settings.BaseURL, err))
	}
	return result, nil
}

// CreateRemoteEmbeddingService creates the Ollama-compatible service.
// Returns nil for the local strategy.
func CreateRemoteEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, nil
	}

	switch settings.Strategy {
	case domain.EmbeddingStrategyLocal:
		return nil, nil

	case domain.EmbeddingStrategyRemote, "":
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:           settings.BaseURL,
			Model:             settings.Model,
			Timeout:           settings.Timeout,
			RequestsPerSecond: settings.RequestsPerSecond,
			MaxRetries:        ollamaembed.DefaultMaxRetries,
		}), nil

	default:
		return nil, fmt.Errorf("%w: unsupported embedding strategy: %s", domain.ErrInvalidInput, settings.Strategy)
	}
}

// ValidateEmbeddingConfig creates the remote service for settings and pings it.
// The local strategy is always valid.
func ValidateEmbeddingConfig(ctx context.Context, settings *domain.EmbeddingSettings) error {
	svc, err := CreateRemoteEmbeddingService(settings)
	if err != nil {
		return err
	}
	if svc == nil {
		return nil
	}
	defer svc.Close()
	return ping(ctx, svc)
}

func ping(ctx context.Context, svc driven.EmbeddingService) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}
