// Package ai builds embedding providers from settings.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/ephemera/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/ephemera/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// pingTimeout bounds provider connectivity checks.
const pingTimeout = 5 * time.Second

// CreateEmbeddingProvider creates an embedding provider from settings.
// Returns nil, nil if embedding is not configured.
func CreateEmbeddingProvider(settings *domain.EmbeddingSettings) (driven.EmbeddingProvider, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil //nolint:nilnil // nil service means not configured
	}

	dimensions := domain.EmbeddingDimensions()[settings.Model]

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollama.New(ollama.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: dimensions,
		}), nil

	case domain.AIProviderOpenAI:
		provider, err := openai.New(openai.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderFailed, err)
		}
		return provider, nil

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrInvalidRequest, settings.Provider)
	}
}

// CreateAndValidateEmbeddingProvider creates a provider and checks it is reachable.
// The provider is closed if the check fails.
func CreateAndValidateEmbeddingProvider(
	ctx context.Context,
	settings *domain.EmbeddingSettings,
) (driven.EmbeddingProvider, error) {
	provider, err := CreateEmbeddingProvider(settings)
	if err != nil || provider == nil {
		return provider, err
	}

	if err := ping(ctx, provider); err != nil {
		_ = provider.Close()
		return nil, err
	}
	return provider, nil
}

// ValidateEmbeddingConfig pings the configured provider and closes it again.
// Returns nil if embedding is not configured.
func ValidateEmbeddingConfig(ctx context.Context, settings *domain.EmbeddingSettings) error {
	provider, err := CreateAndValidateEmbeddingProvider(ctx, settings)
	if err != nil {
		return err
	}
	if provider != nil {
		_ = provider.Close()
	}
	return nil
}

func ping(ctx context.Context, provider driven.EmbeddingProvider) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s unreachable: %w", domain.ErrEmbeddingProviderFailed, provider.ModelName(), err)
	}
	return nil
}
