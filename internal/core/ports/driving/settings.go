package driving

import "github.com/custodia-labs/ephemera/internal/core/domain"

// SettingsService resolves application settings from configuration.
type SettingsService interface {
	// Get returns the effective settings with defaults applied.
	Get() (*domain.AppSettings, error)

	// Set validates and stores a single configuration key.
	Set(key, value string) error

	// Validate checks settings for consistency.
	Validate(settings *domain.AppSettings) error
}
