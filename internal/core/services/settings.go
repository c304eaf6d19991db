package services

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
	"github.com/custodia-labs/ephemera/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyStorageDriver     = "storage.driver"
	keyStoragePath       = "storage.path"
	keyStorageDSN        = "storage.dsn"
	keyEmbedProvider     = "embedding.provider"
	keyEmbedModel        = "embedding.model"
	keyEmbedBaseURL      = "embedding.base_url"
	keyEmbedAPIKey       = "embedding.api_key"
	keyEmbedBatchSize    = "embedding.batch_size"
	keyEmbedTimeout      = "embedding.timeout"
	keyEmbedRPS          = "embedding.requests_per_second"
	keySegTarget         = "segmenter.target_tokens"
	keySegOverlap        = "segmenter.overlap_tokens"
	keySegMin            = "segmenter.min_tokens"
	keyRetentionTTL      = "retention.ttl"
	keyRetentionSweep    = "retention.sweep_interval"
	keySearchThreshold   = "search.threshold"
	keySearchLimit       = "search.limit"
	keyIngestExtractTime = "ingest.extract_timeout"
	keyIngestTimeout     = "ingest.timeout"
)

// EnvOpenAIAPIKey overrides embedding.api_key for the OpenAI provider.
//
//nolint:gosec // G101: environment variable name, not a credential.
const EnvOpenAIAPIKey = "OPENAI_API_KEY"

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindFloat
	kindDuration
	kindProvider
	kindDriver
)

var settingKeys = map[string]keyKind{
	keyStorageDriver:     kindDriver,
	keyStoragePath:       kindString,
	keyStorageDSN:        kindString,
	keyEmbedProvider:     kindProvider,
	keyEmbedModel:        kindString,
	keyEmbedBaseURL:      kindString,
	keyEmbedAPIKey:       kindString,
	keyEmbedBatchSize:    kindInt,
	keyEmbedTimeout:      kindDuration,
	keyEmbedRPS:          kindFloat,
	keySegTarget:         kindInt,
	keySegOverlap:        kindInt,
	keySegMin:            kindInt,
	keyRetentionTTL:      kindDuration,
	keyRetentionSweep:    kindDuration,
	keySearchThreshold:   kindFloat,
	keySearchLimit:       kindInt,
	keyIngestExtractTime: kindDuration,
	keyIngestTimeout:     kindDuration,
}

// SettingKeys returns every configuration key the application reads, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SettingsService resolves application settings from the config store.
type SettingsService struct {
	configStore driven.ConfigStore
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings, filling gaps with defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	provider := s.getProvider(defaults.Embedding.Provider)
	model := s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[provider])

	settings := &domain.AppSettings{
		Storage: domain.StorageSettings{
			Driver: s.getDriver(defaults.Storage.Driver),
			Path:   s.configStore.GetString(keyStoragePath),
			DSN:    s.configStore.GetString(keyStorageDSN),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:          provider,
			Model:             model,
			BaseURL:           s.configStore.GetString(keyEmbedBaseURL),
			APIKey:            s.configStore.GetString(keyEmbedAPIKey),
			BatchSize:         s.getInt(keyEmbedBatchSize, defaults.Embedding.BatchSize),
			RequestsPerSecond: s.configStore.GetFloat(keyEmbedRPS),
		},
		Segmenter: domain.SegmenterSettings{
			TargetTokens:  s.getInt(keySegTarget, defaults.Segmenter.TargetTokens),
			OverlapTokens: s.getInt(keySegOverlap, defaults.Segmenter.OverlapTokens),
			MinTokens:     s.getInt(keySegMin, defaults.Segmenter.MinTokens),
		},
		Search: domain.SearchSettings{
			Threshold: s.getFloat(keySearchThreshold, defaults.Search.Threshold),
			Limit:     s.getInt(keySearchLimit, defaults.Search.Limit),
		},
	}

	if provider == domain.AIProviderOpenAI {
		if key := s.getenv(EnvOpenAIAPIKey); key != "" {
			settings.Embedding.APIKey = key
		}
	}

	var errs []error
	durations := []struct {
		key    string
		target *time.Duration
		def    time.Duration
	}{
		{keyEmbedTimeout, &settings.Embedding.Timeout, defaults.Embedding.Timeout},
		{keyRetentionTTL, &settings.Retention.TTL, defaults.Retention.TTL},
		{keyRetentionSweep, &settings.Retention.SweepInterval, defaults.Retention.SweepInterval},
		{keyIngestExtractTime, &settings.Ingest.ExtractTimeout, defaults.Ingest.ExtractTimeout},
		{keyIngestTimeout, &settings.Ingest.Timeout, defaults.Ingest.Timeout},
	}
	for _, d := range durations {
		v, err := s.getDuration(d.key, d.def)
		if err != nil {
			errs = append(errs, err)
		}
		*d.target = v
	}

	return settings, errors.Join(errs...)
}

// Set validates and stores one setting by key.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	var stored any
	switch kind {
	case kindString:
		stored = value
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		stored = n
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", key, err)
		}
		stored = f
	case kindDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a duration such as 30s or 1h: %w", key, err)
		}
		stored = value
	case kindProvider:
		if !domain.AIProvider(value).IsValid() {
			return fmt.Errorf("invalid embedding provider: %s", value)
		}
		stored = value
	case kindDriver:
		if !domain.StorageDriver(value).IsValid() {
			return fmt.Errorf("invalid storage driver: %s", value)
		}
		stored = value
	}

	if err := s.configStore.Set(key, stored); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Validate checks that settings can be used to build the pipeline.
func (s *SettingsService) Validate(settings *domain.AppSettings) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !settings.Storage.Driver.IsValid() {
		add("invalid storage driver: %s", settings.Storage.Driver)
	}
	if settings.Storage.Driver == domain.StoragePostgres && settings.Storage.DSN == "" {
		add("storage driver postgres requires %s", keyStorageDSN)
	}

	if !settings.Embedding.Provider.IsValid() {
		add("invalid embedding provider: %s", settings.Embedding.Provider)
	} else if !settings.Embedding.IsConfigured() {
		add("API key required for %s (set %s or %s)", settings.Embedding.Provider, keyEmbedAPIKey, EnvOpenAIAPIKey)
	}
	if settings.Embedding.Model == "" {
		add("embedding model is required")
	}
	if settings.Embedding.BatchSize <= 0 {
		add("%s must be positive", keyEmbedBatchSize)
	}
	if settings.Embedding.RequestsPerSecond < 0 {
		add("%s must not be negative", keyEmbedRPS)
	}

	seg := settings.Segmenter
	if seg.TargetTokens <= 0 {
		add("%s must be positive", keySegTarget)
	}
	if seg.OverlapTokens < 0 || seg.OverlapTokens >= seg.TargetTokens {
		add("%s must be between 0 and %s", keySegOverlap, keySegTarget)
	}
	if seg.MinTokens < 1 {
		add("%s must be at least 1", keySegMin)
	}

	if settings.Search.Threshold < -1 || settings.Search.Threshold > 1 {
		add("%s must be between -1 and 1", keySearchThreshold)
	}
	if settings.Search.Limit <= 0 {
		add("%s must be positive", keySearchLimit)
	}

	for key, d := range map[string]time.Duration{
		keyEmbedTimeout:      settings.Embedding.Timeout,
		keyRetentionTTL:      settings.Retention.TTL,
		keyRetentionSweep:    settings.Retention.SweepInterval,
		keyIngestExtractTime: settings.Ingest.ExtractTimeout,
		keyIngestTimeout:     settings.Ingest.Timeout,
	} {
		if d <= 0 {
			add("%s must be positive", key)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, errors.Join(errs...))
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func (s *SettingsService) getProvider(defaultVal domain.AIProvider) domain.AIProvider {
	provider := domain.AIProvider(s.configStore.GetString(keyEmbedProvider))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getDriver(defaultVal domain.StorageDriver) domain.StorageDriver {
	driver := domain.StorageDriver(s.configStore.GetString(keyStorageDriver))
	if !driver.IsValid() {
		return defaultVal
	}
	return driver
}
