package domain

import "time"

const unknownDescription = "Unknown"

// Segmenter defaults.
const (
	DefaultTargetTokens  = 512
	DefaultOverlapTokens = 64
	DefaultMinTokens     = 5
)

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// StorageDriver selects the vector store backend.
type StorageDriver string

// Available storage drivers.
const (
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
	StorageMemory   StorageDriver = "memory"
)

// IsValid returns true if the driver is recognised.
func (d StorageDriver) IsValid() bool {
	switch d {
	case StorageSQLite, StoragePostgres, StorageMemory:
		return true
	default:
		return false
	}
}

// StorageSettings selects and locates the vector store.
type StorageSettings struct {
	Driver StorageDriver

	// Path is the sqlite data directory. Empty means ~/.ephemera/data.
	Path string

	// DSN is the postgres connection string.
	DSN string
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint. Empty uses the provider default.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// BatchSize is the number of texts sent per provider call.
	BatchSize int

	// Timeout bounds each provider call.
	Timeout time.Duration

	// RequestsPerSecond throttles provider calls. Zero disables throttling.
	RequestsPerSecond float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// SegmenterSettings holds the chunking budget.
type SegmenterSettings struct {
	TargetTokens  int
	OverlapTokens int
	MinTokens     int
}

// RetentionSettings controls how long documents live.
type RetentionSettings struct {
	// TTL is how long a document lives after registration.
	TTL time.Duration

	// SweepInterval is how often expired documents are deleted.
	SweepInterval time.Duration
}

// SearchSettings holds search defaults.
type SearchSettings struct {
	Threshold float64
	Limit     int
}

// IngestSettings bounds the ingestion pipeline.
type IngestSettings struct {
	// ExtractTimeout bounds text extraction.
	ExtractTimeout time.Duration

	// Timeout bounds a whole ingestion.
	Timeout time.Duration
}

// AppSettings holds all application settings.
type AppSettings struct {
	Storage   StorageSettings
	Embedding EmbeddingSettings
	Segmenter SegmenterSettings
	Retention RetentionSettings
	Search    SearchSettings
	Ingest    IngestSettings
}

// DefaultAppSettings returns settings with sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Storage: StorageSettings{
			Driver: StorageSQLite,
		},
		Embedding: EmbeddingSettings{
			Provider:  AIProviderOllama,
			Model:     DefaultEmbeddingModels()[AIProviderOllama],
			BatchSize: 32,
			Timeout:   30 * time.Second,
		},
		Segmenter: SegmenterSettings{
			TargetTokens:  DefaultTargetTokens,
			OverlapTokens: DefaultOverlapTokens,
			MinTokens:     DefaultMinTokens,
		},
		Retention: RetentionSettings{
			TTL:           time.Hour,
			SweepInterval: time.Minute,
		},
		Search: SearchSettings{
			Threshold: DefaultSearchThreshold,
			Limit:     DefaultSearchLimit,
		},
		Ingest: IngestSettings{
			ExtractTimeout: 60 * time.Second,
			Timeout:        5 * time.Minute,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
