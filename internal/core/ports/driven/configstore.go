package driven

// ConfigStore provides access to application configuration.
// Keys use dot notation ("embedding.batch_size"); implementations handle
// persistence (TOML files) and type conversion.
type ConfigStore interface {
	// Get retrieves a configuration value by key.
	// Returns the value and a boolean indicating if the key exists.
	Get(key string) (any, bool)

	// GetString retrieves a string value. Returns "" if missing or not a string.
	GetString(key string) string

	// GetInt retrieves an integer value. Returns 0 if missing or not an integer.
	GetInt(key string) int

	// GetFloat retrieves a float value. Integers are widened.
	// Returns 0 if missing or not numeric.
	GetFloat(key string) float64

	// Keys returns every key currently set, sorted.
	Keys() []string

	// Set stores a configuration value and persists it immediately.
	Set(key string, value any) error

	// Save persists the current configuration to storage.
	Save() error

	// Load reads configuration from storage.
	Load() error

	// Path returns the configuration file path.
	Path() string
}
