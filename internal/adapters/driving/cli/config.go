package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ephemera/internal/adapters/driven/ai"
	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
	"github.com/custodia-labs/ephemera/internal/core/services"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and change configuration",
	Long: `Reads and writes ~/.ephemera/config.toml (or config.toml under --config-dir).

Keys use dot notation, e.g. embedding.provider or retention.ttl.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show effective settings, or one key",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration key",
	Example: `  ephemera config set embedding.provider openai
  ephemera config set retention.ttl 30m`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate settings and ping the embedding provider",
	Args:  cobra.NoArgs,
	RunE:  runConfigCheck,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if err := ensureSettings(); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if settings == nil {
		return err
	}
	if err != nil {
		cmd.PrintErrf("Warning: %v\n", err)
	}

	values := settingValues(settings)
	if len(args) == 1 {
		v, ok := values[args[0]]
		if !ok {
			return usageErrorf("unknown setting %q", args[0])
		}
		cmd.Println(v)
		return nil
	}

	for _, key := range services.SettingKeys() {
		cmd.Printf("%-32s %s\n", key, values[key])
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := ensureSettings(); err != nil {
		return err
	}
	if err := settingsService.Set(args[0], args[1]); err != nil {
		return usageErrorf("%v", err)
	}
	cmd.Printf("%s = %s\n", args[0], args[1])
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	if err := ensureSettings(); err != nil {
		return err
	}
	if configStore == nil {
		return fmt.Errorf("config store not configured")
	}
	cmd.Println(configStore.Path())
	return nil
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	if err := ensureSettings(); err != nil {
		return err
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if err := settingsService.Validate(settings); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %q is not configured", domain.ErrInvalidRequest, settings.Embedding.Provider)
	}
	if err := aiValidator.ValidateEmbedding(cmd.Context(), &settings.Embedding); err != nil {
		return err
	}
	cmd.Printf("Settings are valid; %s (%s) is reachable\n", settings.Embedding.Provider, settings.Embedding.Model)
	return nil
}

// aiValidator pings embedding providers for config check.
var aiValidator driven.AIConfigValidator = ai.NewConfigValidator()

// settingValues renders effective settings keyed like the config file.
// The API key is masked.
func settingValues(s *domain.AppSettings) map[string]string {
	apiKey := ""
	if s.Embedding.APIKey != "" {
		apiKey = "********"
	}
	return map[string]string{
		"storage.driver":                string(s.Storage.Driver),
		"storage.path":                  s.Storage.Path,
		"storage.dsn":                   maskDSN(s.Storage.DSN),
		"embedding.provider":            string(s.Embedding.Provider),
		"embedding.model":               s.Embedding.Model,
		"embedding.base_url":            s.Embedding.BaseURL,
		"embedding.api_key":             apiKey,
		"embedding.batch_size":          fmt.Sprint(s.Embedding.BatchSize),
		"embedding.timeout":             s.Embedding.Timeout.String(),
		"embedding.requests_per_second": fmt.Sprint(s.Embedding.RequestsPerSecond),
		"segmenter.target_tokens":       fmt.Sprint(s.Segmenter.TargetTokens),
		"segmenter.overlap_tokens":      fmt.Sprint(s.Segmenter.OverlapTokens),
		"segmenter.min_tokens":          fmt.Sprint(s.Segmenter.MinTokens),
		"retention.ttl":                 s.Retention.TTL.String(),
		"retention.sweep_interval":      s.Retention.SweepInterval.String(),
		"search.threshold":              fmt.Sprint(s.Search.Threshold),
		"search.limit":                  fmt.Sprint(s.Search.Limit),
		"ingest.extract_timeout":        s.Ingest.ExtractTimeout.String(),
		"ingest.timeout":                s.Ingest.Timeout.String(),
	}
}

// maskDSN hides everything after the scheme so passwords are never printed.
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i+3] + "********"
	}
	return "********"
}
