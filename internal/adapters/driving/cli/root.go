// Package cli provides the ephemera command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/logger"
)

// Exit codes returned by the binary.
const (
	ExitOK          = 0
	ExitSystemError = 1
	ExitClientError = 2
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	verbose   bool
	logFormat string
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "ephemera",
	Short: "Ephemeral semantic search over uploaded documents",
	Long: `Ephemera ingests a PDF or pasted text, splits it into overlapping segments,
embeds every segment and keeps the vectors for a bounded time.

Documents are deleted when their retention period ends, or immediately after
they are used as the probe of a find-similar search. Raw text is never stored.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: configureLogging,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return closeRuntime()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", string(logger.FormatText), "log format (text|json)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.ephemera)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if closeErr := closeRuntime(); closeErr != nil {
		logger.Warn("shutdown: %v", closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode maps an error to a process exit code. Bad input exits with 2,
// everything else with 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case domain.IsClientError(err), errors.Is(err, errUsage):
		return ExitClientError
	default:
		return ExitSystemError
	}
}

// errUsage marks command-line misuse detected by the commands themselves.
var errUsage = errors.New("usage error")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func configureLogging(cmd *cobra.Command, _ []string) error {
	switch logger.Format(logFormat) {
	case logger.FormatText, logger.FormatJSON:
	default:
		return usageErrorf("unknown log format %q", logFormat)
	}
	logger.SetVerbose(verbose)
	logger.SetFormat(logger.Format(logFormat))
	logger.SetOutput(cmd.ErrOrStderr())
	return nil
}
