package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete documents whose retention period has ended",
	Long: `Runs the expiry sweep once. The serve command runs the same sweep on a
schedule (retention.sweep_interval).`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	if err := ensureRuntime(cmd.Context()); err != nil {
		return err
	}

	n, err := scheduler.RunNow(cmd.Context(), domain.TaskIDExpirySweep)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	cmd.Printf("Deleted %d expired document(s)\n", n)
	return nil
}
