package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Show the status of an ingested document",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output the document as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := ensureRuntime(cmd.Context()); err != nil {
		return err
	}

	doc, err := storeService.GetDocument(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("status %s: %w", args[0], err)
	}

	if statusJSON {
		return printJSON(cmd, doc)
	}

	cmd.Printf("Document %s\n", doc.ID)
	cmd.Printf("  Filename: %s\n", doc.Filename)
	cmd.Printf("  Type:     %s\n", doc.SourceType)
	cmd.Printf("  Status:   %s\n", doc.Status)
	if doc.PageCount > 0 {
		cmd.Printf("  Pages:    %d\n", doc.PageCount)
	}
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Local().Format(time.RFC3339))
	cmd.Printf("  Expires:  %s\n", doc.ExpiresAt.Local().Format(time.RFC3339))
	if doc.Status == domain.StatusError && doc.ErrorMessage != "" {
		cmd.Printf("  Error:    %s\n", doc.ErrorMessage)
	}

	if len(doc.Metadata) > 0 {
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		cmd.Println("  Metadata:")
		for _, k := range keys {
			cmd.Printf("    %s=%s\n", k, doc.Metadata[k])
		}
	}
	return nil
}
