package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

var (
	searchFileID    string
	searchThreshold float64
	searchLimit     int
	searchMeta      []string
	searchAfter     string
	searchBefore    string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested documents",
	Long: `Finds the segments most similar to a free-text query, or to a whole
ingested document with --file-id.

Results are ranked by cosine similarity of their embeddings. A document used
with --file-id is deleted once the search completes.`,
	Example: `  ephemera search "cloud migration costs" --threshold 0.6 --limit 10
  ephemera search --file-id 3f1c... --meta team=platform --after 2025-01-01`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchFileID, "file-id", "", "find segments similar to this document (deletes it afterwards)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", domain.DefaultSearchThreshold, "minimum similarity (-1 to 1)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default from settings)")
	searchCmd.Flags().StringArrayVar(&searchMeta, "meta", nil, "metadata filter key=substring (repeatable)")
	searchCmd.Flags().StringVar(&searchAfter, "after", "", "only documents processed at or after this time (RFC 3339 or YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchBefore, "before", "", "only documents processed at or before this time (RFC 3339 or YYYY-MM-DD)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	req, err := buildSearchRequest(cmd, args)
	if err != nil {
		return err
	}

	if err := ensureRuntime(cmd.Context()); err != nil {
		return err
	}

	resp, err := searchService.Search(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, resp)
	}
	return outputSearchTable(cmd, resp)
}

func buildSearchRequest(cmd *cobra.Command, args []string) (domain.SearchRequest, error) {
	var req domain.SearchRequest
	if len(args) == 1 {
		req.Query = args[0]
	}
	req.FileID = searchFileID
	req.Limit = searchLimit

	// An unset flag defers to the configured default threshold.
	if cmd.Flags().Changed("threshold") {
		t := searchThreshold
		req.Threshold = &t
	}

	md, err := parseMetadata(searchMeta)
	if err != nil {
		return req, err
	}
	req.Filters.Metadata = md

	if req.Filters.ProcessedAfter, err = parseTimeFlag("after", searchAfter, false); err != nil {
		return req, err
	}
	if req.Filters.ProcessedBefore, err = parseTimeFlag("before", searchBefore, true); err != nil {
		return req, err
	}

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// parseTimeFlag accepts RFC 3339 or a bare date. A bare date used as an
// upper bound covers the whole day.
func parseTimeFlag(name, value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, usageErrorf("--%s must be RFC 3339 or YYYY-MM-DD, got %q", name, value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func outputSearchTable(cmd *cobra.Command, resp *domain.SearchResponse) error {
	if resp.Notice != "" {
		cmd.Println(resp.Notice)
		cmd.Println()
	}

	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Printf("Results (%d, average similarity %.2f):\n", len(resp.Results), resp.AvgSimilarity)
	cmd.Println()
	for i, r := range resp.Results {
		// Format: [N] filename p.X - section (similarity)
		location := r.Filename
		if location == "" {
			location = r.DocumentID
		}
		if r.PageNumber > 0 {
			location += fmt.Sprintf(" p.%d", r.PageNumber)
		}
		if r.SectionHeader != "" {
			location += " - " + r.SectionHeader
		}

		cmd.Printf("  [%d] %s (%.2f)\n", i+1, location, r.Similarity)
		cmd.Printf("      %s\n", snippet(r.Content, 160))
		cmd.Println()
	}
	return nil
}

// snippet collapses whitespace and truncates to at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
