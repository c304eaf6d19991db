package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

var (
	ingestPaste    string
	ingestType     string
	ingestMeta     []string
	ingestPair     string
	ingestFallback string
	ingestJSON     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a document for ephemeral search",
	Long: `Extracts text from a PDF or text file (or pasted text), splits it into
segments, embeds them and stores the vectors until the retention period ends.

Use --pair to co-ingest a second file. With --fallback mirror, if exactly one
of the two fails to extract, the other's text is used for both.`,
	Example: `  ephemera ingest report.pdf --meta team=platform
  ephemera ingest --paste "Quarterly revenue grew by twelve percent."
  ephemera ingest left.pdf --pair right.pdf --fallback mirror`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestPaste, "paste", "", "ingest this text instead of a file")
	ingestCmd.Flags().StringVar(&ingestType, "type", "", "source type (pdf|text); inferred from the extension by default")
	ingestCmd.Flags().StringArrayVar(&ingestMeta, "meta", nil, "metadata tag key=value (repeatable)")
	ingestCmd.Flags().StringVar(&ingestPair, "pair", "", "co-ingest a second file")
	ingestCmd.Flags().StringVar(&ingestFallback, "fallback", string(domain.FallbackStrict), "pair fallback strategy (strict|mirror)")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	hasFile := len(args) == 1
	switch {
	case hasFile && ingestPaste != "":
		return usageErrorf("a file and --paste are mutually exclusive")
	case !hasFile && ingestPaste == "":
		return usageErrorf("a file or --paste is required")
	case ingestPair != "" && !hasFile:
		return usageErrorf("--pair needs a file to pair with")
	}

	metadata, err := parseMetadata(ingestMeta)
	if err != nil {
		return err
	}

	var req domain.IngestRequest
	if hasFile {
		req, err = fileRequest(args[0], ingestType)
		if err != nil {
			return err
		}
	} else {
		req = domain.IngestRequest{Type: domain.SourceTypePaste, Filename: "paste", Text: ingestPaste}
	}
	req.Metadata = metadata

	var right domain.IngestRequest
	if ingestPair != "" {
		right, err = fileRequest(ingestPair, ingestType)
		if err != nil {
			return err
		}
		right.Metadata = maps.Clone(metadata)
	}

	if err := ensureRuntime(cmd.Context()); err != nil {
		return err
	}

	if ingestPair != "" {
		result, err := ingestService.IngestPair(cmd.Context(), req, right, domain.FallbackStrategy(ingestFallback))
		if err != nil {
			return fmt.Errorf("ingest pair: %w", err)
		}
		return outputPairResult(cmd, result)
	}

	result, err := ingestService.Ingest(cmd.Context(), req)
	if err != nil {
		if result != nil && !ingestJSON {
			printStages(cmd, result)
		}
		return fmt.Errorf("ingest %s: %w", req.Filename, err)
	}
	return outputIngestResult(cmd, result)
}

// fileRequest reads path into a request. The type comes from sourceType or
// the file extension.
func fileRequest(path, sourceType string) (domain.IngestRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.IngestRequest{}, fmt.Errorf("%w: read %s: %w", domain.ErrInvalidRequest, path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	st := domain.SourceType(sourceType)
	if st == "" {
		st = domain.SourceTypeText
		if ext == ".pdf" {
			st = domain.SourceTypePDF
		}
	}
	if st == domain.SourceTypePaste || !st.IsValid() {
		return domain.IngestRequest{}, usageErrorf("--type must be pdf or text, got %q", sourceType)
	}

	var contentType string
	if st == domain.SourceTypeText {
		contentType = mime.TypeByExtension(ext)
	}

	return domain.IngestRequest{
		Type:        st,
		Filename:    filepath.Base(path),
		Data:        data,
		ContentType: contentType,
	}, nil
}

// parseMetadata turns key=value pairs into a map.
func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil //nolint:nilnil // no metadata
	}
	md := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, usageErrorf("metadata must be key=value, got %q", p)
		}
		md[key] = strings.TrimSpace(value)
	}
	return md, nil
}

func outputIngestResult(cmd *cobra.Command, result *domain.IngestResult) error {
	if ingestJSON {
		return printJSON(cmd, result)
	}
	cmd.Printf("Document %s is %s\n", result.DocumentID, result.Status)
	cmd.Printf("  Chunks:     %d\n", result.ChunkCount)
	cmd.Printf("  Embeddings: %d\n", result.EmbeddingCount)
	cmd.Printf("  Expires:    %s\n", result.ExpiresAt.Local().Format(time.RFC3339))
	printStages(cmd, result)
	return nil
}

func outputPairResult(cmd *cobra.Command, result *domain.PairResult) error {
	if ingestJSON {
		return printJSON(cmd, result)
	}
	if result.Substituted != domain.SideNone {
		cmd.Printf("Note: %s source failed to extract (%s); used the other source's text\n",
			result.Substituted, result.SubstitutionReason)
	}
	for _, r := range []*domain.IngestResult{result.Left, result.Right} {
		if r == nil {
			continue
		}
		cmd.Printf("Document %s is %s (%d chunks)\n", r.DocumentID, r.Status, r.ChunkCount)
	}
	return nil
}

func printStages(cmd *cobra.Command, result *domain.IngestResult) {
	if len(result.Stages) == 0 {
		return
	}
	cmd.Println("  Stages:")
	for _, s := range result.Stages {
		line := fmt.Sprintf("    %-19s %-6s %4d items  %s", s.Stage, s.Outcome, s.Items, s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			line += "  " + s.Error
		}
		cmd.Println(line)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
