package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

// Tool names.
const (
	toolIngest = "ingest_document"
	toolSearch = "search_documents"
	toolStatus = "document_status"
)

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	Type          string            `json:"type" jsonschema:"source type: pdf, text or paste"`
	Filename      string            `json:"filename,omitempty" jsonschema:"original file name"`
	Text          string            `json:"text,omitempty" jsonschema:"text to ingest when type is paste"`
	ContentBase64 string            `json:"content_base64,omitempty" jsonschema:"base64 encoded file content when type is pdf or text"`
	ContentType   string            `json:"content_type,omitempty" jsonschema:"MIME type of the file content"`
	Metadata      map[string]string `json:"metadata,omitempty" jsonschema:"free-form tags stored with the document"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	DocumentID     string        `json:"document_id"`
	Status         string        `json:"status"`
	ChunkCount     int           `json:"chunk_count"`
	EmbeddingCount int           `json:"embedding_count"`
	ExpiresAt      string        `json:"expires_at"`
	Stages         []StageOutput `json:"stages"`
}

// StageOutput records one pipeline stage.
type StageOutput struct {
	Stage      string `json:"stage"`
	Outcome    string `json:"outcome"`
	Items      int    `json:"items"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query           string            `json:"query,omitempty" jsonschema:"free-text query; mutually exclusive with file_id"`
	FileID          string            `json:"file_id,omitempty" jsonschema:"find segments similar to this document, which is deleted afterwards"`
	Threshold       *float64          `json:"threshold,omitempty" jsonschema:"minimum cosine similarity (default 0.5)"`
	Limit           int               `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 100)"`
	Metadata        map[string]string `json:"metadata,omitempty" jsonschema:"metadata key to case-insensitive substring filters"`
	ProcessedAfter  string            `json:"processed_after,omitempty" jsonschema:"RFC 3339 lower bound on processing time"`
	ProcessedBefore string            `json:"processed_before,omitempty" jsonschema:"RFC 3339 upper bound on processing time"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Mode          string               `json:"mode"`
	Results       []SearchResultOutput `json:"results"`
	Count         int                  `json:"count"`
	AvgSimilarity float64              `json:"avg_similarity"`
	Action        string               `json:"action"`
	Notice        string               `json:"notice,omitempty"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	ChunkID       int64             `json:"chunk_id"`
	DocumentID    string            `json:"document_id"`
	Filename      string            `json:"filename,omitempty"`
	SourceType    string            `json:"source_type"`
	Content       string            `json:"content"`
	Similarity    float64           `json:"similarity"`
	PageNumber    int               `json:"page_number,omitempty"`
	SectionHeader string            `json:"section_header,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// StatusInput is the input schema for the status tool.
type StatusInput struct {
	DocumentID string `json:"document_id" jsonschema:"the document ID returned by ingest_document"`
}

// StatusOutput describes a stored document. It never includes document text.
type StatusOutput struct {
	DocumentID   string            `json:"document_id"`
	Filename     string            `json:"filename,omitempty"`
	SourceType   string            `json:"source_type"`
	Status       string            `json:"status"`
	PageCount    int               `json:"page_count"`
	CreatedAt    string            `json:"created_at"`
	ExpiresAt    string            `json:"expires_at"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        toolIngest,
		Description: "Ingest a PDF, text file or pasted text for temporary semantic search",
	}, s.handleIngest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        toolSearch,
		Description: "Search ingested documents by query, or find segments similar to a document",
	}, s.handleSearch)

	if s.ports.Store != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        toolStatus,
			Description: "Show the processing status and expiry of an ingested document",
		}, s.handleStatus)
	}
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	req := domain.IngestRequest{
		Type:        domain.SourceType(input.Type),
		Filename:    input.Filename,
		Text:        input.Text,
		ContentType: input.ContentType,
		Metadata:    input.Metadata,
	}
	if input.ContentBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(input.ContentBase64)
		if err != nil {
			return nil, IngestOutput{}, toolError(toolIngest,
				fmt.Errorf("%w: content_base64 is not valid base64", domain.ErrInvalidRequest))
		}
		req.Data = data
	}

	result, err := s.ports.Ingest.Ingest(ctx, req)
	if err != nil {
		return nil, IngestOutput{}, toolError(toolIngest, err)
	}

	output := IngestOutput{
		DocumentID:     result.DocumentID,
		Status:         string(result.Status),
		ChunkCount:     result.ChunkCount,
		EmbeddingCount: result.EmbeddingCount,
		ExpiresAt:      formatTime(result.ExpiresAt),
		Stages:         make([]StageOutput, len(result.Stages)),
	}
	for i, st := range result.Stages {
		output.Stages[i] = StageOutput{
			Stage:      string(st.Stage),
			Outcome:    string(st.Outcome),
			Items:      st.Items,
			DurationMS: st.Duration.Milliseconds(),
			Error:      st.Error,
		}
	}

	return nil, output, nil
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	req := domain.SearchRequest{
		Query:     input.Query,
		FileID:    input.FileID,
		Threshold: input.Threshold,
		Limit:     input.Limit,
		Filters:   domain.SearchFilters{Metadata: input.Metadata},
	}

	var err error
	if req.Filters.ProcessedAfter, err = parseTime("processed_after", input.ProcessedAfter); err != nil {
		return nil, SearchOutput{}, toolError(toolSearch, err)
	}
	if req.Filters.ProcessedBefore, err = parseTime("processed_before", input.ProcessedBefore); err != nil {
		return nil, SearchOutput{}, toolError(toolSearch, err)
	}

	resp, err := s.ports.Search.Search(ctx, req)
	if err != nil {
		return nil, SearchOutput{}, toolError(toolSearch, err)
	}

	output := SearchOutput{
		Mode:          string(resp.Mode),
		Results:       make([]SearchResultOutput, len(resp.Results)),
		Count:         len(resp.Results),
		AvgSimilarity: resp.AvgSimilarity,
		Action:        string(resp.Action),
		Notice:        resp.Notice,
	}
	for i, r := range resp.Results {
		output.Results[i] = SearchResultOutput{
			ChunkID:       r.ChunkID,
			DocumentID:    r.DocumentID,
			Filename:      r.Filename,
			SourceType:    string(r.SourceType),
			Content:       r.Content,
			Similarity:    r.Similarity,
			PageNumber:    r.PageNumber,
			SectionHeader: r.SectionHeader,
			Metadata:      r.Metadata,
		}
	}

	return nil, output, nil
}

// handleStatus handles the status tool invocation.
func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	if input.DocumentID == "" {
		return nil, StatusOutput{}, toolError(toolStatus,
			fmt.Errorf("%w: document_id is required", domain.ErrInvalidRequest))
	}

	doc, err := s.ports.Store.GetDocument(ctx, input.DocumentID)
	if err != nil {
		return nil, StatusOutput{}, toolError(toolStatus, err)
	}

	return nil, statusOutput(doc), nil
}

func statusOutput(doc *domain.Document) StatusOutput {
	return StatusOutput{
		DocumentID:   doc.ID,
		Filename:     doc.Filename,
		SourceType:   string(doc.SourceType),
		Status:       string(doc.Status),
		PageCount:    doc.PageCount,
		CreatedAt:    formatTime(doc.CreatedAt),
		ExpiresAt:    formatTime(doc.ExpiresAt),
		ErrorMessage: doc.ErrorMessage,
		Metadata:     doc.Metadata,
	}
}

func parseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339", domain.ErrInvalidRequest, field)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
