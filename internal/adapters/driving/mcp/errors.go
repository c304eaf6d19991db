// Package mcp provides an MCP (Model Context Protocol) server adapter for Ephemera.
// It lets AI assistants ingest documents, search them and check their status.
package mcp

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

var (
	// ErrMissingSearchService is returned when the search service is not provided.
	ErrMissingSearchService = errors.New("mcp: search service is required")

	// ErrMissingIngestService is returned when the ingest service is not provided.
	ErrMissingIngestService = errors.New("mcp: ingest service is required")
)

// Error kinds reported to MCP clients.
const (
	kindInvalidInput        = "invalid_input"
	kindNotFound            = "not_found"
	kindProviderUnavailable = "provider_unavailable"
	kindInternal            = "internal"
)

// errorKind classifies err for a tool caller.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return kindNotFound
	case domain.IsClientError(err):
		return kindInvalidInput
	case errors.Is(err, domain.ErrEmbeddingProviderFailed):
		return kindProviderUnavailable
	default:
		return kindInternal
	}
}

// toolError wraps err with the tool name and its kind, e.g.
// "search_documents failed (not_found): document not found".
func toolError(tool string, err error) error {
	return fmt.Errorf("%s failed (%s): %w", tool, errorKind(err), err)
}
