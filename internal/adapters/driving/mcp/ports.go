package mcp

import (
	"github.com/custodia-labs/ephemera/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Ingest turns uploaded content into searchable documents.
	Ingest driving.IngestService

	// Search runs query and find-similar searches.
	Search driving.SearchService

	// Store reports document status. Optional: without it the
	// document_status tool and document resources are not registered.
	Store driving.EphemeralStore
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p == nil || p.Search == nil {
		return ErrMissingSearchService
	}
	if p.Ingest == nil {
		return ErrMissingIngestService
	}
	return nil
}
