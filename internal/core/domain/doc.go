// Package domain defines the core business entities for Ephemera.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An ephemeral ingested file or paste, without its raw text
//   - Chunk: A bounded, overlap-aware segment and the unit of retrieval
//   - Embedding: The vector for exactly one chunk
//   - SearchRequest / SearchResponse: Query-by-text and query-by-document
//   - StageResult: Structured progress of the ingestion pipeline
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
