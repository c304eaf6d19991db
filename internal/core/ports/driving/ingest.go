package driving

import (
	"context"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

// IngestService turns an uploaded file or paste into an ephemeral,
// searchable document.
type IngestService interface {
	// Ingest runs the pipeline. The result is returned even on failure so
	// callers can inspect the stages; a failed ingestion leaves nothing retrievable.
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)

	// IngestPair co-ingests two sources under a fallback strategy.
	IngestPair(ctx context.Context, left, right domain.IngestRequest, strategy domain.FallbackStrategy) (*domain.PairResult, error)
}
