package driven

import (
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

// Metrics records pipeline and search instrumentation.
type Metrics interface {
	// StageFinished records one ingestion stage.
	StageFinished(stage domain.Stage, outcome domain.StageOutcome, d time.Duration)

	// IngestFinished records a whole ingestion by its final status.
	IngestFinished(status domain.DocumentStatus, d time.Duration)

	// SearchFinished records a search by mode and result count.
	SearchFinished(mode domain.SearchMode, results int, d time.Duration)

	// DocumentsExpired records documents removed by the TTL sweep.
	DocumentsExpired(n int)
}
