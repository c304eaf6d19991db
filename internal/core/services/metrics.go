package services

import (
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// Ensure NopMetrics implements the interface.
var _ driven.Metrics = NopMetrics{}

// NopMetrics discards every measurement. It is the default when no
// metrics adapter is wired.
type NopMetrics struct{}

// StageFinished does nothing.
func (NopMetrics) StageFinished(domain.Stage, domain.StageOutcome, time.Duration) {}

// IngestFinished does nothing.
func (NopMetrics) IngestFinished(domain.DocumentStatus, time.Duration) {}

// SearchFinished does nothing.
func (NopMetrics) SearchFinished(domain.SearchMode, int, time.Duration) {}

// DocumentsExpired does nothing.
func (NopMetrics) DocumentsExpired(int) {}
