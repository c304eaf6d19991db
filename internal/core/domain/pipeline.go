package domain

import "time"

// Stage is one step of the ingestion pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageExtract           Stage = "extract"
	StageSegment           Stage = "segment"
	StageRegister          Stage = "register"
	StagePersistChunks     Stage = "persist_chunks"
	StageEmbed             Stage = "embed"
	StagePersistEmbeddings Stage = "persist_embeddings"
	StageFinalise          Stage = "finalise"
	StageCleanup           Stage = "cleanup"
)

// StageOutcome is the result of running a stage.
type StageOutcome string

// Stage outcomes.
const (
	OutcomeOK     StageOutcome = "ok"
	OutcomeFailed StageOutcome = "failed"
)

// StageResult is the structured record of one stage.
type StageResult struct {
	Stage    Stage
	Outcome  StageOutcome
	Items    int
	Duration time.Duration
	Error    string
}

// Extraction is the text recovered from an input.
type Extraction struct {
	// FullText is the whole text. For paged sources the pages are joined by form feeds.
	FullText string

	// Pages holds per-page text for paged sources; nil otherwise.
	Pages []string

	// PageCount is the number of pages (1 for unpaged text).
	PageCount int
}

// IngestRequest describes an input to ingest.
type IngestRequest struct {
	// Type selects extraction: pdf and text read Data, paste reads Text.
	Type SourceType

	Filename string
	Data     []byte
	Text     string

	// ContentType is an optional MIME type hint for Data.
	ContentType string

	// Metadata holds free-form tags stored with the document.
	Metadata map[string]string
}

// IngestResult reports what an ingestion produced.
// On failure it is still returned so callers can see which stage failed.
type IngestResult struct {
	DocumentID     string
	Status         DocumentStatus
	ChunkCount     int
	EmbeddingCount int
	ExpiresAt      time.Time
	Stages         []StageResult
}

// FailedStage returns the first failed stage, if any.
func (r *IngestResult) FailedStage() (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Outcome == OutcomeFailed && s.Stage != StageCleanup {
			return s, true
		}
	}
	return StageResult{}, false
}

// FallbackStrategy decides what co-ingestion does when one source fails to extract.
type FallbackStrategy string

// Fallback strategies.
const (
	// FallbackStrict fails the pair when either source fails.
	FallbackStrict FallbackStrategy = "strict"

	// FallbackMirrorSurvivor substitutes the surviving extraction for both sources
	// when exactly one fails. Both failing still fails the pair.
	FallbackMirrorSurvivor FallbackStrategy = "mirror"
)

// IsValid returns true if the strategy is recognised.
func (s FallbackStrategy) IsValid() bool {
	return s == FallbackStrict || s == FallbackMirrorSurvivor
}

// PairSide names one of two co-ingested sources.
type PairSide string

// Pair sides.
const (
	SideNone  PairSide = ""
	SideLeft  PairSide = "left"
	SideRight PairSide = "right"
)

// PairResult reports a co-ingestion.
type PairResult struct {
	Left  *IngestResult
	Right *IngestResult

	// Substituted names the side whose extraction was replaced by the survivor's.
	Substituted PairSide

	// SubstitutionReason is the extraction error that triggered the fallback.
	SubstitutionReason string
}
