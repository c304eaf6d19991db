package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Search defaults.
const (
	DefaultSearchThreshold = 0.5
	DefaultSearchLimit     = 100
)

// SearchMode identifies which kind of probe a search used.
type SearchMode string

// Search modes.
const (
	// SearchModeQuery embeds a free-text query.
	SearchModeQuery SearchMode = "query"

	// SearchModeDocument uses the centroid of a stored document's embeddings.
	SearchModeDocument SearchMode = "document"
)

// EphemeralAction records what the search did to stored data.
type EphemeralAction string

// Ephemeral actions.
const (
	ActionNone            EphemeralAction = "none"
	ActionDeletedAfterUse EphemeralAction = "deleted_after_use"
)

// SearchFilters are predicates applied in-process after the vector query.
type SearchFilters struct {
	// Metadata maps a metadata key to a case-insensitive substring its value must contain.
	Metadata map[string]string

	// ProcessedAfter and ProcessedBefore bound the processedAt timestamp (inclusive).
	// Zero values are unbounded.
	ProcessedAfter  time.Time
	ProcessedBefore time.Time
}

// IsEmpty reports whether no filter is set.
func (f SearchFilters) IsEmpty() bool {
	return len(f.Metadata) == 0 && f.ProcessedAfter.IsZero() && f.ProcessedBefore.IsZero()
}

// HasDateRange reports whether either date bound is set.
func (f SearchFilters) HasDateRange() bool {
	return !f.ProcessedAfter.IsZero() || !f.ProcessedBefore.IsZero()
}

// SearchRequest asks for chunks similar to either a query or a stored document.
// Exactly one of Query and FileID must be set.
type SearchRequest struct {
	Query  string
	FileID string

	// Threshold is the minimum similarity. Nil means DefaultSearchThreshold.
	Threshold *float64

	// Limit caps the number of results. Zero means DefaultSearchLimit.
	Limit int

	Filters SearchFilters
}

// Mode returns the search mode implied by the request.
func (r SearchRequest) Mode() SearchMode {
	if strings.TrimSpace(r.FileID) != "" {
		return SearchModeDocument
	}
	return SearchModeQuery
}

// Validate checks the request shape.
func (r SearchRequest) Validate() error {
	hasQuery := strings.TrimSpace(r.Query) != ""
	hasFile := strings.TrimSpace(r.FileID) != ""

	switch {
	case !hasQuery && !hasFile:
		return fmt.Errorf("%w: one of query or fileId is required", ErrInvalidRequest)
	case hasQuery && hasFile:
		return fmt.Errorf("%w: query and fileId are mutually exclusive", ErrInvalidRequest)
	}
	if r.Threshold != nil && (*r.Threshold < -1 || *r.Threshold > 1) {
		return fmt.Errorf("%w: threshold must be between -1 and 1", ErrInvalidRequest)
	}
	if r.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	}
	f := r.Filters
	if !f.ProcessedAfter.IsZero() && !f.ProcessedBefore.IsZero() && f.ProcessedAfter.After(f.ProcessedBefore) {
		return fmt.Errorf("%w: date range is inverted", ErrInvalidRequest)
	}
	return nil
}

// WithDefaults returns a copy with threshold and limit defaults applied.
func (r SearchRequest) WithDefaults() SearchRequest {
	if r.Threshold == nil {
		t := DefaultSearchThreshold
		r.Threshold = &t
	}
	if r.Limit == 0 {
		r.Limit = DefaultSearchLimit
	}
	r.Query = strings.TrimSpace(r.Query)
	r.FileID = strings.TrimSpace(r.FileID)
	return r
}

// SearchResult is a ranked chunk returned to a caller.
type SearchResult struct {
	ChunkID       int64
	DocumentID    string
	Filename      string
	SourceType    SourceType
	Content       string
	Similarity    float64
	PageNumber    int
	SectionHeader string

	// Metadata is the owning document's metadata.
	Metadata map[string]string
}

// SearchResponse is the outcome of a search.
type SearchResponse struct {
	Mode          SearchMode
	Results       []SearchResult
	AvgSimilarity float64

	// Action and Notice tell the caller what happened to stored data.
	Action EphemeralAction
	Notice string
}

// SortResults orders results by similarity descending, breaking ties by
// lower chunk ID so equal scores rank in insertion order.
func SortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

// AverageSimilarity returns the mean similarity of results, or 0 if empty.
func AverageSimilarity(results []SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Similarity
	}
	return sum / float64(len(results))
}
