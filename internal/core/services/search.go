package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
	"github.com/custodia-labs/ephemera/internal/core/ports/driving"
	"github.com/custodia-labs/ephemera/internal/logger"
)

// Ensure RetrievalEngine implements the interface.
var _ driving.SearchService = (*RetrievalEngine)(nil)

// QueryEmbedder turns a query into a probe vector. *Embedder satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrievalEngine answers searches by query text or by stored document.
type RetrievalEngine struct {
	embedder QueryEmbedder
	vectors  driven.VectorStore
	docs     driving.EphemeralStore
	metrics  driven.Metrics
	now      func() time.Time

	threshold float64
	limit     int
}

// RetrievalOption configures a RetrievalEngine.
type RetrievalOption func(*RetrievalEngine)

// WithSearchDefaults replaces the default threshold and limit.
func WithSearchDefaults(threshold float64, limit int) RetrievalOption {
	return func(r *RetrievalEngine) {
		if threshold >= -1 && threshold <= 1 {
			r.threshold = threshold
		}
		if limit > 0 {
			r.limit = limit
		}
	}
}

// WithSearchMetrics records search outcomes.
func WithSearchMetrics(metrics driven.Metrics) RetrievalOption {
	return func(r *RetrievalEngine) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithSearchClock replaces time.Now.
func WithSearchClock(now func() time.Time) RetrievalOption {
	return func(r *RetrievalEngine) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRetrievalEngine creates a retrieval engine.
func NewRetrievalEngine(
	embedder QueryEmbedder,
	vectors driven.VectorStore,
	docs driving.EphemeralStore,
	opts ...RetrievalOption,
) *RetrievalEngine {
	r := &RetrievalEngine{
		embedder:  embedder,
		vectors:   vectors,
		docs:      docs,
		metrics:   NopMetrics{},
		now:       time.Now,
		threshold: domain.DefaultSearchThreshold,
		limit:     domain.DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search runs a similarity search. A document search consumes the document:
// it is deleted once the similarity query has run, whatever the outcome.
func (r *RetrievalEngine) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = r.applyDefaults(req)
	start := time.Now()

	var (
		results []domain.SearchResult
		err     error
	)
	mode := req.Mode()
	switch mode {
	case domain.SearchModeDocument:
		results, err = r.searchByDocument(ctx, req)
	default:
		results, err = r.searchByQuery(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	resp := &domain.SearchResponse{
		Mode:          mode,
		Results:       results,
		AvgSimilarity: domain.AverageSimilarity(results),
		Action:        domain.ActionNone,
		Notice:        "no document was deleted; documents expire when their retention period ends",
	}
	if mode == domain.SearchModeDocument {
		resp.Action = domain.ActionDeletedAfterUse
		resp.Notice = fmt.Sprintf("document %s deleted after search", req.FileID)
	}

	r.metrics.SearchFinished(mode, len(results), time.Since(start))
	logger.Event("search finished", "mode", string(mode), "results", len(results))
	return resp, nil
}

func (r *RetrievalEngine) applyDefaults(req domain.SearchRequest) domain.SearchRequest {
	if req.Threshold == nil {
		t := r.threshold
		req.Threshold = &t
	}
	if req.Limit == 0 {
		req.Limit = r.limit
	}
	return req.WithDefaults()
}

func (r *RetrievalEngine) searchByQuery(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	probe, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.query(ctx, probe, req)
}

func (r *RetrievalEngine) searchByDocument(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	doc, err := r.docs.GetDocument(ctx, req.FileID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusReady {
		return nil, fmt.Errorf("%w: document %s is %s", domain.ErrNotFound, doc.ID, doc.Status)
	}

	embeddings, err := r.vectors.ListEmbeddings(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: document %s has no embeddings", domain.ErrNotFound, doc.ID)
	}

	vecs := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		vecs[i] = e.Vector
	}
	probe, err := domain.Centroid(vecs)
	if err != nil {
		return nil, fmt.Errorf("centroid of %s: %w", doc.ID, err)
	}

	results, queryErr := r.query(ctx, probe, req)

	// The document is single-use whether or not the query succeeded.
	delErr := r.docs.DeleteAfterUse(context.WithoutCancel(ctx), doc.ID)
	if queryErr != nil {
		return nil, errors.Join(queryErr, delErr)
	}
	if delErr != nil {
		return nil, delErr
	}
	return results, nil
}

// query runs the vector search and applies the in-process filters.
// When filters are set the store is asked for every match so the limit
// applies to what survives filtering.
func (r *RetrievalEngine) query(ctx context.Context, probe []float32, req domain.SearchRequest) ([]domain.SearchResult, error) {
	q := driven.SimilarityQuery{
		Probe:     probe,
		Threshold: *req.Threshold,
		Limit:     req.Limit,
		Now:       r.now(),
	}
	if !req.Filters.IsEmpty() {
		q.Limit = 0
	}

	results, err := r.vectors.SimilarityQuery(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	results = filterResults(results, req.Filters)
	domain.SortResults(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	return results, nil
}

// filterResults keeps results matching every metadata filter and the processedAt range.
func filterResults(results []domain.SearchResult, filters domain.SearchFilters) []domain.SearchResult {
	if filters.IsEmpty() {
		return results
	}
	filtered := make([]domain.SearchResult, 0, len(results))
	for _, result := range results {
		if matchesMetadata(result.Metadata, filters.Metadata) && inDateRange(result.Metadata, filters) {
			filtered = append(filtered, result)
		}
	}
	return filtered
}

func matchesMetadata(metadata, want map[string]string) bool {
	for key, substr := range want {
		value, ok := metadata[key]
		if !ok {
			return false
		}
		if !strings.Contains(strings.ToLower(value), strings.ToLower(substr)) {
			return false
		}
	}
	return true
}

func inDateRange(metadata map[string]string, filters domain.SearchFilters) bool {
	if !filters.HasDateRange() {
		return true
	}
	processedAt, err := time.Parse(time.RFC3339, metadata[domain.MetadataProcessedAt])
	if err != nil {
		return false
	}
	if !filters.ProcessedAfter.IsZero() && processedAt.Before(filters.ProcessedAfter) {
		return false
	}
	if !filters.ProcessedBefore.IsZero() && processedAt.After(filters.ProcessedBefore) {
		return false
	}
	return true
}
