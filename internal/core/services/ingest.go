package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
	"github.com/custodia-labs/ephemera/internal/core/ports/driving"
	"github.com/custodia-labs/ephemera/internal/logger"
	"github.com/custodia-labs/ephemera/internal/segmenter"
)

// Ensure Ingestor implements the interface.
var _ driving.IngestService = (*Ingestor)(nil)

// Ingestion defaults.
const (
	DefaultExtractTimeout = 60 * time.Second
	DefaultIngestTimeout  = 5 * time.Minute
)

// Content types the ingestor asks extractors for.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain"
)

// MetadataSubstitutedFrom marks a document whose text was taken from the other
// source of a pair.
const MetadataSubstitutedFrom = "substitutedFrom"

// BatchEmbedder embeds chunk text. *Embedder satisfies it.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// DocumentLifecycle is the store surface the pipeline writes through.
// *StoreManager satisfies it.
type DocumentLifecycle interface {
	driving.EphemeralStore
	Discard(ctx context.Context, documentID, reason string) error
}

// Ingestor runs the ingestion pipeline:
// extract, segment, register, persist chunks, embed, persist embeddings, finalise.
// A failure after registration rolls the document back.
type Ingestor struct {
	extractors     []driven.Extractor
	segmenter      *segmenter.Segmenter
	embedder       BatchEmbedder
	store          DocumentLifecycle
	metrics        driven.Metrics
	extractTimeout time.Duration
	timeout        time.Duration
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithExtractor registers an extractor. The first one supporting a content type wins.
func WithExtractor(extractor driven.Extractor) IngestorOption {
	return func(s *Ingestor) {
		if extractor != nil {
			s.extractors = append(s.extractors, extractor)
		}
	}
}

// WithIngestTimeouts bounds extraction and the whole ingestion. Zero keeps the default.
func WithIngestTimeouts(extract, total time.Duration) IngestorOption {
	return func(s *Ingestor) {
		if extract > 0 {
			s.extractTimeout = extract
		}
		if total > 0 {
			s.timeout = total
		}
	}
}

// WithIngestMetrics records stage and ingestion outcomes.
func WithIngestMetrics(metrics driven.Metrics) IngestorOption {
	return func(s *Ingestor) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewIngestor creates an ingestion pipeline.
func NewIngestor(
	seg *segmenter.Segmenter,
	embedder BatchEmbedder,
	store DocumentLifecycle,
	opts ...IngestorOption,
) *Ingestor {
	if seg == nil {
		seg = segmenter.New()
	}
	s := &Ingestor{
		segmenter:      seg,
		embedder:       embedder,
		store:          store,
		metrics:        NopMetrics{},
		extractTimeout: DefaultExtractTimeout,
		timeout:        DefaultIngestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest runs one document through the pipeline.
// The result is returned on failure too so callers can see which stage failed.
func (s *Ingestor) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	if err := validateIngestRequest(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r := s.newRun(req)
	var ext *domain.Extraction
	err := r.stage(domain.StageExtract, func() (int, error) {
		var err error
		ext, err = s.extract(ctx, req)
		if err != nil {
			return 0, err
		}
		return ext.PageCount, nil
	})
	if err == nil {
		err = r.process(ctx, ext)
	}
	return r.finish(err)
}

// IngestPair co-ingests two sources. Both are extracted concurrently; the
// strategy decides what happens when exactly one extraction fails. The pair
// is all or nothing: if either side fails to ingest, the other is rolled back.
func (s *Ingestor) IngestPair(
	ctx context.Context,
	left, right domain.IngestRequest,
	strategy domain.FallbackStrategy,
) (*domain.PairResult, error) {
	if !strategy.IsValid() {
		return nil, fmt.Errorf("%w: unknown fallback strategy %q", domain.ErrInvalidRequest, strategy)
	}
	if err := validateIngestRequest(left); err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	if err := validateIngestRequest(right); err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lr, rr := s.newRun(left), s.newRun(right)
	var (
		leftExt, rightExt *domain.Extraction
		leftErr, rightErr error
	)

	// Each side records its own error; one failing must not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		leftErr = lr.stage(domain.StageExtract, func() (int, error) {
			var err error
			leftExt, err = s.extract(ctx, left)
			return pageCount(leftExt), err
		})
		return nil
	})
	g.Go(func() error {
		rightErr = rr.stage(domain.StageExtract, func() (int, error) {
			var err error
			rightExt, err = s.extract(ctx, right)
			return pageCount(rightExt), err
		})
		return nil
	})
	_ = g.Wait()

	pair := &domain.PairResult{}
	switch {
	case leftErr != nil && rightErr != nil:
		pair.Left, _ = lr.finish(leftErr)
		pair.Right, _ = rr.finish(rightErr)
		return pair, fmt.Errorf("both sources failed: %w", errors.Join(leftErr, rightErr))

	case leftErr != nil || rightErr != nil:
		failed, failedErr := domain.SideLeft, leftErr
		if rightErr != nil {
			failed, failedErr = domain.SideRight, rightErr
		}
		if strategy == domain.FallbackStrict {
			pair.Left, _ = lr.finish(leftErr)
			pair.Right, _ = rr.finish(rightErr)
			return pair, fmt.Errorf("%s source: %w", failed, failedErr)
		}

		// Mirror the survivor onto the failed side.
		logger.Warn("ingest: %s source failed to extract, substituting the other: %v", failed, failedErr)
		pair.Substituted = failed
		pair.SubstitutionReason = failedErr.Error()
		if failed == domain.SideLeft {
			leftExt = rightExt
			lr = s.newRun(substituted(left, domain.SideRight))
		} else {
			rightExt = leftExt
			rr = s.newRun(substituted(right, domain.SideLeft))
		}
	}

	leftErr, rightErr = s.processPair(ctx, lr, rr, leftExt, rightExt)
	pair.Left, _ = lr.finish(leftErr)
	pair.Right, _ = rr.finish(rightErr)
	if err := errors.Join(leftErr, rightErr); err != nil {
		return pair, err
	}
	return pair, nil
}

// processPair ingests both extractions concurrently and rolls back the
// survivor if the other side fails.
func (s *Ingestor) processPair(ctx context.Context, lr, rr *run, leftExt, rightExt *domain.Extraction) (error, error) {
	var leftErr, rightErr error
	var g errgroup.Group
	g.Go(func() error {
		leftErr = lr.process(ctx, leftExt)
		return nil
	})
	g.Go(func() error {
		rightErr = rr.process(ctx, rightExt)
		return nil
	})
	_ = g.Wait()

	switch {
	case leftErr != nil && rightErr == nil:
		rightErr = rr.rollback(ctx, fmt.Errorf("left source: %w", leftErr))
	case rightErr != nil && leftErr == nil:
		leftErr = lr.rollback(ctx, fmt.Errorf("right source: %w", rightErr))
	}
	return leftErr, rightErr
}

// extract turns the request into text, bounded by the extraction timeout.
func (s *Ingestor) extract(ctx context.Context, req domain.IngestRequest) (*domain.Extraction, error) {
	if req.Type == domain.SourceTypePaste {
		return &domain.Extraction{FullText: req.Text, PageCount: 1}, nil
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: %s input is empty", domain.ErrExtractionFailed, req.Type)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = ContentTypeText
		if req.Type == domain.SourceTypePDF {
			contentType = ContentTypePDF
		}
	}

	extractor := s.extractorFor(contentType)
	if extractor == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedContentType, contentType)
	}

	ctx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()

	ext, err := extractor.Extract(ctx, req.Data, contentType)
	if err != nil {
		if errors.Is(err, domain.ErrExtractionFailed) || errors.Is(err, domain.ErrUnsupportedContentType) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
	}
	return ext, nil
}

func (s *Ingestor) extractorFor(contentType string) driven.Extractor {
	for _, e := range s.extractors {
		if e.Supports(contentType) {
			return e
		}
	}
	return nil
}

// segment chunks the extraction. Too little text fails before anything is stored.
func (s *Ingestor) segment(ext *domain.Extraction) ([]domain.Chunk, error) {
	if tokens := segmenter.EstimateTokens(ext.FullText); tokens < s.segmenter.MinTokens() {
		return nil, fmt.Errorf("%w: about %d tokens, need at least %d",
			domain.ErrTextTooShort, tokens, s.segmenter.MinTokens())
	}

	var chunks []domain.Chunk
	if len(ext.Pages) > 0 {
		chunks = s.segmenter.SegmentPages(ext.Pages)
	} else {
		chunks = s.segmenter.Segment(ext.FullText, segmenter.Meta{})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunk reached %d tokens", domain.ErrTextTooShort, s.segmenter.MinTokens())
	}
	return chunks, nil
}

func validateIngestRequest(req domain.IngestRequest) error {
	if !req.Type.IsValid() {
		return fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidRequest, req.Type)
	}
	return nil
}

func substituted(req domain.IngestRequest, from domain.PairSide) domain.IngestRequest {
	req.Metadata = maps.Clone(req.Metadata)
	if req.Metadata == nil {
		req.Metadata = make(map[string]string, 1)
	}
	req.Metadata[MetadataSubstitutedFrom] = string(from)
	return req
}

func pageCount(ext *domain.Extraction) int {
	if ext == nil {
		return 0
	}
	return ext.PageCount
}

// run is the state of one document going through the pipeline.
type run struct {
	s       *Ingestor
	req     domain.IngestRequest
	result  *domain.IngestResult
	started time.Time
}

func (s *Ingestor) newRun(req domain.IngestRequest) *run {
	return &run{
		s:       s,
		req:     req,
		result:  &domain.IngestResult{Status: domain.StatusProcessing},
		started: time.Now(),
	}
}

// stage runs fn and records its outcome.
func (r *run) stage(stage domain.Stage, fn func() (int, error)) error {
	start := time.Now()
	items, err := fn()

	sr := domain.StageResult{
		Stage:    stage,
		Outcome:  domain.OutcomeOK,
		Items:    items,
		Duration: time.Since(start),
	}
	if err != nil {
		sr.Outcome = domain.OutcomeFailed
		sr.Error = err.Error()
	}
	r.result.Stages = append(r.result.Stages, sr)
	r.s.metrics.StageFinished(stage, sr.Outcome, sr.Duration)
	logger.Event("ingest stage",
		"file", r.req.Filename,
		"stage", string(stage),
		"outcome", string(sr.Outcome),
		"items", items,
		"duration", sr.Duration)
	return err
}

// process runs every stage after extraction.
func (r *run) process(ctx context.Context, ext *domain.Extraction) error {
	var chunks []domain.Chunk
	err := r.stage(domain.StageSegment, func() (int, error) {
		var err error
		chunks, err = r.s.segment(ext)
		return len(chunks), err
	})
	if err != nil {
		return err
	}

	err = r.stage(domain.StageRegister, func() (int, error) {
		doc, err := r.s.store.CreateDocument(ctx, domain.DocumentMeta{
			Filename:   r.req.Filename,
			SourceType: r.req.Type,
			PageCount:  ext.PageCount,
			Metadata:   r.req.Metadata,
		})
		if err != nil {
			return 0, err
		}
		r.result.DocumentID = doc.ID
		r.result.ExpiresAt = doc.ExpiresAt
		return 1, nil
	})
	if err != nil {
		return err
	}

	if err := r.persist(ctx, chunks); err != nil {
		return r.rollback(ctx, err)
	}
	r.result.Status = domain.StatusReady
	return nil
}

// persist writes chunks and vectors, then marks the document ready.
func (r *run) persist(ctx context.Context, chunks []domain.Chunk) error {
	id := r.result.DocumentID

	var ids []int64
	err := r.stage(domain.StagePersistChunks, func() (int, error) {
		var err error
		ids, err = r.s.store.PersistChunks(ctx, id, chunks)
		return len(ids), err
	})
	if err != nil {
		return err
	}
	r.result.ChunkCount = len(ids)

	var vectors [][]float32
	err = r.stage(domain.StageEmbed, func() (int, error) {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		var err error
		vectors, err = r.s.embedder.EmbedBatch(ctx, texts)
		return len(vectors), err
	})
	if err != nil {
		return err
	}

	err = r.stage(domain.StagePersistEmbeddings, func() (int, error) {
		if len(vectors) != len(ids) {
			return 0, fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrEmbeddingProviderFailed, len(vectors), len(ids))
		}
		model := r.s.embedder.ModelName()
		cvs := make([]domain.ChunkVector, len(ids))
		for i, chunkID := range ids {
			cvs[i] = domain.ChunkVector{ChunkID: chunkID, Vector: vectors[i], ModelName: model}
		}
		if err := r.s.store.PersistEmbeddings(ctx, id, cvs); err != nil {
			return 0, err
		}
		return len(cvs), nil
	})
	if err != nil {
		return err
	}
	r.result.EmbeddingCount = len(vectors)

	return r.stage(domain.StageFinalise, func() (int, error) {
		return 1, r.s.store.MarkReady(ctx, id)
	})
}

// rollback marks the registered document as failed and deletes it.
// It runs detached from the caller's deadline so a timeout still cleans up.
func (r *run) rollback(ctx context.Context, cause error) error {
	id := r.result.DocumentID
	if id == "" {
		return cause
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	_ = r.stage(domain.StageCleanup, func() (int, error) {
		if err := r.s.store.Discard(cleanupCtx, id, failureReason(cause)); err != nil {
			logger.Warn("ingest: cleanup of %s failed: %v", id, err)
			return 0, err
		}
		return 1, nil
	})
	r.result.Status = domain.StatusError
	r.result.ChunkCount = 0
	r.result.EmbeddingCount = 0
	return cause
}

// finish closes the run and reports it.
func (r *run) finish(err error) (*domain.IngestResult, error) {
	if err != nil {
		r.result.Status = domain.StatusError
	}
	r.s.metrics.IngestFinished(r.result.Status, time.Since(r.started))
	if err != nil {
		return r.result, err
	}
	logger.Event("document ready",
		"document", r.result.DocumentID,
		"chunks", r.result.ChunkCount,
		"expires_at", r.result.ExpiresAt)
	return r.result, nil
}

// failureReason names the failure class only, so provider responses that
// might echo input never reach the store.
func failureReason(err error) string {
	for _, target := range []error{
		domain.ErrEmbeddingProviderFailed,
		domain.ErrStoreWriteFailed,
		context.DeadlineExceeded,
		context.Canceled,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "ingestion failed"
}
