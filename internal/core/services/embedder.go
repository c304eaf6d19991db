package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
	"github.com/custodia-labs/ephemera/internal/logger"
)

// Embedder defaults.
const (
	DefaultBatchSize    = 32
	DefaultEmbedTimeout = 30 * time.Second
	DefaultRetryBackoff = 500 * time.Millisecond
)

// DimensionSource reports the vector dimension already stored for a model.
// driven.VectorStore satisfies it.
type DimensionSource interface {
	ModelDimension(ctx context.Context, modelName string) (int, error)
}

// Embedder turns text into vectors through an EmbeddingProvider.
// It batches input, validates every provider call and retries a transient
// failure once before giving up.
type Embedder struct {
	provider  driven.EmbeddingProvider
	dims      DimensionSource
	limiter   *rate.Limiter
	batchSize int
	timeout   time.Duration
	backoff   time.Duration

	mu        sync.Mutex
	dimension int
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithBatchSize sets how many texts go into one provider call.
func WithBatchSize(n int) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithCallTimeout bounds each provider call. Zero disables the per-call timeout.
func WithCallTimeout(d time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if d >= 0 {
			e.timeout = d
		}
	}
}

// WithRetryBackoff sets the pause before the single retry.
func WithRetryBackoff(d time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if d >= 0 {
			e.backoff = d
		}
	}
}

// WithRateLimit throttles provider calls to rps per second. Zero disables it.
func WithRateLimit(rps float64) EmbedderOption {
	return func(e *Embedder) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithDimensionSource pins the expected dimension to what is already stored for the model.
func WithDimensionSource(src DimensionSource) EmbedderOption {
	return func(e *Embedder) {
		e.dims = src
	}
}

// NewEmbedder creates an embedder over the given provider.
func NewEmbedder(provider driven.EmbeddingProvider, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		provider:  provider,
		batchSize: DefaultBatchSize,
		timeout:   DefaultEmbedTimeout,
		backoff:   DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ModelName returns the provider's model name.
func (e *Embedder) ModelName() string {
	return e.provider.ModelName()
}

// Dimension returns the accepted vector dimension, or 0 before the first call.
func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text, in input order.
// Any failed batch fails the whole call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		vectors, err := e.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %w", domain.ErrEmbeddingProviderFailed, start, end, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	result := e.call(ctx, batch)
	if result.IsOk() {
		return result.Vectors(), nil
	}

	reason := result.Reason()
	if !errors.Is(reason, domain.ErrProviderTransient) || ctx.Err() != nil {
		return nil, reason
	}

	logger.Debug("embedder: retrying batch of %d after %v: %v", len(batch), e.backoff, reason)

	timer := time.NewTimer(e.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return e.call(ctx, batch).Unwrap()
}

// call performs one provider request and validates what came back.
func (e *Embedder) call(ctx context.Context, batch []string) domain.ProviderResult {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return domain.Err(err)
		}
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vectors, err := e.provider.EmbedBatch(callCtx, batch)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: call exceeded %v", domain.ErrProviderTransient, e.timeout)
		}
		return domain.Err(err)
	}

	if err := e.validate(ctx, batch, vectors); err != nil {
		return domain.Err(err)
	}
	return domain.Ok(vectors)
}

func (e *Embedder) validate(ctx context.Context, batch []string, vectors [][]float32) error {
	if len(vectors) != len(batch) {
		return fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(batch))
	}

	want := e.expectedDimension(ctx, len(vectors[0]))
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("provider returned an empty vector at position %d", i)
		}
		if len(v) != want {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				domain.ErrDimensionMismatch, i, len(v), want)
		}
	}

	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = want
	}
	e.mu.Unlock()
	return nil
}

// expectedDimension resolves the dimension every vector must have:
// the cached one, else the one stored for this model, else the provider's
// advertised one, else the first vector received.
func (e *Embedder) expectedDimension(ctx context.Context, first int) int {
	if d := e.Dimension(); d > 0 {
		return d
	}
	if e.dims != nil {
		d, err := e.dims.ModelDimension(ctx, e.provider.ModelName())
		if err != nil {
			logger.Warn("embedder: could not read stored dimension for %s: %v", e.provider.ModelName(), err)
		} else if d > 0 {
			return d
		}
	}
	if d := e.provider.Dimensions(); d > 0 {
		return d
	}
	return first
}
