package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

type stubDimensions struct {
	dim int
	err error
}

func (s stubDimensions) ModelDimension(_ context.Context, _ string) (int, error) {
	return s.dim, s.err
}

func vectorsOf(dim, n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		out[i][0] = float32(i + 1)
	}
	return out
}

func TestEmbedder_EmbedBatch_PreservesOrderAcrossBatches(t *testing.T) {
	provider := newMockProvider()
	provider.embed = func(_ int, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			var n float32
			_, _ = fmt.Sscanf(text, "text-%f", &n)
			out[i] = []float32{n, 1}
		}
		return out, nil
	}
	e := NewEmbedder(provider, WithBatchSize(3))

	texts := make([]string, 7)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	vectors, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 7)
	for i, v := range vectors {
		assert.InDelta(t, float32(i), v[0], 1e-6)
	}
	assert.Equal(t, []int{3, 3, 1}, provider.batchSizes())
	assert.Equal(t, 2, e.Dimension())
}

func TestEmbedder_EmbedBatch_Empty(t *testing.T) {
	provider := newMockProvider()
	e := NewEmbedder(provider)

	vectors, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, 0, provider.callCount())
}

func TestEmbedder_Embed(t *testing.T) {
	e := NewEmbedder(newMockProvider())

	v, err := e.Embed(context.Background(), "cloud migration")
	require.NoError(t, err)
	assert.Equal(t, keywordVector("cloud migration"), v)
}

func TestEmbedder_RetriesTransientOnce(t *testing.T) {
	provider := newMockProvider()
	provider.embed = func(call int, texts []string) ([][]float32, error) {
		if call == 1 {
			return nil, fmt.Errorf("%w: status 503", domain.ErrProviderTransient)
		}
		return vectorsOf(4, len(texts)), nil
	}
	e := NewEmbedder(provider, WithRetryBackoff(time.Millisecond))

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 2, provider.callCount())
}

func TestEmbedder_FailsAfterSecondTransient(t *testing.T) {
	provider := newMockProvider()
	provider.embed = func(_ int, _ []string) ([][]float32, error) {
		return nil, fmt.Errorf("%w: status 429", domain.ErrProviderTransient)
	}
	e := NewEmbedder(provider, WithRetryBackoff(time.Millisecond))

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingProviderFailed)
	assert.ErrorIs(t, err, domain.ErrProviderTransient)
	assert.Equal(t, 2, provider.callCount())
}

func TestEmbedder_TerminalErrorNotRetried(t *testing.T) {
	provider := newMockProvider()
	provider.embed = func(_ int, _ []string) ([][]float32, error) {
		return nil, errors.New("invalid api key")
	}
	e := NewEmbedder(provider, WithRetryBackoff(time.Millisecond))

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingProviderFailed)
	assert.Equal(t, 1, provider.callCount())
}

func TestEmbedder_CallTimeoutIsTransient(t *testing.T) {
	provider := newMockProvider()
	provider.embed = func(call int, texts []string) ([][]float32, error) {
		if call == 1 {
			return nil, context.DeadlineExceeded
		}
		return vectorsOf(2, len(texts)), nil
	}
	e := NewEmbedder(provider, WithCallTimeout(time.Second), WithRetryBackoff(time.Millisecond))

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, provider.callCount())
}

func TestEmbedder_CancelledContextNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := newMockProvider()
	provider.embed = func(_ int, _ []string) ([][]float32, error) {
		cancel()
		return nil, fmt.Errorf("%w: connection reset", domain.ErrProviderTransient)
	}
	e := NewEmbedder(provider, WithRetryBackoff(time.Millisecond))

	_, err := e.EmbedBatch(ctx, []string{"a"})
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount())
}

func TestEmbedder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []EmbedderOption
		dims    int
		vectors [][]float32
		wantIs  error
	}{
		{
			name:    "wrong count",
			vectors: vectorsOf(3, 1),
		},
		{
			name:    "ragged dimensions",
			vectors: [][]float32{{1, 2, 3}, {1, 2}},
			wantIs:  domain.ErrDimensionMismatch,
		},
		{
			name:    "advertised dimension",
			dims:    4,
			vectors: vectorsOf(3, 2),
			wantIs:  domain.ErrDimensionMismatch,
		},
		{
			name:    "stored dimension wins",
			opts:    []EmbedderOption{WithDimensionSource(stubDimensions{dim: 5})},
			dims:    3,
			vectors: vectorsOf(3, 2),
			wantIs:  domain.ErrDimensionMismatch,
		},
		{
			name:    "empty vector",
			vectors: [][]float32{{}, {}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newMockProvider()
			provider.dims = tt.dims
			provider.embed = func(_ int, _ []string) ([][]float32, error) {
				return tt.vectors, nil
			}
			e := NewEmbedder(provider, tt.opts...)

			_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrEmbeddingProviderFailed)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			// Validation failures are terminal.
			assert.Equal(t, 1, provider.callCount())
		})
	}
}

func TestEmbedder_CachesFirstDimension(t *testing.T) {
	provider := newMockProvider()
	provider.embed = func(call int, texts []string) ([][]float32, error) {
		if call == 1 {
			return vectorsOf(3, len(texts)), nil
		}
		return vectorsOf(4, len(texts)), nil
	}
	e := NewEmbedder(provider)

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 3, e.Dimension())

	_, err = e.EmbedBatch(context.Background(), []string{"b"})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEmbedder_DimensionSourceErrorFallsBack(t *testing.T) {
	provider := newMockProvider()
	provider.embed = func(_ int, texts []string) ([][]float32, error) {
		return vectorsOf(3, len(texts)), nil
	}
	e := NewEmbedder(provider, WithDimensionSource(stubDimensions{err: errors.New("db closed")}))

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 3, e.Dimension())
}

func TestEmbedder_AnyBatchFailureFailsCall(t *testing.T) {
	provider := newMockProvider()
	provider.embed = func(call int, texts []string) ([][]float32, error) {
		if call == 2 {
			return nil, errors.New("bad request")
		}
		return vectorsOf(2, len(texts)), nil
	}
	e := NewEmbedder(provider, WithBatchSize(1))

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingProviderFailed)
	assert.Nil(t, vectors)
	assert.Equal(t, 2, provider.callCount())
}

func TestEmbedder_RateLimit(t *testing.T) {
	provider := newMockProvider()
	e := NewEmbedder(provider, WithBatchSize(1), WithRateLimit(1000))

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, provider.callCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.EmbedBatch(ctx, []string{"d"})
	assert.Error(t, err)
}

func TestEmbedder_ModelName(t *testing.T) {
	provider := newMockProvider()
	provider.model = "nomic-embed-text"
	assert.Equal(t, "nomic-embed-text", NewEmbedder(provider).ModelName())
}
