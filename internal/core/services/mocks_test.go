package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// --- Mock implementations ---

// vocabulary gives keywordVector its dimensions. The final dimension is a
// small bias so no vector is zero.
var vocabulary = []string{"cloud", "migration", "workloads", "catering", "services", "menu", "contract"}

// keywordVector is a deterministic bag-of-words embedding over vocabulary.
func keywordVector(text string) []float32 {
	v := make([]float32, len(vocabulary)+1)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:")
		for i, term := range vocabulary {
			if word == term {
				v[i]++
			}
		}
	}
	v[len(vocabulary)] = 0.1
	return v
}

// mockProvider implements driven.EmbeddingProvider for testing.
// By default it returns keywordVector for every text.
type mockProvider struct {
	mu     sync.Mutex
	calls  int
	batch  []int
	dims   int
	model  string
	embed  func(call int, texts []string) ([][]float32, error)
	closed bool
}

func newMockProvider() *mockProvider {
	return &mockProvider{model: "mock-embed"}
}

func (m *mockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *mockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.batch = append(m.batch, len(texts))
	embed := m.embed
	m.mu.Unlock()

	if embed != nil {
		return embed(call, texts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = keywordVector(t)
	}
	return out, nil
}

func (m *mockProvider) Dimensions() int {
	return m.dims
}

func (m *mockProvider) ModelName() string {
	return m.model
}

func (m *mockProvider) Ping(_ context.Context) error {
	return nil
}

func (m *mockProvider) Close() error {
	m.closed = true
	return nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockProvider) batchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.batch...)
}

// mockExtractor implements driven.Extractor for testing.
type mockExtractor struct {
	contentType string
	extraction  *domain.Extraction
	err         error
	delay       time.Duration
}

func (m *mockExtractor) Supports(contentType string) bool {
	return contentType == m.contentType
}

func (m *mockExtractor) Extract(ctx context.Context, data []byte, _ string) (*domain.Extraction, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.extraction != nil {
		return m.extraction, nil
	}
	return &domain.Extraction{FullText: string(data), PageCount: 1}, nil
}

// mockMetrics implements driven.Metrics for testing.
type mockMetrics struct {
	mu       sync.Mutex
	stages   map[domain.Stage]domain.StageOutcome
	ingests  []domain.DocumentStatus
	searches []domain.SearchMode
	expired  int
}

var _ driven.Metrics = (*mockMetrics)(nil)

func newMockMetrics() *mockMetrics {
	return &mockMetrics{stages: make(map[domain.Stage]domain.StageOutcome)}
}

func (m *mockMetrics) StageFinished(stage domain.Stage, outcome domain.StageOutcome, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage] = outcome
}

func (m *mockMetrics) IngestFinished(status domain.DocumentStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingests = append(m.ingests, status)
}

func (m *mockMetrics) SearchFinished(mode domain.SearchMode, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, mode)
}

func (m *mockMetrics) DocumentsExpired(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired += n
}

// failingStore wraps a VectorStore and fails selected writes.
type failingStore struct {
	driven.VectorStore
	chunksErr     error
	embeddingsErr error
	deleteErr     error
	queryErr      error
}

func (f *failingStore) InsertChunks(ctx context.Context, id string, chunks []domain.Chunk) ([]int64, error) {
	if f.chunksErr != nil {
		return nil, f.chunksErr
	}
	return f.VectorStore.InsertChunks(ctx, id, chunks)
}

func (f *failingStore) InsertEmbeddings(ctx context.Context, id string, embeddings []domain.Embedding) error {
	if f.embeddingsErr != nil {
		return f.embeddingsErr
	}
	return f.VectorStore.InsertEmbeddings(ctx, id, embeddings)
}

func (f *failingStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return f.VectorStore.DeleteExpired(ctx, now)
}

func (f *failingStore) SimilarityQuery(ctx context.Context, q driven.SimilarityQuery) ([]domain.SearchResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.VectorStore.SimilarityQuery(ctx, q)
}

// fixedClock is a settable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock {
	return &fixedClock{now: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sentences builds n ten-word sentences.
func sentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString("The quarterly report describes cloud migration progress across regional teams.")
	}
	return b.String()
}
