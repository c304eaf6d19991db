package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
	"github.com/custodia-labs/ephemera/internal/core/ports/driving"
)

// mockIngestService records requests and returns canned results.
type mockIngestService struct {
	result     *domain.IngestResult
	pairResult *domain.PairResult
	err        error

	lastReq      domain.IngestRequest
	lastPair     [2]domain.IngestRequest
	lastStrategy domain.FallbackStrategy
}

func (m *mockIngestService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.lastReq = req
	return m.result, m.err
}

func (m *mockIngestService) IngestPair(
	_ context.Context,
	left, right domain.IngestRequest,
	strategy domain.FallbackStrategy,
) (*domain.PairResult, error) {
	m.lastPair = [2]domain.IngestRequest{left, right}
	m.lastStrategy = strategy
	return m.pairResult, m.err
}

// mockSearchService records the last request.
type mockSearchService struct {
	resp    *domain.SearchResponse
	err     error
	lastReq domain.SearchRequest
	calls   int
}

func (m *mockSearchService) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	m.lastReq = req
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

// mockStore serves GetDocument from a map.
type mockStore struct {
	docs map[string]*domain.Document
}

func (m *mockStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	if doc, ok := m.docs[id]; ok {
		return doc, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateDocument(context.Context, domain.DocumentMeta) (*domain.Document, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStore) PersistChunks(context.Context, string, []domain.Chunk) ([]int64, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStore) PersistEmbeddings(context.Context, string, []domain.ChunkVector) error {
	return errors.New("not implemented")
}

func (m *mockStore) MarkReady(context.Context, string) error { return nil }

func (m *mockStore) MarkError(context.Context, string, string) error { return nil }

func (m *mockStore) ExpireDueDocuments(context.Context, time.Time) (int, error) { return 0, nil }

func (m *mockStore) DeleteAfterUse(context.Context, string) error { return nil }

// mockScheduler counts RunNow calls.
type mockScheduler struct {
	processed int
	err       error
	lastTask  string
}

func (m *mockScheduler) RunNow(_ context.Context, taskID string) (int, error) {
	m.lastTask = taskID
	return m.processed, m.err
}

func (m *mockScheduler) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) Stop() error { return nil }

// mockValidator returns a fixed error.
type mockValidator struct {
	err error
}

func (m *mockValidator) ValidateEmbedding(context.Context, *domain.EmbeddingSettings) error {
	return m.err
}

var (
	_ driving.IngestService    = (*mockIngestService)(nil)
	_ driving.SearchService    = (*mockSearchService)(nil)
	_ driving.EphemeralStore   = (*mockStore)(nil)
	_ schedulerRunner          = (*mockScheduler)(nil)
	_ driven.AIConfigValidator = (*mockValidator)(nil)
)

// testServices holds the mocks injected by setupTestServices.
type testServices struct {
	ingest    *mockIngestService
	search    *mockSearchService
	store     *mockStore
	scheduler *mockScheduler
}

// setupTestServices injects mocks into the package service variables and
// returns a function restoring the previous values.
func setupTestServices() (*testServices, func()) {
	oldIngest, oldSearch, oldStore, oldScheduler := ingestService, searchService, storeService, scheduler
	oldMetrics := metricsHandler

	ts := &testServices{
		ingest:    &mockIngestService{},
		search:    &mockSearchService{resp: &domain.SearchResponse{Mode: domain.SearchModeQuery, Action: domain.ActionNone}},
		store:     &mockStore{docs: map[string]*domain.Document{}},
		scheduler: &mockScheduler{},
	}
	ingestService = ts.ingest
	searchService = ts.search
	storeService = ts.store
	scheduler = ts.scheduler
	metricsHandler = http.NotFoundHandler()

	return ts, func() {
		ingestService, searchService, storeService, scheduler = oldIngest, oldSearch, oldStore, oldScheduler
		metricsHandler = oldMetrics
	}
}

// setupTestSettings points the config store at a temporary directory.
func setupTestSettings(dir string) func() {
	oldStore, oldSettings, oldDir := configStore, settingsService, configDir
	configStore, settingsService = nil, nil
	configDir = dir
	return func() {
		configStore, settingsService, configDir = oldStore, oldSettings, oldDir
	}
}

// executeCommand runs the root command with args and returns its output.
// Flags are reset afterwards since cobra keeps them between executions.
func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
