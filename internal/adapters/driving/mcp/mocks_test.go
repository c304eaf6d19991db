package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	resp *domain.SearchResponse
	err  error

	lastReq domain.SearchRequest
}

func (m *mockSearchService) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.resp == nil {
		return &domain.SearchResponse{Mode: req.Mode(), Action: domain.ActionNone}, nil
	}
	return m.resp, nil
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	result *domain.IngestResult
	err    error

	lastReq domain.IngestRequest
}

func (m *mockIngestService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.lastReq = req
	return m.result, m.err
}

func (m *mockIngestService) IngestPair(
	_ context.Context,
	_, _ domain.IngestRequest,
	_ domain.FallbackStrategy,
) (*domain.PairResult, error) {
	return nil, m.err
}

// mockStore is a mock implementation of driving.EphemeralStore.
// Only GetDocument is exercised by the MCP server.
type mockStore struct {
	docs map[string]*domain.Document
	err  error
}

func (m *mockStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (m *mockStore) CreateDocument(context.Context, domain.DocumentMeta) (*domain.Document, error) {
	return nil, m.err
}

func (m *mockStore) PersistChunks(context.Context, string, []domain.Chunk) ([]int64, error) {
	return nil, m.err
}

func (m *mockStore) PersistEmbeddings(context.Context, string, []domain.ChunkVector) error {
	return m.err
}

func (m *mockStore) MarkReady(context.Context, string) error { return m.err }

func (m *mockStore) MarkError(context.Context, string, string) error { return m.err }

func (m *mockStore) ExpireDueDocuments(context.Context, time.Time) (int, error) { return 0, m.err }

func (m *mockStore) DeleteAfterUse(context.Context, string) error { return m.err }

func validPorts() *Ports {
	return &Ports{
		Ingest: &mockIngestService{},
		Search: &mockSearchService{},
		Store:  &mockStore{},
	}
}
