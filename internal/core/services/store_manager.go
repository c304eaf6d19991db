package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
	"github.com/custodia-labs/ephemera/internal/core/ports/driving"
	"github.com/custodia-labs/ephemera/internal/logger"
)

// Ensure StoreManager implements the interface.
var _ driving.EphemeralStore = (*StoreManager)(nil)

// DefaultTTL is how long a document lives when no TTL is configured.
const DefaultTTL = time.Hour

// StoreManager owns the lifecycle of ephemeral documents in a VectorStore.
type StoreManager struct {
	store   driven.VectorStore
	ttl     time.Duration
	now     func() time.Time
	metrics driven.Metrics
}

// StoreManagerOption configures a StoreManager.
type StoreManagerOption func(*StoreManager)

// WithTTL sets the document lifetime.
func WithTTL(ttl time.Duration) StoreManagerOption {
	return func(m *StoreManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StoreManagerOption {
	return func(m *StoreManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithStoreMetrics reports expired document counts.
func WithStoreMetrics(metrics driven.Metrics) StoreManagerOption {
	return func(m *StoreManager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// NewStoreManager creates a store manager.
func NewStoreManager(store driven.VectorStore, opts ...StoreManagerOption) *StoreManager {
	m := &StoreManager{
		store:   store,
		ttl:     DefaultTTL,
		now:     time.Now,
		metrics: NopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured document lifetime.
func (m *StoreManager) TTL() time.Duration {
	return m.ttl
}

// CreateDocument registers a processing document that expires after the TTL.
// The processedAt metadata key is stamped with the registration time.
func (m *StoreManager) CreateDocument(ctx context.Context, meta domain.DocumentMeta) (*domain.Document, error) {
	if !meta.SourceType.IsValid() {
		return nil, fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidRequest, meta.SourceType)
	}

	now := m.now().UTC()
	metadata := maps.Clone(meta.Metadata)
	if metadata == nil {
		metadata = make(map[string]string, 1)
	}
	metadata[domain.MetadataProcessedAt] = now.Format(time.RFC3339)

	doc := &domain.Document{
		ID:         uuid.NewString(),
		Filename:   meta.Filename,
		SourceType: meta.SourceType,
		PageCount:  meta.PageCount,
		Status:     domain.StatusProcessing,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
		Metadata:   metadata,
	}
	if err := m.store.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: insert document: %w", domain.ErrStoreWriteFailed, err)
	}
	return doc, nil
}

// GetDocument returns a live document. Expired documents are reported as not found.
func (m *StoreManager) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := m.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.IsExpired(m.now()) {
		return nil, fmt.Errorf("%w: document %s expired", domain.ErrNotFound, id)
	}
	return doc, nil
}

// PersistChunks stores a document's chunks in one transaction and returns their IDs.
func (m *StoreManager) PersistChunks(ctx context.Context, documentID string, chunks []domain.Chunk) ([]int64, error) {
	ids, err := m.store.InsertChunks(ctx, documentID, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: insert chunks: %w", domain.ErrStoreWriteFailed, err)
	}
	if len(ids) != len(chunks) {
		return nil, fmt.Errorf("%w: stored %d of %d chunks", domain.ErrStoreWriteFailed, len(ids), len(chunks))
	}
	return ids, nil
}

// PersistEmbeddings stores one vector per chunk in one transaction.
func (m *StoreManager) PersistEmbeddings(ctx context.Context, documentID string, vectors []domain.ChunkVector) error {
	embeddings := make([]domain.Embedding, len(vectors))
	for i, v := range vectors {
		embeddings[i] = domain.Embedding{ChunkID: v.ChunkID, Vector: v.Vector, ModelName: v.ModelName}
	}
	if err := m.store.InsertEmbeddings(ctx, documentID, embeddings); err != nil {
		return fmt.Errorf("%w: insert embeddings: %w", domain.ErrStoreWriteFailed, err)
	}
	return nil
}

// MarkReady makes a document searchable once every chunk has exactly one embedding.
func (m *StoreManager) MarkReady(ctx context.Context, documentID string) error {
	chunks, embeddings, err := m.store.CountChunks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: count chunks: %w", domain.ErrStoreWriteFailed, err)
	}
	if chunks == 0 || chunks != embeddings {
		return fmt.Errorf("%w: document %s has %d chunks and %d embeddings",
			domain.ErrStoreWriteFailed, documentID, chunks, embeddings)
	}
	if err := m.store.UpdateDocumentStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("%w: mark ready: %w", domain.ErrStoreWriteFailed, err)
	}
	return nil
}

// MarkError records why a document failed. The reason must not carry document text.
func (m *StoreManager) MarkError(ctx context.Context, documentID, reason string) error {
	if err := m.store.UpdateDocumentStatus(ctx, documentID, domain.StatusError, reason); err != nil {
		return fmt.Errorf("%w: mark error: %w", domain.ErrStoreWriteFailed, err)
	}
	return nil
}

// ExpireDueDocuments deletes every document whose TTL has elapsed at now.
// Running it twice for the same instant removes nothing the second time.
func (m *StoreManager) ExpireDueDocuments(ctx context.Context, now time.Time) (int, error) {
	n, err := m.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired: %w", domain.ErrStoreWriteFailed, err)
	}
	if n > 0 {
		logger.Event("expired documents", "count", n)
		m.metrics.DocumentsExpired(n)
	}
	return n, nil
}

// DeleteAfterUse removes a document unconditionally. A missing document is a no-op.
func (m *StoreManager) DeleteAfterUse(ctx context.Context, documentID string) error {
	deleted, err := m.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: delete document: %w", domain.ErrStoreWriteFailed, err)
	}
	if deleted {
		logger.Event("document deleted after use", "document", documentID)
	}
	return nil
}

// Discard is best-effort cleanup after a failed ingestion: the document is
// marked as errored, then deleted with everything it owns.
func (m *StoreManager) Discard(ctx context.Context, documentID, reason string) error {
	markErr := m.MarkError(ctx, documentID, reason)
	if errors.Is(markErr, domain.ErrNotFound) || errors.Is(markErr, domain.ErrInvalidTransition) {
		markErr = nil
	}
	_, delErr := m.store.DeleteDocument(ctx, documentID)
	if delErr != nil {
		delErr = fmt.Errorf("%w: delete document: %w", domain.ErrStoreWriteFailed, delErr)
	}
	return errors.Join(markErr, delErr)
}
