package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

// EphemeralStore owns the lifecycle of a document's chunks and embeddings:
// creation with a TTL, status transitions and guaranteed deletion.
type EphemeralStore interface {
	// CreateDocument registers a processing document that expires after the TTL.
	CreateDocument(ctx context.Context, meta domain.DocumentMeta) (*domain.Document, error)

	// GetDocument returns a live document or domain.ErrNotFound.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// PersistChunks stores chunks and returns their IDs in order.
	PersistChunks(ctx context.Context, documentID string, chunks []domain.Chunk) ([]int64, error)

	// PersistEmbeddings stores one vector per chunk.
	PersistEmbeddings(ctx context.Context, documentID string, vectors []domain.ChunkVector) error

	// MarkReady verifies every chunk has an embedding and marks the document ready.
	MarkReady(ctx context.Context, documentID string) error

	// MarkError records why ingestion failed.
	MarkError(ctx context.Context, documentID, reason string) error

	// ExpireDueDocuments deletes every document whose TTL elapsed at now.
	ExpireDueDocuments(ctx context.Context, now time.Time) (int, error)

	// DeleteAfterUse deletes a document that served as a search probe.
	// Deleting a missing document is a no-op.
	DeleteAfterUse(ctx context.Context, documentID string) error
}
