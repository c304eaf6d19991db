package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

// SimilarityQuery asks the store for chunks close to a probe vector.
type SimilarityQuery struct {
	// Probe is the query embedding or document centroid.
	Probe []float32

	// Threshold is the minimum cosine similarity to return.
	Threshold float64

	// Limit caps the number of rows.
	Limit int

	// Now excludes documents whose TTL has elapsed.
	Now time.Time
}

// VectorStore persists ephemeral documents, their chunks and embeddings.
//
// Deleting a document must remove its chunks and embeddings with it.
// There is no column or field for raw document text.
type VectorStore interface {
	// InsertDocument stores a new document row.
	InsertDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// UpdateDocumentStatus moves a processing document to ready or error.
	// Returns domain.ErrNotFound for a missing document and
	// domain.ErrInvalidTransition if the document is no longer processing.
	UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, reason string) error

	// InsertChunks stores chunks for a document atomically and returns
	// their IDs in input order.
	InsertChunks(ctx context.Context, documentID string, chunks []domain.Chunk) ([]int64, error)

	// InsertEmbeddings stores embeddings for a document's chunks atomically.
	// Every chunk ID must belong to documentID.
	InsertEmbeddings(ctx context.Context, documentID string, embeddings []domain.Embedding) error

	// ListEmbeddings returns a document's embeddings ordered by chunk ID.
	ListEmbeddings(ctx context.Context, documentID string) ([]domain.Embedding, error)

	// CountChunks returns the number of chunks and embeddings a document owns.
	CountChunks(ctx context.Context, documentID string) (chunks, embeddings int, err error)

	// ModelDimension returns the vector dimension previously stored for a model,
	// or 0 when nothing has been stored for it.
	ModelDimension(ctx context.Context, modelName string) (int, error)

	// SimilarityQuery returns chunks of ready, unexpired documents whose
	// cosine similarity to the probe is at least the threshold, ordered by
	// similarity descending then chunk ID ascending.
	SimilarityQuery(ctx context.Context, q SimilarityQuery) ([]domain.SearchResult, error)

	// DeleteDocument removes a document and everything it owns.
	// Returns false without error if the document does not exist.
	DeleteDocument(ctx context.Context, id string) (bool, error)

	// DeleteExpired removes every document with expires_at <= now
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Close releases resources.
	Close() error
}
