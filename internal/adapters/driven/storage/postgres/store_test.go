package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// dsnEnv names a disposable database with the pgvector extension available.
const dsnEnv = "EPHEMERA_TEST_POSTGRES_DSN"

var baseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	store, err := NewStore(context.Background(), dsn)
	require.NoError(t, err)
	_, err = store.db.Exec("TRUNCATE documents CASCADE")
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = store.db.Exec("TRUNCATE documents CASCADE")
		assert.NoError(t, store.Close())
	})
	return store
}

func createReadyDocument(t *testing.T, s *Store, id string, vectors ...[]float32) []int64 {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, &domain.Document{
		ID:         id,
		Filename:   id + ".txt",
		SourceType: domain.SourceTypeText,
		Status:     domain.StatusProcessing,
		CreatedAt:  baseTime,
		ExpiresAt:  baseTime.Add(time.Hour),
		Metadata:   map[string]string{"team": "platform"},
	}))

	chunks := make([]domain.Chunk, len(vectors))
	for i := range vectors {
		chunks[i] = domain.Chunk{Index: i, Content: fmt.Sprintf("%s chunk %d", id, i)}
	}
	ids, err := s.InsertChunks(ctx, id, chunks)
	require.NoError(t, err)

	embeddings := make([]domain.Embedding, len(ids))
	for i, chunkID := range ids {
		embeddings[i] = domain.Embedding{ChunkID: chunkID, Vector: vectors[i], ModelName: "test-embed"}
	}
	require.NoError(t, s.InsertEmbeddings(ctx, id, embeddings))
	require.NoError(t, s.UpdateDocumentStatus(ctx, id, domain.StatusReady, ""))
	return ids
}

func TestLimitArg(t *testing.T) {
	assert.False(t, limitArg(0).Valid)
	assert.False(t, limitArg(-1).Valid)
	assert.Equal(t, int64(25), limitArg(25).Int64)
	assert.True(t, limitArg(25).Valid)
}

func TestMetadataRoundTrip(t *testing.T) {
	s, err := marshalMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", s)

	md, err := unmarshalMetadata(nil)
	require.NoError(t, err)
	assert.Empty(t, md)

	_, err = unmarshalMetadata([]byte("not json"))
	assert.Error(t, err)
}

func TestNewStore_EmptyDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestStore_DocumentLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ids := createReadyDocument(t, s, "doc-1", []float32{1, 0, 0}, []float32{0, 1, 0})

	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, doc.Status)
	assert.True(t, baseTime.Equal(doc.CreatedAt))
	assert.Equal(t, "platform", doc.Metadata["team"])

	chunks, embeddings, err := s.CountChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, chunks)
	assert.Equal(t, 2, embeddings)

	listed, err := s.ListEmbeddings(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, ids[0], listed[0].ChunkID)
	assert.Equal(t, []float32{1, 0, 0}, listed[0].Vector)

	dim, err := s.ModelDimension(ctx, "test-embed")
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	err = s.UpdateDocumentStatus(ctx, "doc-1", domain.StatusError, "late failure")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	deleted, err := s.DeleteDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	chunks, embeddings, err = s.CountChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, chunks)
	assert.Zero(t, embeddings)

	_, err = s.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_InsertEmbeddings_RejectsForeignChunk(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ownerIDs := createReadyDocument(t, s, "owner", []float32{1, 0})
	require.NoError(t, s.InsertDocument(ctx, &domain.Document{
		ID: "other", SourceType: domain.SourceTypePaste, Status: domain.StatusProcessing,
		CreatedAt: baseTime, ExpiresAt: baseTime.Add(time.Hour),
	}))

	err := s.InsertEmbeddings(ctx, "other", []domain.Embedding{{ChunkID: ownerIDs[0], Vector: []float32{1, 1}}})
	assert.Error(t, err)
}

func TestStore_SimilarityQuery(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ids := createReadyDocument(t, s, "cloud", []float32{1, 0, 0}, []float32{1, 0, 0})
	createReadyDocument(t, s, "catering", []float32{0, 0, 1})
	createReadyDocument(t, s, "other-model", []float32{1, 0})

	results, err := s.SimilarityQuery(ctx, driven.SimilarityQuery{
		Probe:     []float32{1, 0, 0},
		Threshold: 0.5,
		Now:       baseTime,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[0], results[0].ChunkID, "ties break by lower chunk id")
	assert.Equal(t, ids[1], results[1].ChunkID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)

	limited, err := s.SimilarityQuery(ctx, driven.SimilarityQuery{
		Probe: []float32{1, 0, 0}, Threshold: 0.5, Limit: 1, Now: baseTime,
	})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	expired, err := s.SimilarityQuery(ctx, driven.SimilarityQuery{
		Probe: []float32{1, 0, 0}, Threshold: 0.5, Now: baseTime.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestStore_DeleteExpired(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createReadyDocument(t, s, "old", []float32{1, 0})

	n, err := s.DeleteExpired(ctx, baseTime.Add(59*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteExpired(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.DeleteExpired(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
