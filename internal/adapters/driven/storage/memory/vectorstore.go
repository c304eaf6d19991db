package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

// VectorStore is an in-memory implementation of driven.VectorStore.
// Deleting a document drops its chunks and embeddings with it.
type VectorStore struct {
	mu         sync.RWMutex
	nextID     int64
	documents  map[string]domain.Document
	chunks     map[string][]domain.Chunk // by document ID, in insertion order
	embeddings map[int64]domain.Embedding
}

// NewVectorStore creates a new in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		documents:  make(map[string]domain.Document),
		chunks:     make(map[string][]domain.Chunk),
		embeddings: make(map[int64]domain.Embedding),
	}
}

// InsertDocument stores a new document.
func (s *VectorStore) InsertDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	stored := *doc
	stored.Metadata = maps.Clone(doc.Metadata)
	s.documents[doc.ID] = stored
	return nil
}

// GetDocument retrieves a document by ID.
func (s *VectorStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc.Metadata = maps.Clone(doc.Metadata)
	return &doc, nil
}

// UpdateDocumentStatus moves a processing document to ready or error.
func (s *VectorStore) UpdateDocumentStatus(_ context.Context, id string, status domain.DocumentStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !doc.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, doc.Status, status)
	}
	doc.Status = status
	doc.ErrorMessage = reason
	s.documents[id] = doc
	return nil
}

// InsertChunks stores chunks and assigns increasing IDs.
func (s *VectorStore) InsertChunks(_ context.Context, documentID string, chunks []domain.Chunk) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[documentID]; !ok {
		return nil, domain.ErrNotFound
	}

	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		s.nextID++
		c.ID = s.nextID
		c.DocumentID = documentID
		s.chunks[documentID] = append(s.chunks[documentID], c)
		ids[i] = c.ID
	}
	return ids, nil
}

// InsertEmbeddings stores embeddings for chunks owned by the document.
func (s *VectorStore) InsertEmbeddings(_ context.Context, documentID string, embeddings []domain.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := make(map[int64]bool, len(s.chunks[documentID]))
	for _, c := range s.chunks[documentID] {
		owned[c.ID] = true
	}
	for _, e := range embeddings {
		if !owned[e.ChunkID] {
			return fmt.Errorf("chunk %d does not belong to document %s", e.ChunkID, documentID)
		}
	}
	for _, e := range embeddings {
		e.Vector = append([]float32(nil), e.Vector...)
		s.embeddings[e.ChunkID] = e
	}
	return nil
}

// ListEmbeddings returns a document's embeddings ordered by chunk ID.
func (s *VectorStore) ListEmbeddings(_ context.Context, documentID string) ([]domain.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Embedding
	for _, c := range s.chunks[documentID] {
		if e, ok := s.embeddings[c.ID]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// CountChunks returns how many chunks and embeddings a document owns.
func (s *VectorStore) CountChunks(_ context.Context, documentID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := s.chunks[documentID]
	embedded := 0
	for _, c := range chunks {
		if _, ok := s.embeddings[c.ID]; ok {
			embedded++
		}
	}
	return len(chunks), embedded, nil
}

// ModelDimension returns the dimension stored for a model, or 0.
func (s *VectorStore) ModelDimension(_ context.Context, modelName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.embeddings {
		if e.ModelName == modelName {
			return len(e.Vector), nil
		}
	}
	return 0, nil
}

// SimilarityQuery scans every embedding of ready, unexpired documents.
func (s *VectorStore) SimilarityQuery(_ context.Context, q driven.SimilarityQuery) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []domain.SearchResult
	for docID, chunks := range s.chunks {
		doc := s.documents[docID]
		if doc.Status != domain.StatusReady || doc.IsExpired(q.Now) {
			continue
		}
		for _, c := range chunks {
			e, ok := s.embeddings[c.ID]
			if !ok {
				continue
			}
			sim := domain.CosineSimilarity(q.Probe, e.Vector)
			if sim < q.Threshold {
				continue
			}
			results = append(results, domain.SearchResult{
				ChunkID:       c.ID,
				DocumentID:    docID,
				Filename:      doc.Filename,
				SourceType:    doc.SourceType,
				Content:       c.Content,
				Similarity:    sim,
				PageNumber:    c.PageNumber,
				SectionHeader: c.SectionHeader,
				Metadata:      maps.Clone(doc.Metadata),
			})
		}
	}

	domain.SortResults(results)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// DeleteDocument removes a document with its chunks and embeddings.
func (s *VectorStore) DeleteDocument(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id), nil
}

// DeleteExpired removes every document with ExpiresAt <= now.
func (s *VectorStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, doc := range s.documents {
		if doc.IsExpired(now) && s.deleteLocked(id) {
			count++
		}
	}
	return count, nil
}

// Close releases resources.
func (s *VectorStore) Close() error {
	return nil
}

// ChunkCount returns the total number of stored chunks across all documents.
func (s *VectorStore) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, chunks := range s.chunks {
		n += len(chunks)
	}
	return n
}

// EmbeddingCount returns the total number of stored embeddings.
func (s *VectorStore) EmbeddingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.embeddings)
}

// Chunks returns a copy of a document's chunks in index order.
func (s *VectorStore) Chunks(documentID string) []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.chunks[documentID]...)
}

// DocumentCount returns the number of stored documents.
func (s *VectorStore) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

func (s *VectorStore) deleteLocked(id string) bool {
	if _, ok := s.documents[id]; !ok {
		return false
	}
	for _, c := range s.chunks[id] {
		delete(s.embeddings, c.ID)
	}
	delete(s.chunks, id)
	delete(s.documents, id)
	return true
}
