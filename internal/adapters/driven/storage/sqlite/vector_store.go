package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// vectorStore implements driven.VectorStore.
type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

// InsertDocument stores a new document row.
func (s *vectorStore) InsertDocument(ctx context.Context, doc *domain.Document) error {
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, source_type, page_count, status, error_message, metadata, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Filename, string(doc.SourceType), doc.PageCount, string(doc.Status),
		nullString(doc.ErrorMessage), metadataJSON, unixNano(doc.CreatedAt), unixNano(doc.ExpiresAt))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *vectorStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, filename, source_type, page_count, status, error_message, metadata, created_at, expires_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// UpdateDocumentStatus moves a processing document to ready or error.
func (s *vectorStore) UpdateDocumentStatus(
	ctx context.Context, id string, status domain.DocumentStatus, reason string,
) error {
	if !domain.StatusProcessing.CanTransitionTo(status) {
		return fmt.Errorf("%w: cannot move to %s", domain.ErrInvalidTransition, status)
	}

	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, error_message = ?
		WHERE id = ? AND status = ?
	`, string(status), nullString(reason), id, string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = s.store.db.QueryRowContext(ctx, "SELECT status FROM documents WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading document status: %w", err)
	}
	return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, current, status)
}

// InsertChunks stores chunks for a document in one transaction.
func (s *vectorStore) InsertChunks(ctx context.Context, documentID string, chunks []domain.Chunk) ([]int64, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (document_id, chunk_index, content, token_count, start_offset, end_offset, page_number, section_header)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		res, err := stmt.ExecContext(ctx, documentID, c.Index, c.Content, c.TokenCount,
			c.StartOffset, c.EndOffset, c.PageNumber, c.SectionHeader)
		if err != nil {
			return nil, fmt.Errorf("saving chunk %d: %w", c.Index, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("reading chunk id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return ids, nil
}

// InsertEmbeddings stores embeddings in one transaction. A chunk ID that
// belongs to another document inserts nothing and fails the batch.
func (s *vectorStore) InsertEmbeddings(ctx context.Context, documentID string, embeddings []domain.Embedding) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (chunk_id, document_id, model_name, dimension, vector)
		SELECT id, document_id, ?, ?, ? FROM chunks WHERE id = ? AND document_id = ?
		ON CONFLICT(chunk_id) DO UPDATE SET
			model_name = excluded.model_name,
			dimension = excluded.dimension,
			vector = excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range embeddings {
		res, err := stmt.ExecContext(ctx, e.ModelName, len(e.Vector), float32SliceToBytes(e.Vector),
			e.ChunkID, documentID)
		if err != nil {
			return fmt.Errorf("saving embedding for chunk %d: %w", e.ChunkID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("chunk %d does not belong to document %s", e.ChunkID, documentID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListEmbeddings returns a document's embeddings ordered by chunk ID.
func (s *vectorStore) ListEmbeddings(ctx context.Context, documentID string) ([]domain.Embedding, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT chunk_id, model_name, vector FROM embeddings
		WHERE document_id = ?
		ORDER BY chunk_id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.Embedding //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.Embedding
		var blob []byte
		if err := rows.Scan(&e.ChunkID, &e.ModelName, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		e.Vector = bytesToFloat32Slice(blob)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}
	return out, nil
}

// CountChunks returns how many chunks and embeddings a document owns.
func (s *vectorStore) CountChunks(ctx context.Context, documentID string) (int, int, error) {
	var chunks, embeddings int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chunks WHERE document_id = ?),
			(SELECT COUNT(*) FROM embeddings WHERE document_id = ?)
	`, documentID, documentID).Scan(&chunks, &embeddings)
	if err != nil {
		return 0, 0, fmt.Errorf("counting chunks: %w", err)
	}
	return chunks, embeddings, nil
}

// ModelDimension returns the dimension stored for a model, or 0.
func (s *vectorStore) ModelDimension(ctx context.Context, modelName string) (int, error) {
	var dim int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT dimension FROM embeddings WHERE model_name = ? LIMIT 1", modelName).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading model dimension: %w", err)
	}
	return dim, nil
}

// SimilarityQuery scores every embedding of ready, unexpired documents that
// has the probe's dimension.
func (s *vectorStore) SimilarityQuery(ctx context.Context, q driven.SimilarityQuery) ([]domain.SearchResult, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.content, c.page_number, c.section_header,
			d.filename, d.source_type, d.metadata, e.vector
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = e.document_id
		WHERE d.status = ? AND d.expires_at > ? AND e.dimension = ?
	`, string(domain.StatusReady), unixNano(q.Now), len(q.Probe))
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	// Metadata is decoded once per document.
	metadata := make(map[string]map[string]string)
	var results []domain.SearchResult
	for rows.Next() {
		var r domain.SearchResult
		var sourceType, metadataJSON string
		var blob []byte
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &r.PageNumber, &r.SectionHeader,
			&r.Filename, &sourceType, &metadataJSON, &blob); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}

		r.Similarity = domain.CosineSimilarity(q.Probe, bytesToFloat32Slice(blob))
		if r.Similarity < q.Threshold {
			continue
		}

		r.SourceType = domain.SourceType(sourceType)
		md, ok := metadata[r.DocumentID]
		if !ok {
			if md, err = unmarshalMetadata(metadataJSON); err != nil {
				return nil, err
			}
			metadata[r.DocumentID] = md
		}
		r.Metadata = md
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}

	domain.SortResults(results)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// DeleteDocument removes a document. Chunks and embeddings cascade.
func (s *vectorStore) DeleteDocument(ctx context.Context, id string) (bool, error) {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired removes every document with expires_at <= now.
func (s *vectorStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE expires_at <= ?", unixNano(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting expired documents: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying store.
func (s *vectorStore) Close() error {
	return s.store.Close()
}

// scanDocument scans a single document row.
func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var sourceType, status, metadataJSON string
	var errorMessage sql.NullString
	var createdAt, expiresAt int64

	if err := row.Scan(&doc.ID, &doc.Filename, &sourceType, &doc.PageCount, &status,
		&errorMessage, &metadataJSON, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	metadata, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}

	doc.SourceType = domain.SourceType(sourceType)
	doc.Status = domain.DocumentStatus(status)
	doc.ErrorMessage = errorMessage.String
	doc.Metadata = metadata
	doc.CreatedAt = fromUnixNano(createdAt)
	doc.ExpiresAt = fromUnixNano(expiresAt)
	return &doc, nil
}

func marshalMetadata(md map[string]string) (string, error) {
	if md == nil {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(s string) (map[string]string, error) {
	md := map[string]string{}
	if s == "" {
		return md, nil
	}
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	return md, nil
}
