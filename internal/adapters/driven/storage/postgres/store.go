// Package postgres provides a PostgreSQL + pgvector implementation of the
// driven VectorStore port.
//
// Embeddings live in a dimensionless pgvector column and similarity is
// computed in the database with the cosine distance operator (<=>).
// Chunks and embeddings cascade from their document row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/ephemera/internal/adapters/driven/storage/postgres/migrations"
	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// pingTimeout bounds the connectivity check in NewStore.
const pingTimeout = 5 * time.Second

// Store implements driven.VectorStore on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ driven.VectorStore = (*Store)(nil)

// NewStore connects to dsn, verifies the connection and runs migrations.
// The pgvector extension must be installable by the connecting role.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is empty", domain.ErrInvalidRequest)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs all pending migrations.
func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").
		Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.applyMigration(ctx, version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, version int, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertDocument stores a new document row.
func (s *Store) InsertDocument(ctx context.Context, doc *domain.Document) error {
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, source_type, page_count, status, error_message, metadata, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, doc.ID, doc.Filename, string(doc.SourceType), doc.PageCount, string(doc.Status),
		nullString(doc.ErrorMessage), metadataJSON, doc.CreatedAt.UTC(), doc.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, source_type, page_count, status, error_message, metadata, created_at, expires_at
		FROM documents WHERE id = $1
	`, id)

	var doc domain.Document
	var sourceType, status string
	var errorMessage sql.NullString
	var metadataJSON []byte
	if err := row.Scan(&doc.ID, &doc.Filename, &sourceType, &doc.PageCount, &status,
		&errorMessage, &metadataJSON, &doc.CreatedAt, &doc.ExpiresAt); err != nil {
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
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.ExpiresAt = doc.ExpiresAt.UTC()
	return &doc, nil
}

// UpdateDocumentStatus moves a processing document to ready or error.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, reason string) error {
	if !domain.StatusProcessing.CanTransitionTo(status) {
		return fmt.Errorf("%w: cannot move to %s", domain.ErrInvalidTransition, status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = $1, error_message = $2
		WHERE id = $3 AND status = $4
	`, string(status), nullString(reason), id, string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, "SELECT status FROM documents WHERE id = $1", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading document status: %w", err)
	}
	return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, current, status)
}

// InsertChunks stores chunks for a document in one transaction.
func (s *Store) InsertChunks(ctx context.Context, documentID string, chunks []domain.Chunk) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = $1", documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (document_id, chunk_index, content, token_count, start_offset, end_offset, page_number, section_header)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		if err := stmt.QueryRowContext(ctx, documentID, c.Index, c.Content, c.TokenCount,
			c.StartOffset, c.EndOffset, c.PageNumber, c.SectionHeader).Scan(&ids[i]); err != nil {
			return nil, fmt.Errorf("saving chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return ids, nil
}

// InsertEmbeddings stores embeddings in one transaction. A chunk ID that
// belongs to another document inserts nothing and fails the batch.
func (s *Store) InsertEmbeddings(ctx context.Context, documentID string, embeddings []domain.Embedding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (chunk_id, document_id, model_name, dimension, vector)
		SELECT id, document_id, $1, $2, $3 FROM chunks WHERE id = $4 AND document_id = $5
		ON CONFLICT (chunk_id) DO UPDATE SET
			model_name = EXCLUDED.model_name,
			dimension = EXCLUDED.dimension,
			vector = EXCLUDED.vector
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range embeddings {
		res, err := stmt.ExecContext(ctx, e.ModelName, len(e.Vector), pgvector.NewVector(e.Vector),
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
func (s *Store) ListEmbeddings(ctx context.Context, documentID string) ([]domain.Embedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, model_name, vector FROM embeddings
		WHERE document_id = $1
		ORDER BY chunk_id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.Embedding //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.Embedding
		var v pgvector.Vector
		if err := rows.Scan(&e.ChunkID, &e.ModelName, &v); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		e.Vector = v.Slice()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}
	return out, nil
}

// CountChunks returns how many chunks and embeddings a document owns.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, int, error) {
	var chunks, embeddings int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chunks WHERE document_id = $1),
			(SELECT COUNT(*) FROM embeddings WHERE document_id = $1)
	`, documentID).Scan(&chunks, &embeddings)
	if err != nil {
		return 0, 0, fmt.Errorf("counting chunks: %w", err)
	}
	return chunks, embeddings, nil
}

// ModelDimension returns the dimension stored for a model, or 0.
func (s *Store) ModelDimension(ctx context.Context, modelName string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx,
		"SELECT dimension FROM embeddings WHERE model_name = $1 LIMIT 1", modelName).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading model dimension: %w", err)
	}
	return dim, nil
}

// SimilarityQuery ranks chunks of ready, unexpired documents by cosine
// similarity (1 - cosine distance). Embeddings of another dimension are
// never compared: pgvector rejects mixed-dimension operands.
func (s *Store) SimilarityQuery(ctx context.Context, q driven.SimilarityQuery) ([]domain.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, content, page_number, section_header,
			filename, source_type, metadata, similarity
		FROM (
			SELECT c.id AS chunk_id, c.document_id, c.content, c.page_number, c.section_header,
				d.filename, d.source_type, d.metadata,
				CASE WHEN e.dimension = $2 THEN 1 - (e.vector <=> $1) END AS similarity
			FROM embeddings e
			JOIN chunks c ON c.id = e.chunk_id
			JOIN documents d ON d.id = e.document_id
			WHERE d.status = $3 AND d.expires_at > $4
		) scored
		WHERE similarity >= $5 AND similarity <> 'NaN'::float8
		ORDER BY similarity DESC, chunk_id ASC
		LIMIT $6
	`, pgvector.NewVector(q.Probe), len(q.Probe), string(domain.StatusReady), q.Now.UTC(),
		q.Threshold, limitArg(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("querying similar chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var r domain.SearchResult
		var sourceType string
		var metadataJSON []byte
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &r.PageNumber, &r.SectionHeader,
			&r.Filename, &sourceType, &metadataJSON, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		if r.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
			return nil, err
		}
		r.SourceType = domain.SourceType(sourceType)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}

// DeleteDocument removes a document. Chunks and embeddings cascade.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
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
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE expires_at <= $1", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting expired documents: %w", err)
	}
	return int(n), nil
}

// limitArg maps a non-positive limit to NULL, which PostgreSQL treats as LIMIT ALL.
func limitArg(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
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

func unmarshalMetadata(b []byte) (map[string]string, error) {
	md := map[string]string{}
	if len(b) == 0 {
		return md, nil
	}
	if err := json.Unmarshal(b, &md); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	return md, nil
}
