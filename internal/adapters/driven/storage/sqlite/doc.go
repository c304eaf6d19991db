// Package sqlite provides the embedded SQLite implementation of the driven
// storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database connection pool backs:
//
//   - VectorStore: ephemeral documents, chunks and embeddings
//   - SchedulerStore: expiry sweep state and history
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Documents have no column for raw text. Chunks and embeddings reference their
// document with ON DELETE CASCADE, so deleting the document row removes them.
//
// # Similarity
//
// SQLite has no vector type. Embeddings are stored as little-endian float32
// blobs and cosine similarity is computed in Go over the candidate rows of
// ready, unexpired documents.
//
// # Data Location
//
// By default, the database is stored at ~/.ephemera/data/ephemera.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode, and write transactions take the lock immediately.
package sqlite
