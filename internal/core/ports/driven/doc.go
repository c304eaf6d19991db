// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EmbeddingProvider: Turns text into vectors (OpenAI, Ollama)
//   - VectorStore: Documents, chunks and embeddings with cascade delete
//     and similarity query (SQLite, Postgres/pgvector, memory)
//   - Extractor: Recovers text from uploaded bytes (pdftotext, HTML, plain text)
//   - ConfigStore: Application configuration
//   - SchedulerStore: Background task state and history
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Metrics: Pipeline and search instrumentation. Nil means no metrics.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
