package domain

import "time"

// MetadataProcessedAt is the metadata key stamped with the ingestion time (RFC 3339, UTC).
// Date-range search filters read it.
const MetadataProcessedAt = "processedAt"

// SourceType identifies how a document reached the system.
type SourceType string

// Supported source types.
const (
	SourceTypePDF   SourceType = "pdf"
	SourceTypeText  SourceType = "text"
	SourceTypePaste SourceType = "paste"
)

// IsValid returns true if the source type is recognised.
func (t SourceType) IsValid() bool {
	switch t {
	case SourceTypePDF, SourceTypeText, SourceTypePaste:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t SourceType) String() string {
	return string(t)
}

// DocumentStatus is the lifecycle state of a document.
// Deletion is terminal and is not represented: deleted documents no longer exist.
type DocumentStatus string

// Document statuses.
const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

// CanTransitionTo reports whether the lifecycle allows moving to next.
// Only processing documents can change status; nothing re-enters processing.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	return s == StatusProcessing && (next == StatusReady || next == StatusError)
}

// String returns the string representation.
func (s DocumentStatus) String() string {
	return string(s)
}

// Document is one ingested file or paste. It never carries the raw text:
// only its chunks are stored, and only until the document expires.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the original file name, or a generated label for pastes.
	Filename string

	// SourceType records how the document was supplied.
	SourceType SourceType

	// PageCount is the number of pages reported by extraction.
	PageCount int

	// Status is the lifecycle state.
	Status DocumentStatus

	// CreatedAt is when the document was registered.
	CreatedAt time.Time

	// ExpiresAt is CreatedAt plus the retention TTL.
	ExpiresAt time.Time

	// ErrorMessage explains an error status. It never contains document text.
	ErrorMessage string

	// Metadata contains caller-supplied tags plus processedAt.
	Metadata map[string]string
}

// IsExpired reports whether the document's TTL has elapsed at now.
func (d *Document) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// DocumentMeta is what the caller supplies when registering a document.
type DocumentMeta struct {
	Filename   string
	SourceType SourceType
	PageCount  int
	Metadata   map[string]string
}

// Chunk is one segment of a document's text and the unit of retrieval.
type Chunk struct {
	// ID is assigned by the store and increases in insertion order.
	ID int64

	// DocumentID links to the owning Document.
	DocumentID string

	// Index is the 0-based position within the document, contiguous.
	Index int

	// Content is the sentences of the segment joined by single spaces.
	Content string

	// TokenCount is the estimated token count.
	TokenCount int

	// StartOffset and EndOffset are byte offsets into the segmented text.
	StartOffset int
	EndOffset   int

	// PageNumber is the 1-based page, or 0 when the source has no pages.
	PageNumber int

	// SectionHeader is the nearest structural header at or before StartOffset.
	SectionHeader string
}

// Embedding is the vector representation of exactly one chunk.
type Embedding struct {
	ChunkID   int64
	Vector    []float32
	ModelName string
}

// ChunkVector pairs a persisted chunk ID with its vector.
type ChunkVector struct {
	ChunkID   int64
	Vector    []float32
	ModelName string
}
