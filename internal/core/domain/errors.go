package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrExtractionFailed indicates the input could not be turned into text.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrTextTooShort indicates the extracted text is below the minimum viable length.
	// It is raised before anything is written to the store.
	ErrTextTooShort = errors.New("text too short")

	// ErrEmbeddingProviderFailed indicates the embedding provider could not
	// produce vectors, either terminally or after the single retry.
	ErrEmbeddingProviderFailed = errors.New("embedding provider failed")

	// ErrStoreWriteFailed indicates a chunk, embedding or status write failed.
	ErrStoreWriteFailed = errors.New("store write failed")

	// ErrNotFound indicates a requested entity does not exist.
	// Expired and already-used documents are reported as not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRequest indicates a malformed search or ingest request.
	ErrInvalidRequest = errors.New("invalid request")

	// Supporting errors.

	// ErrProviderTransient marks a provider failure worth one retry
	// (rate limiting, 5xx, network errors, per-call timeouts).
	ErrProviderTransient = errors.New("transient provider error")

	// ErrDimensionMismatch indicates a vector does not have the expected dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidTransition indicates a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnsupportedContentType indicates no extractor handles the content type.
	ErrUnsupportedContentType = errors.New("unsupported content type")
)

// clientErrors are failures caused by the caller's input rather than the system.
var clientErrors = []error{
	ErrExtractionFailed,
	ErrTextTooShort,
	ErrNotFound,
	ErrInvalidRequest,
	ErrUnsupportedContentType,
}

// IsClientError reports whether err was caused by bad input
// as opposed to a failure of the system or one of its collaborators.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
