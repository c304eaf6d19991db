package driving

import (
	"context"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

// SearchService retrieves chunks similar to a query or to a stored document.
type SearchService interface {
	// Search runs a text or document query. A document query deletes the
	// document afterwards; a second query for the same document returns
	// domain.ErrNotFound.
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)
}
