package driven

import (
	"context"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

// Extractor recovers text from uploaded bytes.
type Extractor interface {
	// Supports reports whether the extractor handles the content type.
	Supports(contentType string) bool

	// Extract returns the text of data. Failures are reported as errors,
	// never as empty text.
	Extract(ctx context.Context, data []byte, contentType string) (*domain.Extraction, error)
}

// CommandRunner executes external commands. Abstracted so extractors
// that shell out can be tested without the binary installed.
type CommandRunner interface {
	// Run executes the named command and returns its standard output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}
