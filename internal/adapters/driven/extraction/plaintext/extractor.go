// Package plaintext extracts text from UTF-8 encoded text formats.
package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// utf8BOM is stripped from the start of input.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Extractor handles plain text documents.
type Extractor struct{}

// New creates a new plain text extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/markdown",
		"text/csv",
		"application/json",
		"application/xml",
	}
}

// Supports reports whether contentType is a handled text type. Parameters
// such as "; charset=utf-8" are ignored.
func (e *Extractor) Supports(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return slices.Contains(e.SupportedMIMETypes(), strings.ToLower(strings.TrimSpace(mediaType)))
}

// Extract validates the encoding and returns the text with line endings
// normalised to \n.
func (e *Extractor) Extract(_ context.Context, data []byte, _ string) (*domain.Extraction, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: input is not valid UTF-8", domain.ErrExtractionFailed)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("%w: input looks binary", domain.ErrExtractionFailed)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: input has no text", domain.ErrExtractionFailed)
	}

	return &domain.Extraction{FullText: text, PageCount: 1}, nil
}
