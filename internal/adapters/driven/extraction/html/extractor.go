// Package html extracts readable text from HTML documents.
package html

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor strips markup from HTML and keeps the visible text.
type Extractor struct{}

// New creates a new HTML extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Supports reports whether contentType is HTML. Parameters are ignored.
func (e *Extractor) Supports(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return slices.Contains(e.SupportedMIMETypes(), strings.ToLower(strings.TrimSpace(mediaType)))
}

// Extract returns the text of data with block elements on their own lines.
// The document title, when present, becomes the first line so it can be
// picked up as a section header.
func (e *Extractor) Extract(_ context.Context, data []byte, _ string) (*domain.Extraction, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: HTML is not valid UTF-8", domain.ErrExtractionFailed)
	}

	content := string(data)
	text := stripHTML(content)
	if title := extractTitle(content); title != "" && !strings.HasPrefix(text, title) {
		text = title + "\n\n" + text
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: HTML has no visible text", domain.ErrExtractionFailed)
	}

	return &domain.Extraction{FullText: text, PageCount: 1}, nil
}

// Pre-compiled expressions for reading markup.
var (
	titleTag         = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlComments     = regexp.MustCompile(`(?s)<!--.*?-->`)
	closeBlockTags   = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockTags    = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)(\s[^>]*)?>`)
	lineBreakTags    = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags          = regexp.MustCompile(`<[^>]+>`)
	horizontalSpaces = regexp.MustCompile(`[ \t]+`)
)

// invisibleTags are removed together with their content.
var invisibleTags = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script(\s[^>]*)?>.*?</script>`),
	regexp.MustCompile(`(?is)<style(\s[^>]*)?>.*?</style>`),
	regexp.MustCompile(`(?is)<noscript(\s[^>]*)?>.*?</noscript>`),
	regexp.MustCompile(`(?is)<head(\s[^>]*)?>.*?</head>`),
	regexp.MustCompile(`(?is)<svg(\s[^>]*)?>.*?</svg>`),
}

func extractTitle(content string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) < 2 {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(matches[1]))
}

// stripHTML removes tags and returns one trimmed line per block of text.
// Blank lines are dropped.
func stripHTML(content string) string {
	for _, re := range invisibleTags {
		content = re.ReplaceAllString(content, "")
	}
	content = htmlComments.ReplaceAllString(content, "")
	content = openBlockTags.ReplaceAllString(content, "\n")
	content = closeBlockTags.ReplaceAllString(content, "\n")
	content = lineBreakTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = horizontalSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	result := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}
