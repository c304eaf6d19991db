// Package extraction groups the text extractors used by ingestion.
//
// Each sub-package implements driven.Extractor for one family of content
// types:
//
//   - pdf: application/pdf through the poppler pdftotext binary
//   - html: text/html with markup stripped
//   - plaintext: UTF-8 text formats
//
// Extractors never return empty text as success. Failures wrap
// domain.ErrExtractionFailed and carry no document content.
package extraction
