// Package segmenter splits text into sentence-bounded, token-budgeted,
// overlapping chunks and labels each with its nearest structural header.
package segmenter

import (
	"strings"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

// pageSeparator joins pages into the text that paged chunk offsets address.
const pageSeparator = "\f"

// Meta carries per-call information stamped on every chunk.
type Meta struct {
	// PageNumber is the 1-based page the text came from, or 0 for unpaged text.
	PageNumber int
}

// Segmenter is a pure, deterministic chunker. It is safe for concurrent use.
type Segmenter struct {
	targetTokens  int
	overlapTokens int
	minTokens     int
}

// Option configures the segmenter.
type Option func(*Segmenter)

// WithTargetTokens sets the token budget a chunk fills before it is emitted.
func WithTargetTokens(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.targetTokens = n
		}
	}
}

// WithOverlapTokens sets how many trailing tokens carry into the next chunk.
func WithOverlapTokens(n int) Option {
	return func(s *Segmenter) {
		if n >= 0 {
			s.overlapTokens = n
		}
	}
}

// WithMinTokens sets the smallest final chunk that is still emitted.
func WithMinTokens(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.minTokens = n
		}
	}
}

// New creates a segmenter with the given options.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		targetTokens:  domain.DefaultTargetTokens,
		overlapTokens: domain.DefaultOverlapTokens,
		minTokens:     domain.DefaultMinTokens,
	}

	for _, opt := range opts {
		opt(s)
	}

	// Overlap must leave room for new content.
	if s.overlapTokens >= s.targetTokens {
		s.overlapTokens = s.targetTokens / 8
	}

	return s
}

// TargetTokens returns the chunk token budget.
func (s *Segmenter) TargetTokens() int { return s.targetTokens }

// OverlapTokens returns the overlap budget.
func (s *Segmenter) OverlapTokens() int { return s.overlapTokens }

// MinTokens returns the minimum size of an emitted chunk.
func (s *Segmenter) MinTokens() int { return s.minTokens }

// EstimateTokens returns ceil(words * 1.3), computed in integers.
func EstimateTokens(text string) int {
	return estimateWords(len(strings.Fields(text)))
}

func estimateWords(words int) int {
	return (words*13 + 9) / 10
}

// Segment splits text into chunks indexed from 0. Blank text yields no chunks.
// A sentence larger than the budget becomes a chunk on its own; sentences
// are never split.
func (s *Segmenter) Segment(text string, meta Meta) []domain.Chunk {
	chunks, _ := s.segment(text, meta, "")
	return chunks
}

// SegmentPages segments each page independently, numbers pages from 1 and
// reindexes chunks across the whole document. Offsets address the pages
// joined by form feeds, which is how pdftotext separates them.
func (s *Segmenter) SegmentPages(pages []string) []domain.Chunk {
	var (
		all    []domain.Chunk
		offset int
		header string
	)

	for i, page := range pages {
		var chunks []domain.Chunk
		chunks, header = s.segment(page, Meta{PageNumber: i + 1}, header)
		for _, c := range chunks {
			c.Index = len(all)
			c.StartOffset += offset
			c.EndOffset += offset
			all = append(all, c)
		}
		offset += len(page) + len(pageSeparator)
	}

	return all
}

// JoinPages returns the text SegmentPages offsets refer to.
func JoinPages(pages []string) string {
	return strings.Join(pages, pageSeparator)
}

// segment chunks one text. inherited is the header in force before the text
// starts; the header in force at its end is returned for the next page.
func (s *Segmenter) segment(text string, meta Meta, inherited string) ([]domain.Chunk, string) {
	if strings.TrimSpace(text) == "" {
		return nil, inherited
	}

	lines := scanLines(text)
	headers := collectHeaders(text, lines)
	sentences := splitSentences(text, lines)

	var (
		chunks []domain.Chunk
		buf    []sentence
		tokens int
		fresh  int // sentences in buf not yet part of an emitted chunk
	)

	emit := func() {
		chunks = append(chunks, s.build(buf, tokens, len(chunks), meta, headers, inherited))
		fresh = 0
	}

	for _, sent := range sentences {
		if len(buf) > 0 && tokens+sent.tokens > s.targetTokens {
			if fresh > 0 {
				emit()
				for len(buf) > 0 && tokens > s.overlapTokens {
					tokens -= buf[0].tokens
					buf = buf[1:]
				}
			}
			// A chunk must never consist of repeated text only.
			for len(buf) > 0 && tokens+sent.tokens > s.targetTokens {
				tokens -= buf[0].tokens
				buf = buf[1:]
			}
		}
		buf = append(buf, sent)
		tokens += sent.tokens
		fresh++
	}

	if fresh > 0 && tokens >= s.minTokens {
		emit()
	}

	last := inherited
	if len(headers) > 0 {
		last = headers[len(headers)-1].text
	}
	return chunks, last
}

func (s *Segmenter) build(buf []sentence, tokens, index int, meta Meta, headers []header, inherited string) domain.Chunk {
	parts := make([]string, len(buf))
	for i, sent := range buf {
		parts[i] = sent.text
	}

	start := buf[0].start
	return domain.Chunk{
		Index:         index,
		Content:       strings.Join(parts, " "),
		TokenCount:    tokens,
		StartOffset:   start,
		EndOffset:     buf[len(buf)-1].end,
		PageNumber:    meta.PageNumber,
		SectionHeader: headerAt(headers, start, inherited),
	}
}
