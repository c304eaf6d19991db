package segmenter

import (
	"fmt"
	"strings"
	"testing"
)

// longDocument returns n ten-word sentences (13 estimated tokens each).
func longDocument(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			if i%12 == 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteString(" ")
			}
		}
		fmt.Fprintf(&b, "sentence %d covers the migration plan for this workload today.", i)
	}
	return b.String()
}

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		s := New()
		if s.TargetTokens() != 512 || s.OverlapTokens() != 64 || s.MinTokens() != 5 {
			t.Errorf("unexpected defaults: %d/%d/%d", s.TargetTokens(), s.OverlapTokens(), s.MinTokens())
		}
	})

	t.Run("custom values", func(t *testing.T) {
		s := New(WithTargetTokens(100), WithOverlapTokens(10), WithMinTokens(2))
		if s.TargetTokens() != 100 || s.OverlapTokens() != 10 || s.MinTokens() != 2 {
			t.Errorf("options not applied: %d/%d/%d", s.TargetTokens(), s.OverlapTokens(), s.MinTokens())
		}
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		s := New(WithTargetTokens(0), WithOverlapTokens(-1), WithMinTokens(-3))
		if s.TargetTokens() != 512 || s.OverlapTokens() != 64 || s.MinTokens() != 5 {
			t.Errorf("invalid options changed defaults")
		}
	})

	t.Run("overlap exceeds target", func(t *testing.T) {
		s := New(WithTargetTokens(80), WithOverlapTokens(200))
		if s.OverlapTokens() >= s.TargetTokens() {
			t.Errorf("overlap %d should be reduced below target %d", s.OverlapTokens(), s.TargetTokens())
		}
	})
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 2},
		{"one two three", 4},
		{"a b c d e f g h i j", 13},
		{strings.Repeat("word ", 100), 130},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestSegment_Empty(t *testing.T) {
	s := New()
	for _, text := range []string{"", "   ", "\n\n\t  \n"} {
		if chunks := s.Segment(text, Meta{}); len(chunks) != 0 {
			t.Errorf("Segment(%q) produced %d chunks", text, len(chunks))
		}
	}
}

func TestSegment_ThreeSentences(t *testing.T) {
	s := New()
	chunks := s.Segment("Sentence one. Sentence two. Sentence three.", Meta{})

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Content != "Sentence one. Sentence two. Sentence three." {
		t.Errorf("unexpected content %q", c.Content)
	}
	if c.TokenCount != 9 {
		t.Errorf("expected 9 tokens, got %d", c.TokenCount)
	}
	if c.Index != 0 || c.StartOffset != 0 || c.EndOffset != 43 {
		t.Errorf("unexpected position: index=%d start=%d end=%d", c.Index, c.StartOffset, c.EndOffset)
	}
	if c.PageNumber != 0 {
		t.Errorf("unpaged text should not carry a page number, got %d", c.PageNumber)
	}
}

func TestSegment_BelowMinimum(t *testing.T) {
	s := New()
	if chunks := s.Segment("Hi there.", Meta{}); len(chunks) != 0 {
		t.Errorf("expected no chunks below the minimum, got %d", len(chunks))
	}
}

func TestSegment_LongDocument(t *testing.T) {
	s := New()
	text := longDocument(200)
	chunks := s.Segment(text, Meta{})

	if len(chunks) < 2 {
		t.Fatalf("expected several chunks for 2000 words, got %d", len(chunks))
	}

	maxTokens := s.TargetTokens() + s.OverlapTokens()
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.TokenCount > maxTokens || c.TokenCount < s.MinTokens() {
			t.Errorf("chunk %d has %d tokens", i, c.TokenCount)
		}
		if c.StartOffset >= c.EndOffset {
			t.Errorf("chunk %d has empty span [%d,%d)", i, c.StartOffset, c.EndOffset)
		}
		if want := strings.Join(strings.Fields(text[c.StartOffset:c.EndOffset]), " "); c.Content != want {
			t.Errorf("chunk %d content does not match its span", i)
		}
	}

	t.Run("overlap", func(t *testing.T) {
		for i := 0; i+1 < len(chunks); i++ {
			cur, next := chunks[i], chunks[i+1]
			if next.StartOffset >= cur.EndOffset {
				t.Fatalf("chunks %d and %d do not overlap", i, i+1)
			}
			shared := EstimateTokens(text[next.StartOffset:cur.EndOffset])
			// Overlap is whole sentences, so it falls short by at most one sentence.
			if shared > s.OverlapTokens() || shared < s.OverlapTokens()-13 {
				t.Errorf("chunks %d/%d share %d tokens, want about %d", i, i+1, shared, s.OverlapTokens())
			}
		}
	})

	t.Run("coverage", func(t *testing.T) {
		if chunks[0].StartOffset != 0 {
			t.Errorf("first chunk starts at %d", chunks[0].StartOffset)
		}
		if last := chunks[len(chunks)-1]; last.EndOffset != len(text) {
			t.Errorf("last chunk ends at %d, text length %d", last.EndOffset, len(text))
		}
		for i := 0; i+1 < len(chunks); i++ {
			if chunks[i+1].StartOffset > chunks[i].EndOffset {
				t.Errorf("gap between chunks %d and %d", i, i+1)
			}
			if chunks[i+1].EndOffset <= chunks[i].EndOffset {
				t.Errorf("chunk %d adds no new text", i+1)
			}
		}
	})

	t.Run("sentence integrity", func(t *testing.T) {
		starts := map[int]bool{}
		ends := map[int]bool{}
		for _, sent := range splitSentences(text, scanLines(text)) {
			starts[sent.start] = true
			ends[sent.end] = true
		}
		for i, c := range chunks {
			if !starts[c.StartOffset] || !ends[c.EndOffset] {
				t.Errorf("chunk %d boundary falls inside a sentence", i)
			}
		}
	})
}

func TestSegment_OversizedSentence(t *testing.T) {
	s := New(WithTargetTokens(10), WithOverlapTokens(2))
	long := strings.TrimSpace(strings.Repeat("word ", 20)) + "."
	text := "Short opener sentence here. " + long + " Short closing sentence here."

	chunks := s.Segment(text, Meta{})

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Content, long) {
			found = true
			if c.TokenCount < 26 {
				t.Errorf("oversized sentence chunk reports %d tokens", c.TokenCount)
			}
		}
	}
	if !found {
		t.Fatal("oversized sentence was split or dropped")
	}
	for i := 0; i+1 < len(chunks); i++ {
		if chunks[i+1].EndOffset <= chunks[i].EndOffset {
			t.Errorf("chunk %d contains only repeated text", i+1)
		}
	}
}

func TestSegment_SplitsOnPunctuation(t *testing.T) {
	text := "Is this working? Yes it is! The figure is 3.14 today. 1. Numbered items stay whole."
	sentences := splitSentences(text, scanLines(text))

	want := []string{
		"Is this working?",
		"Yes it is!",
		"The figure is 3.14 today.",
		"1. Numbered items stay whole.",
	}
	if len(sentences) != len(want) {
		t.Fatalf("expected %d sentences, got %d", len(want), len(sentences))
	}
	for i, sent := range sentences {
		if sent.text != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, sent.text, want[i])
		}
	}
}

func TestSplitSentences_HardWrappedProse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "keyword at line start",
			text: "The migration plan covers every workload that is a\npart of the legacy estate. It ends next year.\n",
			want: []string{
				"The migration plan covers every workload that is a part of the legacy estate.",
				"It ends next year.",
			},
		},
		{
			name: "title case line mid sentence",
			text: "We signed the contract with the\nDepartment of Defense\nlast spring. It was fine.",
			want: []string{
				"We signed the contract with the Department of Defense last spring.",
				"It was fine.",
			},
		},
		{
			name: "header after finished sentence",
			text: "The review closed on time.\nNext Steps\nWe will meet again in May.",
			want: []string{
				"The review closed on time.",
				"Next Steps",
				"We will meet again in May.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSentences(tt.text, scanLines(tt.text))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d sentences, got %d: %+v", len(tt.want), len(got), got)
			}
			for i, sent := range got {
				if sent.text != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, sent.text, tt.want[i])
				}
			}
		})
	}
}

func TestSegment_WrappedProseHasNoHeader(t *testing.T) {
	text := "We signed the contract with the\nDepartment of Defense\nlast spring. It was fine and everyone agreed."

	chunks := New().Segment(text, Meta{})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].SectionHeader != "" {
		t.Errorf("wrapped prose taken as header %q", chunks[0].SectionHeader)
	}
}

func TestSegment_SectionHeaders(t *testing.T) {
	text := strings.Join([]string{
		"1. Introduction",
		"This opening paragraph explains the purpose of the document in plain words.",
		"It continues with a second sentence about the overall goals.",
		"",
		"SECTION 2: SCOPE",
		"The scope covers every system that stores customer records for the team.",
		"Nothing outside that boundary is included in this review at all.",
	}, "\n")

	s := New(WithTargetTokens(30), WithOverlapTokens(0))
	chunks := s.Segment(text, Meta{})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	if chunks[0].SectionHeader != "1. Introduction" {
		t.Errorf("first chunk header = %q", chunks[0].SectionHeader)
	}
	last := chunks[len(chunks)-1]
	if last.SectionHeader != "SECTION 2: SCOPE" {
		t.Errorf("last chunk header = %q", last.SectionHeader)
	}
}

func TestSegment_StampsPageNumber(t *testing.T) {
	chunks := New().Segment("Page text with enough words to pass the minimum.", Meta{PageNumber: 7})
	if len(chunks) != 1 || chunks[0].PageNumber != 7 {
		t.Fatalf("expected one chunk on page 7, got %+v", chunks)
	}
}

func TestSegmentPages(t *testing.T) {
	pages := []string{
		"Chapter One\nThe first page has a couple of sentences. It talks about setup.",
		"   ",
		"The third page continues the story with more detail. It ends here.",
	}

	s := New()
	chunks := s.SegmentPages(pages)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	full := JoinPages(pages)
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if want := strings.Join(strings.Fields(full[c.StartOffset:c.EndOffset]), " "); c.Content != want {
			t.Errorf("chunk %d offsets do not address the joined pages", i)
		}
	}
	if chunks[0].PageNumber != 1 || chunks[1].PageNumber != 3 {
		t.Errorf("unexpected page numbers %d, %d", chunks[0].PageNumber, chunks[1].PageNumber)
	}
	if chunks[1].SectionHeader != "Chapter One" {
		t.Errorf("header should carry across pages, got %q", chunks[1].SectionHeader)
	}
}

func TestIsHeader(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"1. Introduction", true},
		{"12. Payment Terms and Conditions", true},
		{"Section 4 - Liability", true},
		{"APPENDIX B", true},
		{"Chapter One", true},
		{"Article 5:", true},
		{"appendix b", false},
		{"part of the legacy estate. It ends next year.", false},
		{"Part of the budget went unspent", false},
		{"Schedule a review with the team", false},
		{"Requirements:", true},
		{"EXECUTIVE SUMMARY", true},
		{"Statement of Work", true},
		{"Project Background", true},
		{"", false},
		{"   ", false},
		{"This is an ordinary sentence.", false},
		{"the quick brown fox", false},
		{"Partial results were reported", false},
		{"a", false},
		{strings.Repeat("LONG ", 20), false},
	}

	for _, tt := range tests {
		if got := isHeader(tt.line); got != tt.want {
			t.Errorf("isHeader(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
