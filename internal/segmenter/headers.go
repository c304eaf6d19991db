package segmenter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxHeaderLength is the exclusive upper bound on a header line's length.
const maxHeaderLength = 80

var numberedPrefix = regexp.MustCompile(`^\d+\.`)

var headerKeywords = []string{
	"section", "chapter", "appendix", "part", "article", "annex", "schedule", "exhibit",
}

// minorWords may stay lowercase inside a Title Case header.
var minorWords = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true, "by": true, "for": true,
	"in": true, "of": true, "on": true, "or": true, "the": true, "to": true, "with": true,
}

type header struct {
	offset int
	text   string
}

// collectHeaders records header lines by the offset of their first
// non-space character, which is where their sentence starts.
func collectHeaders(text string, lines []line) []header {
	var headers []header
	for _, ln := range lines {
		if !ln.header {
			continue
		}
		raw := text[ln.start:ln.end]
		trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
		headers = append(headers, header{
			offset: ln.start + len(raw) - len(trimmed),
			text:   strings.TrimSpace(trimmed),
		})
	}
	return headers
}

// isHeader applies the structural heuristics to one line.
func isHeader(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" || utf8.RuneCountInString(s) >= maxHeaderLength {
		return false
	}

	if numberedPrefix.MatchString(s) {
		return true
	}

	if hasKeywordPrefix(s) {
		return true
	}

	if strings.HasSuffix(s, ":") {
		return true
	}

	if last := s[len(s)-1]; last == '.' || last == '!' || last == '?' {
		return false
	}

	return isAllCaps(s) || isTitleCase(s)
}

// hasKeywordPrefix matches "Section 4", "APPENDIX B" or "Chapter One": a
// capitalised keyword followed by a number, a letter or a capitalised word.
// "Part of the estate" and "schedule a call" do not match.
func hasKeywordPrefix(s string) bool {
	for _, kw := range headerKeywords {
		if len(s) < len(kw) {
			continue
		}
		word := s[:len(kw)]
		if word != strings.ToUpper(kw) && word != strings.ToUpper(kw[:1])+kw[1:] {
			continue
		}
		rest := s[len(kw):]
		if rest == "" {
			return true
		}
		first, _ := utf8.DecodeRuneInString(rest)
		if unicode.IsLetter(first) {
			continue
		}
		next := strings.TrimLeftFunc(rest, func(r rune) bool { return unicode.IsSpace(r) || r == '-' || r == '.' })
		if next == "" {
			return true
		}
		first, _ = utf8.DecodeRuneInString(next)
		if unicode.IsDigit(first) || unicode.IsUpper(first) {
			return true
		}
	}
	return false
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if unicode.IsLower(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

func isTitleCase(s string) bool {
	capitalised := 0
	for i, word := range strings.Fields(s) {
		trimmed := strings.TrimLeftFunc(word, func(r rune) bool { return !unicode.IsLetter(r) })
		if trimmed == "" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(trimmed)
		switch {
		case unicode.IsUpper(first):
			capitalised++
		case i > 0 && minorWords[strings.ToLower(trimmed)]:
		default:
			return false
		}
	}
	return capitalised > 0
}

// headerAt returns the nearest header at or before offset.
func headerAt(headers []header, offset int, inherited string) string {
	found := inherited
	for _, h := range headers {
		if h.offset > offset {
			break
		}
		found = h.text
	}
	return found
}
