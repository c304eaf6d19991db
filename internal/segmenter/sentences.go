package segmenter

import "strings"

// sentence is the atomic unit of segmentation.
type sentence struct {
	text   string // whitespace-normalised
	start  int    // byte offset of the first character
	end    int    // byte offset after the last character
	tokens int
}

// line is one line of input with its header classification.
type line struct {
	start, end int // content bounds, excluding the newline
	header     bool
}

// scanLines splits text into lines. Only a line that opens a block can be a
// header, so wrapped prose such as "the\nDepartment of Defense\nlast spring."
// stays one sentence.
func scanLines(text string) []line {
	var lines []line
	start := 0
	opensBlock := true
	for start <= len(text) {
		end := strings.IndexByte(text[start:], '\n')
		if end < 0 {
			end = len(text)
		} else {
			end += start
		}
		raw := text[start:end]
		ln := line{
			start:  start,
			end:    end,
			header: opensBlock && isHeader(raw),
		}
		lines = append(lines, ln)
		opensBlock = ln.header || closesBlock(raw)
		start = end + 1
	}
	return lines
}

// closesBlock reports whether the line after raw may open a new block:
// raw is blank or ends in terminal punctuation or a colon, ignoring
// closing quotes and brackets.
func closesBlock(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasSuffix(s, ":") {
		return true
	}
	s = strings.TrimRight(s, "\"')]")
	return s != "" && strings.ContainsRune(".!?", rune(s[len(s)-1]))
}

// splitSentences groups lines into blocks (a header line, or a run of
// non-blank lines) and splits each block on terminal punctuation.
func splitSentences(text string, lines []line) []sentence {
	var (
		out        []sentence
		blockStart = -1
		blockEnd   int
	)

	flush := func() {
		if blockStart >= 0 {
			out = splitBlock(text, blockStart, blockEnd, out)
			blockStart = -1
		}
	}

	for _, ln := range lines {
		blank := strings.TrimSpace(text[ln.start:ln.end]) == ""
		switch {
		case blank:
			flush()
		case ln.header:
			flush()
			out = splitBlock(text, ln.start, ln.end, out)
		default:
			if blockStart < 0 {
				blockStart = ln.start
			}
			blockEnd = ln.end
		}
	}
	flush()

	return out
}

// splitBlock ends a sentence at '.', '!' or '?' (plus any closing
// punctuation) followed by whitespace or the end of the block. A bare list
// number such as "12." does not end a sentence.
func splitBlock(text string, from, to int, out []sentence) []sentence {
	i := from
	for i < to {
		for i < to && isSpace(text[i]) {
			i++
		}
		if i >= to {
			break
		}

		start := i
		end := to
		for j := i; j < to; j++ {
			c := text[j]
			if c != '.' && c != '!' && c != '?' {
				continue
			}
			k := j + 1
			for k < to && isCloser(text[k]) {
				k++
			}
			if k < to && !isSpace(text[k]) {
				continue
			}
			if c == '.' && isBareNumber(text[start:j]) {
				j = k - 1
				continue
			}
			end = k
			break
		}

		trimmed := end
		for trimmed > start && isSpace(text[trimmed-1]) {
			trimmed--
		}
		out = append(out, newSentence(text[start:trimmed], start, trimmed))
		i = end
	}
	return out
}

func newSentence(raw string, start, end int) sentence {
	words := strings.Fields(raw)
	return sentence{
		text:   strings.Join(words, " "),
		start:  start,
		end:    end,
		tokens: estimateWords(len(words)),
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	default:
		return false
	}
}

func isCloser(c byte) bool {
	switch c {
	case '.', '!', '?', '"', '\'', ')', ']':
		return true
	default:
		return false
	}
}

func isBareNumber(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
