package signal

import "strings"

// maxCandidates bounds how many brace-delimited objects are tried per reply.
const maxCandidates = 8

// ExtractObject returns the first balanced {...} substring of text, matching
// braces by depth and ignoring braces inside quoted strings.
func ExtractObject(text string) (string, bool) {
	candidates := extractObjects(text, 1)
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0], true
}

// extractObjects returns up to limit top-level balanced objects in order of
// appearance. An unbalanced opening brace is skipped and the scan resumes
// after it.
func extractObjects(text string, limit int) []string {
	var out []string
	offset := 0
	for len(out) < limit {
		i := strings.IndexByte(text[offset:], '{')
		if i < 0 {
			break
		}
		start := offset + i
		end, ok := matchBrace(text, start)
		if !ok {
			offset = start + 1
			continue
		}
		out = append(out, text[start:end+1])
		offset = end + 1
	}
	return out
}

// matchBrace returns the index of the '}' closing the '{' at start.
// Both double- and single-quoted strings are honored, with backslash escapes.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	var quote byte
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case closesQuote(text, i, quote):
				quote = 0
			}
			continue
		}

		switch c {
		case '"':
			quote = c
		case '\'':
			// An apostrophe between letters is prose, not a string delimiter.
			if !betweenLetters(text, i) {
				quote = c
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// closesQuote reports whether text[i] ends a string opened with quote.
func closesQuote(text string, i int, quote byte) bool {
	return text[i] == quote && (quote == '"' || !betweenLetters(text, i))
}

func betweenLetters(text string, i int) bool {
	if i == 0 || i+1 >= len(text) {
		return false
	}
	return isASCIILetter(text[i-1]) && isASCIILetter(text[i+1])
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
