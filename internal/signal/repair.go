package signal

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// repair is one text transformation applied to a candidate object.
type repair struct {
	name string
	fn   func(string) string
}

// repairs run in order and are cumulative; parsing is retried after each.
var repairs = []repair{
	{"strip_control_chars", stripControlChars},
	{"quote_bare_keys", quoteBareKeys},
	{"single_to_double_quotes", singleToDoubleQuotes},
	{"remove_trailing_commas", removeTrailingCommas},
}

// stripControlChars turns line breaks and tabs into spaces and drops other
// control characters, which are not allowed raw inside JSON strings.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

// quoteBareKeys wraps unquoted object keys in double quotes.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	var quote byte
	escaped := false
	prev := byte(0) // last significant byte outside strings

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case closesQuote(s, i, quote):
				quote = 0
				prev = c
			}
			continue
		}

		if (prev == '{' || prev == ',') && isKeyStart(c) {
			j := i
			for j < len(s) && isKeyByte(s[j]) {
				j++
			}
			k := j
			for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
				prev = '"'
				i = j - 1
				continue
			}
		}

		b.WriteByte(c)
		switch {
		case c == '"' || (c == '\'' && !betweenLetters(s, i)):
			quote = c
		case c != ' ' && c != '\t' && c != '\n' && c != '\r':
			prev = c
		}
	}
	return b.String()
}

func isKeyStart(c byte) bool {
	return isASCIILetter(c) || c == '_' || c == '$'
}

func isKeyByte(c byte) bool {
	return isKeyStart(c) || (c >= '0' && c <= '9') || c == '-'
}

// singleToDoubleQuotes rewrites single-quoted strings as double-quoted ones,
// escaping embedded double quotes.
func singleToDoubleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var quote byte
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch quote {
		case '"':
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				quote = 0
			}
		case '\'':
			switch {
			case escaped:
				escaped = false
				if c != '\'' {
					b.WriteByte('\\')
				}
				b.WriteByte(c)
			case c == '\\':
				escaped = true
			case c == '\'' && !betweenLetters(s, i):
				b.WriteByte('"')
				quote = 0
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
		default:
			switch {
			case c == '"':
				quote = c
				b.WriteByte(c)
			case c == '\'' && !betweenLetters(s, i):
				quote = c
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// removeTrailingCommas drops commas directly before a closing brace or
// bracket.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var quote byte
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case closesQuote(s, i, quote):
				quote = 0
			}
			continue
		}

		if c == ',' {
			j := i + 1
			for j < len(s) {
				r, size := utf8.DecodeRuneInString(s[j:])
				if !unicode.IsSpace(r) {
					break
				}
				j += size
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}

		b.WriteByte(c)
		if c == '"' || (c == '\'' && !betweenLetters(s, i)) {
			quote = c
		}
	}
	return b.String()
}
