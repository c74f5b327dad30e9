package signal

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"stock-advisor/internal/models"
)

const (
	// MaxSummaryRunes caps fallback summaries.
	MaxSummaryRunes = 200
	// DefaultConfidence is used when the reply states no percentage.
	DefaultConfidence = 50
	// DefaultSummary is used when the reply has no text at all.
	DefaultSummary = "Không có nội dung phân tích từ mô hình."
)

var percentPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)

// fallback classifies raw text with the keyword table.
func (v *Validator) fallback(raw string) Result {
	return Result{
		Signal: models.Signal{
			Type:       v.keywords.Classify(raw),
			Confidence: percentConfidence(raw),
			Summary:    Summarize(raw, v.maxSummary),
		},
		Source: SourceFallback,
	}
}

// percentConfidence returns the first NN% figure in text, clamped, or the
// default confidence.
func percentConfidence(text string) float64 {
	m := percentPattern.FindStringSubmatch(text)
	if m == nil {
		return DefaultConfidence
	}
	f, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return DefaultConfidence
	}
	return models.ClampConfidence(f)
}

// Summarize returns the leading complete sentences of text that fit in max
// runes. When even the first sentence is too long it is cut at a word
// boundary and ends with an ellipsis. Blank text yields DefaultSummary.
func Summarize(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return DefaultSummary
	}
	if max <= 1 {
		max = MaxSummaryRunes
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	cut := lastSentenceEnd(runes[:max+1])
	if cut > 0 {
		return strings.TrimSpace(string(runes[:cut]))
	}

	limit := max - 1
	for i := limit; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return strings.TrimRightFunc(string(runes[:i]), isTrailingPunct) + "…"
		}
	}
	return string(runes[:limit]) + "…"
}

// lastSentenceEnd returns the index just past the last sentence terminator
// in runes that is followed by whitespace. The final rune is lookahead only.
func lastSentenceEnd(runes []rune) int {
	for i := len(runes) - 2; i >= 0; i-- {
		switch runes[i] {
		case '.', '!', '?', '…':
			if unicode.IsSpace(runes[i+1]) {
				return i + 1
			}
		}
	}
	return 0
}

func isTrailingPunct(r rune) bool {
	return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':' || r == '-'
}
