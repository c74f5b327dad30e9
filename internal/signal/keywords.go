package signal

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"stock-advisor/internal/models"
)

//go:embed keywords.yaml
var defaultKeywords []byte

// KeywordTable is the versioned data behind the fallback classifier.
type KeywordTable struct {
	Version  int      `yaml:"version"`
	Language string   `yaml:"language"`
	Buy      []string `yaml:"buy"`
	Sell     []string `yaml:"sell"`
	Hold     []string `yaml:"hold"`
}

// LoadKeywordTable parses a YAML keyword table. Keywords are lowercased and
// the three lists must be non-empty and disjoint.
func LoadKeywordTable(data []byte) (*KeywordTable, error) {
	var table KeywordTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse keyword table: %w", err)
	}
	if table.Version <= 0 {
		return nil, fmt.Errorf("keyword table: version must be positive")
	}

	seen := make(map[string]string)
	for _, list := range []struct {
		name  string
		words *[]string
	}{
		{"buy", &table.Buy},
		{"sell", &table.Sell},
		{"hold", &table.Hold},
	} {
		if len(*list.words) == 0 {
			return nil, fmt.Errorf("keyword table: %s list is empty", list.name)
		}
		for i, w := range *list.words {
			w = normalizeText(w)
			if w == "" {
				return nil, fmt.Errorf("keyword table: blank keyword in %s list", list.name)
			}
			if other, ok := seen[w]; ok && other != list.name {
				return nil, fmt.Errorf("keyword table: %q is in both %s and %s", w, other, list.name)
			}
			seen[w] = list.name
			(*list.words)[i] = w
		}
	}

	return &table, nil
}

// DefaultKeywordTable returns the embedded Vietnamese/English table.
func DefaultKeywordTable() *KeywordTable {
	table, err := LoadKeywordTable(defaultKeywords)
	if err != nil {
		panic(err)
	}
	return table
}

// Score counts whole-word keyword hits per signal type.
func (k *KeywordTable) Score(text string) map[models.SignalType]int {
	text = normalizeText(text)
	return map[models.SignalType]int{
		models.SignalBuy:  countAll(text, k.Buy),
		models.SignalSell: countAll(text, k.Sell),
		models.SignalHold: countAll(text, k.Hold),
	}
}

// Classify returns the type with the strictly highest score. Ties and texts
// without any hit classify as HOLD.
func (k *KeywordTable) Classify(text string) models.SignalType {
	scores := k.Score(text)
	buy, sell, hold := scores[models.SignalBuy], scores[models.SignalSell], scores[models.SignalHold]
	switch {
	case buy > sell && buy > hold:
		return models.SignalBuy
	case sell > buy && sell > hold:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}

// normalizeText folds s to composed (NFC) lower case with single spaces, so
// decomposed Vietnamese diacritics match the table.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(norm.NFC.String(s)), " "))
}

func countAll(text string, words []string) int {
	total := 0
	for _, w := range words {
		total += countWord(text, w)
	}
	return total
}

// countWord counts occurrences of word in text that are not part of a
// longer word.
func countWord(text, word string) int {
	if word == "" {
		return 0
	}
	count := 0
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(word)
		if wordBoundaryBefore(text, start) && wordBoundaryAfter(text, end) {
			count++
		}
		offset = end
	}
	return count
}

func wordBoundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func wordBoundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
