package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// displayZone is the market time zone used for dates shown to the user.
var displayZone = loadZone("Asia/Ho_Chi_Minh")

func loadZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatPrice formats a price with thousands separators and at most two
// decimal places, e.g. 125400 -> "125,400" and 52350.5 -> "52,350.5".
func FormatPrice(price float64) string {
	s := decimal.NewFromFloat(price).Round(2).String()

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	result := sign + groupThousands(intPart)
	if hasFrac {
		result += "." + fracPart
	}
	return result
}

// FormatVND formats an amount in Vietnamese dong.
func FormatVND(amount float64) string {
	return FormatPrice(amount) + " ₫"
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatConfidence formats a 0-100 confidence score.
func FormatConfidence(confidence float64) string {
	return fmt.Sprintf("%.0f%%", confidence)
}

// FormatDate formats a date in market time.
func FormatDate(t time.Time) string {
	return t.In(displayZone).Format("02-01-2006")
}

// FormatDateTime formats a datetime in market time.
func FormatDateTime(t time.Time) string {
	return t.In(displayZone).Format("02-01-2006 15:04")
}

// FormatDuration formats a duration in a human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// TruncateString truncates a string to maxLen runes with an ellipsis.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// ShortID returns the first segment of a recommendation ID.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
