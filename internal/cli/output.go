package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"stock-advisor/internal/models"
	"stock-advisor/internal/signal"
)

// Terminal styles
var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B5CF6"))

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()
	return &Output{
		writer:       w,
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && w == os.Stdout && isTerminal(),
	}
}

// isTerminal checks if stdout is a terminal.
func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.styled(successStyle, format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.styled(errorStyle, format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.styled(warningStyle, format, args...)
}

// Info prints an info message in blue.
func (o *Output) Info(format string, args ...interface{}) {
	o.styled(infoStyle, format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.styled(boldStyle, format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.styled(dimStyle, format, args...)
}

func (o *Output) styled(style lipgloss.Style, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, o.render(style, fmt.Sprintf(format, args...)))
}

// render applies style when color is enabled.
func (o *Output) render(style lipgloss.Style, text string) string {
	if !o.colorEnabled {
		return text
	}
	return style.Render(text)
}

// Green returns green colored text.
func (o *Output) Green(text string) string {
	return o.render(successStyle, text)
}

// Red returns red colored text.
func (o *Output) Red(text string) string {
	return o.render(errorStyle, text)
}

// Yellow returns yellow colored text.
func (o *Output) Yellow(text string) string {
	return o.render(warningStyle, text)
}

// DimText returns dimmed text.
func (o *Output) DimText(text string) string {
	return o.render(dimStyle, text)
}

// FormatGain formats a gain fraction as a colored percentage.
func (o *Output) FormatGain(gain float64) string {
	formatted := FormatPercent(gain * 100)
	switch {
	case gain > 0:
		return o.Green(formatted)
	case gain < 0:
		return o.Red(formatted)
	}
	return formatted
}

// Signal renders a signal type with its color.
func (o *Output) Signal(t models.SignalType) string {
	switch t {
	case models.SignalBuy:
		return o.Green("↑ BUY")
	case models.SignalSell:
		return o.Red("↓ SELL")
	case models.SignalHold:
		return o.Yellow("→ HOLD")
	}
	return string(t)
}

// Status renders a recommendation status with its color.
func (o *Output) Status(s models.RecommendationStatus) string {
	switch s {
	case models.StatusActive:
		return o.render(infoStyle, "● active")
	case models.StatusCompleted:
		return o.Green("✓ completed")
	case models.StatusStopped:
		return o.Red("✗ stopped")
	}
	return string(s)
}

// SourceTag returns a tag showing how a reply was interpreted.
func (o *Output) SourceTag(source signal.Source) string {
	tag := fmt.Sprintf("[%s]", strings.ToUpper(string(source)))
	switch source {
	case signal.SourceParsed:
		return o.render(accentStyle, tag)
	case signal.SourceRepaired:
		return o.Yellow(tag)
	case signal.SourceFallback:
		return o.Red(tag)
	}
	return tag
}

// Table represents a simple table for output.
type Table struct {
	headers []string
	rows    [][]string
	output  *Output
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		output:  output,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	// Calculate column widths
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				if w := lipgloss.Width(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	t.printRow(t.headers, widths, true)
	t.printSeparator(widths)
	for _, row := range t.rows {
		t.printRow(row, widths, false)
	}
}

func (t *Table) printRow(cells []string, widths []int, isHeader bool) {
	var parts []string
	for i, cell := range cells {
		if i < len(widths) {
			padding := widths[i] - lipgloss.Width(cell)
			if padding < 0 {
				padding = 0
			}
			padded := cell + strings.Repeat(" ", padding)
			if isHeader {
				padded = t.output.render(boldStyle, padded)
			}
			parts = append(parts, padded)
		}
	}
	t.output.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
}

func (t *Table) printSeparator(widths []int) {
	var parts []string
	for _, w := range widths {
		parts = append(parts, strings.Repeat("─", w))
	}
	t.output.Println(t.output.render(dimStyle, strings.Join(parts, "──")))
}

// Box draws a box around content.
func (o *Output) Box(title string, content []string) {
	if o.colorEnabled {
		body := boldStyle.Render(title) + "\n" + strings.Join(content, "\n")
		o.Println(boxStyle.Render(body))
		return
	}

	maxLen := lipgloss.Width(title)
	for _, line := range content {
		if w := lipgloss.Width(line); w > maxLen {
			maxLen = w
		}
	}
	border := strings.Repeat("-", maxLen+2)
	o.Printf("+%s+\n", border)
	o.Printf("| %s%s |\n", title, strings.Repeat(" ", maxLen-lipgloss.Width(title)))
	o.Printf("+%s+\n", border)
	for _, line := range content {
		o.Printf("| %s%s |\n", line, strings.Repeat(" ", maxLen-lipgloss.Width(line)))
	}
	o.Printf("+%s+\n", border)
}
