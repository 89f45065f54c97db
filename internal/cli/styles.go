// Package cli provides styled terminal output, progress and prompts for the
// cointax commands.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Palette.
var (
	bitcoinOrange = lipgloss.Color("#F7931A")
	teal          = lipgloss.Color("#4ECDC4")
	amber         = lipgloss.Color("#FFE66D")
	coral         = lipgloss.Color("#FF6B6B")
	mint          = lipgloss.Color("#95E1D3")
	grey          = lipgloss.Color("#666666")
	border        = lipgloss.Color("#333333")
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	CoinIcon    = "🪙"
	ChartIcon   = "📊"
)

var (
	// SubtleStyle de-emphasizes labels and secondary text.
	SubtleStyle = lipgloss.NewStyle().Foreground(grey)

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(bitcoinOrange)
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(bitcoinOrange)
	successStyle = lipgloss.NewStyle().Foreground(teal)
	warningStyle = lipgloss.NewStyle().Foreground(amber)
	errorStyle   = lipgloss.NewStyle().Foreground(coral)
	infoStyle    = lipgloss.NewStyle().Foreground(mint)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(1, 2)
)

func iconLine(style lipgloss.Style, icon, message string) string {
	return style.Render(icon + " " + message)
}

// FormatSuccess formats a success message.
func FormatSuccess(message string) string { return iconLine(successStyle, SuccessIcon, message) }

// FormatError formats an error message.
func FormatError(message string) string { return iconLine(errorStyle, ErrorIcon, message) }

// FormatWarning formats a warning message.
func FormatWarning(message string) string { return iconLine(warningStyle, WarningIcon, message) }

// FormatInfo formats an informational message.
func FormatInfo(message string) string { return iconLine(infoStyle, InfoIcon, message) }

// FormatTitle formats a section title followed by a blank line.
func FormatTitle(title string) string {
	return titleStyle.MarginBottom(1).Render(CoinIcon + " " + title)
}

// FormatPrompt formats a question awaiting input.
func FormatPrompt(prompt string) string {
	return promptStyle.Render(prompt + " → ")
}

// FormatUSD renders a dollar amount, green for gains and red for losses.
func FormatUSD(d decimal.Decimal) string {
	amount := "$" + d.Abs().StringFixed(2)
	switch d.Sign() {
	case -1:
		return errorStyle.Render("-" + amount)
	case 1:
		return successStyle.Render(amount)
	default:
		return amount
	}
}

// RenderBox renders content under a title inside a rounded border.
func RenderBox(title, content string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), content))
}

// RenderKeyValues renders "label: value" lines with the values aligned.
func RenderKeyValues(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p[0]))
	}

	lines := make([]string, len(pairs))
	for i, p := range pairs {
		label := p[0] + ":" + strings.Repeat(" ", width-lipgloss.Width(p[0]))
		lines[i] = fmt.Sprintf("%s  %s", SubtleStyle.Render(label), p[1])
	}
	return strings.Join(lines, "\n")
}

// RenderWarnings renders one warning per line.
func RenderWarnings(warnings []string) string {
	lines := make([]string, len(warnings))
	for i, w := range warnings {
		lines[i] = FormatWarning(w)
	}
	return strings.Join(lines, "\n")
}
