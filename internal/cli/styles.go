// Package cli provides styled terminal output using lipgloss.
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.AdaptiveColor{Light: "#3A5BD9", Dark: "#7C9EFF"}
	green  = lipgloss.AdaptiveColor{Light: "#1B8A5A", Dark: "#4ECDC4"}
	amber  = lipgloss.AdaptiveColor{Light: "#B7791F", Dark: "#FFE66D"}
	red    = lipgloss.AdaptiveColor{Light: "#C53030", Dark: "#FF6B6B"}
	muted  = lipgloss.AdaptiveColor{Light: "#718096", Dark: "#8A8A8A"}

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	successStyle = lipgloss.NewStyle().Foreground(green)
	warningStyle = lipgloss.NewStyle().Foreground(amber)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	infoStyle    = lipgloss.NewStyle().Foreground(accent)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(1, 2)

	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(accent)
)

// cellGap is the number of spaces between table columns.
const cellGap = 2

// Icons used in command output.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	TagIcon     = "🏷️"
	ChartIcon   = "📊"
	FolderIcon  = "🗄️"
)

func FormatSuccess(message string) string {
	return successStyle.Render(SuccessIcon + " " + message)
}

func FormatError(message string) string {
	return errorStyle.Render(ErrorIcon + " " + message)
}

func FormatWarning(message string) string {
	return warningStyle.Render(WarningIcon + " " + message)
}

func FormatInfo(message string) string {
	return infoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle renders a report heading prefixed with the tag icon.
func FormatTitle(title string) string {
	return titleStyle.MarginBottom(1).Render(TagIcon + " " + title)
}

// RenderBox draws content under a bold title inside a rounded border.
func RenderBox(title, content string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), content))
}

// StatusBadge colors an analytics view computation status.
func StatusBadge(status string) string {
	switch status {
	case "completed":
		return successStyle.Render(status)
	case "failed":
		return errorStyle.Render(status)
	default:
		return mutedStyle.Render(status)
	}
}

// Freshness labels a cached payload as fresh or stale.
func Freshness(stale bool) string {
	if stale {
		return warningStyle.Render("stale")
	}
	return successStyle.Render("fresh")
}

// RenderTable lays rows out in left-aligned columns under a styled header.
// Short rows are padded with empty cells.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		var b strings.Builder
		for i, w := range widths {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(style.Render(cell))
			b.WriteString(strings.Repeat(" ", w-lipgloss.Width(cell)+cellGap))
		}
		return strings.TrimRight(b.String(), " ")
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, line(headers, headerStyle))
	for _, row := range rows {
		lines = append(lines, line(row, lipgloss.NewStyle()))
	}
	return strings.Join(lines, "\n")
}
