package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (t Theme) header() lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Primary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(t.Border)
}

func (t Theme) panel() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)
}

func (t Theme) label() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Muted).Width(12)
}

func (t Theme) value() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Text).Bold(true)
}

func (t Theme) hint() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Muted).Italic(true)
}

func (t Theme) status(s string) string {
	c := t.Good
	switch s {
	case "PAUSED":
		c = t.Warn
	case "FAILED":
		c = t.Bad
	case "DONE":
		c = t.Accent
	}
	return lipgloss.NewStyle().Bold(true).Foreground(c).Render(s)
}

// ProgressBar renders a bar of width cells, filled by fraction.
func ProgressBar(fraction float64, width int, t Theme) string {
	filled := int(fraction * float64(width))
	filled = max(0, min(width, filled))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(t.Primary).Render(bar)
}

var sparkChars = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the last width values as block characters scaled between
// their min and max.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int((v - lo) / span * float64(len(sparkChars)-1))
		b.WriteRune(sparkChars[max(0, min(len(sparkChars)-1, idx))])
	}
	return b.String()
}

// Separator is a muted rule with a centre mark.
func Separator(width int, t Theme) string {
	left := max(0, width/2-2)
	right := max(0, width-left-3)
	return lipgloss.NewStyle().Foreground(t.Muted).Render(strings.Repeat("─", left) + " ◆ " + strings.Repeat("─", right))
}
