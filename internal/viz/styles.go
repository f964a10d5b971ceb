package viz

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	header lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	muted  lipgloss.Style
	good   lipgloss.Style
	warn   lipgloss.Style
	bad    lipgloss.Style
	accent lipgloss.Style
	canvas lipgloss.Style
	panel  lipgloss.Style
	graph  lipgloss.Style
	help   lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		header: lipgloss.NewStyle().Foreground(t.Primary).Bold(true).MarginBottom(1),
		label:  lipgloss.NewStyle().Foreground(t.Muted).Width(12),
		value:  lipgloss.NewStyle().Foreground(t.Text),
		muted:  lipgloss.NewStyle().Foreground(t.Muted),
		good:   lipgloss.NewStyle().Foreground(t.Good).Bold(true),
		warn:   lipgloss.NewStyle().Foreground(t.Warn).Bold(true),
		bad:    lipgloss.NewStyle().Foreground(t.Bad).Bold(true),
		accent: lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		canvas: lipgloss.NewStyle().Padding(1, 2),
		panel: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(t.Muted).
			Padding(1, 2).
			Width(46),
		graph: lipgloss.NewStyle().Foreground(t.Primary).Padding(1, 0),
		help:  lipgloss.NewStyle().Foreground(t.Muted).MarginTop(1),
	}
}

// ProgressBar renders frac in [0, 1] as a filled bar.
func ProgressBar(frac float64, width int) string {
	filled := int(math.Round(clampFloat(frac, 0, 1) * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// DutyBar renders a signed duty in [-1, 1] as a bar growing left or right
// from a centre mark. width is the size of each half.
func DutyBar(duty float64, width int) string {
	n := int(math.Round(math.Abs(clampFloat(duty, -1, 1)) * float64(width)))
	left, right := strings.Repeat("·", width), strings.Repeat("·", width)
	if duty < 0 {
		left = strings.Repeat("·", width-n) + strings.Repeat("◀", n)
	} else {
		right = strings.Repeat("▶", n) + strings.Repeat("·", width-n)
	}
	return left + "│" + right
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
