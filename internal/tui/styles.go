package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func panel() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(CurrentTheme.Muted).
		Padding(0, 1)
}

func label(s string) string {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Muted).Width(14).Render(s)
}

func value(s string) string {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Text).Render(s)
}

func title(s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(CurrentTheme.Primary).Render(s)
}

func hint(s string) string {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Muted).Italic(true).Render(s)
}

// StateBadge colours a state name by how safe it is to drive.
func StateBadge(state string) string {
	c := CurrentTheme.Muted
	switch state {
	case "active_control":
		c = CurrentTheme.Success
	case "braking", "wait_for_neutral_dwell", "client_connected":
		c = CurrentTheme.Warning
	case "failsafe":
		c = CurrentTheme.Error
	}
	return lipgloss.NewStyle().Bold(true).Foreground(c).Render(strings.ToUpper(state))
}

// Gauge draws a percentage in [-100, 100] as a bar growing out of the
// centre mark.
func Gauge(percent float64, width int) string {
	half := width / 2
	n := int(percent / 100 * float64(half))
	if n > half {
		n = half
	}
	if n < -half {
		n = -half
	}

	left := strings.Repeat("░", half)
	right := strings.Repeat("░", half)
	if n > 0 {
		right = strings.Repeat("█", n) + strings.Repeat("░", half-n)
	} else if n < 0 {
		left = strings.Repeat("░", half+n) + strings.Repeat("█", -n)
	}
	return left + "│" + right
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
