// Package ui holds the lipgloss styles used by the tally CLI.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	IconDone   = "✅"
	IconStar   = "⭐"
	IconFire   = "🔥"
	IconWarn   = "⚠️"
	IconLedger = "📒"
)

var (
	cPrimary = lipgloss.Color("63")  // blue
	cAccent  = lipgloss.Color("205") // magenta
	cGood    = lipgloss.Color("42")  // green
	cWarn    = lipgloss.Color("214") // orange
	cBad     = lipgloss.Color("196") // red
	cMuted   = lipgloss.Color("244") // gray
	cGold    = lipgloss.Color("220") // gold
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	H2    = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Key   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Muted = lipgloss.NewStyle().Foreground(cMuted)
	Good  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	Warn  = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	Bad   = lipgloss.NewStyle().Bold(true).Foreground(cBad)
	Gold  = lipgloss.NewStyle().Bold(true).Foreground(cGold)

	Panel = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
)

func Heading(icon string, title string) string {
	icon = strings.TrimSpace(icon)
	if icon != "" {
		icon += " "
	}
	return Title.Render(icon + title)
}

func LabelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", Key.Render(label+":"), value)
}

// Delta renders a signed points change: gains green, losses red.
func Delta(n int) string {
	switch {
	case n > 0:
		return Good.Render(fmt.Sprintf("+%d", n))
	case n < 0:
		return Bad.Render(fmt.Sprintf("%d", n))
	default:
		return Muted.Render("0")
	}
}

// Balance renders a points balance.
func Balance(n int) string {
	if n < 0 {
		return Bad.Render(fmt.Sprintf("%d pts", n))
	}
	return Gold.Render(fmt.Sprintf("%d pts", n))
}
