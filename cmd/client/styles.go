package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Avicted/callrelay/internal/call"
)

const (
	colorAccent = lipgloss.Color("212")
	colorGood   = lipgloss.Color("114")
	colorWarn   = lipgloss.Color("221")
	colorBad    = lipgloss.Color("196")
	colorMuted  = lipgloss.Color("243")
	colorFaint  = lipgloss.Color("238")
)

var (
	appNameStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	labelStyle       = lipgloss.NewStyle().Foreground(colorMuted)
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(colorBad)
	separatorStyle   = lipgloss.NewStyle().Foreground(colorFaint)
	activeInputStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	speakingStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorGood)

	overlayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 3)
)

// stateColor is the accent used for a call state in the header badge and
// around its overlay.
func stateColor(kind call.Kind) lipgloss.Color {
	switch kind {
	case call.IncomingCall, call.InCall:
		return colorGood
	case call.OutgoingCall, call.Connecting:
		return colorWarn
	case call.CallFailed:
		return colorBad
	case call.Ended:
		return colorMuted
	}
	return colorFaint
}

func stateBadge(kind call.Kind) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(stateColor(kind)).
		Padding(0, 1).
		Render(kind.String())
}

func overlayBox(kind call.Kind, body string) string {
	return overlayStyle.BorderForeground(stateColor(kind)).Render(body)
}

// bannerText renders the one-line banner shown outside overlays; failures
// stand out, other end states stay quiet.
func bannerText(kind call.Kind, text string) string {
	style := labelStyle
	if kind == call.CallFailed {
		style = errorStyle
	}
	return style.Render(text)
}

func connectionText(connected bool) string {
	if connected {
		return lipgloss.NewStyle().Foreground(colorGood).Render("online")
	}
	return lipgloss.NewStyle().Foreground(colorBad).Render("offline")
}

func centerText(text string, width int) string {
	if width <= 0 {
		return text
	}
	textWidth := lipgloss.Width(text)
	if textWidth >= width {
		return text
	}
	pad := (width - textWidth) / 2
	return strings.Repeat(" ", pad) + text
}

func separator(width int) string {
	w := width - 4
	if w < 1 {
		w = 1
	}
	return separatorStyle.Render("  " + strings.Repeat("─", w))
}
