// Package theme holds the lipgloss styles shared by every view.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// Apply picks the color variant for name: "dark" or "light" force one
// side of the adaptive pairs, anything else keeps terminal detection.
func Apply(name string) {
	switch name {
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	case "light":
		lipgloss.SetHasDarkBackground(false)
	}
}

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// DetailPanelStyle wraps the detail view content area.
var DetailPanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// DimmedStyle renders read records and secondary text.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// BadgeStyle renders the unread counter in the header.
var BadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FFFFFF")).
	Background(ColorRed).
	Padding(0, 1)

// ToastStyle returns the popup style for a toast kind ("info", "error").
func ToastStyle(kind string) lipgloss.Style {
	base := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)

	if kind == "error" {
		return base.BorderForeground(ColorRed).Foreground(ColorRed)
	}
	return base.BorderForeground(ColorBlue)
}

// StatusStyle returns a color-coded style for a record status.
func StatusStyle(status model.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch status {
	case model.StatusUnseen, model.StatusVisibleUnread:
		return base.Foreground(ColorYellow)
	case model.StatusHiddenUnread:
		return base.Foreground(ColorBlue)
	case model.StatusRead:
		return base.Foreground(ColorGray).Bold(false)
	default:
		return base.Foreground(ColorRed)
	}
}

// SourceLabelStyle returns a color-coded style for the record's origin.
func SourceLabelStyle(source model.Source) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch source {
	case model.SourceRealtime:
		return base.Foreground(ColorGreen)
	case model.SourceHistory:
		return base.Foreground(ColorBlue)
	case model.SourceLocal, model.SourceServer:
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGray)
	}
}
