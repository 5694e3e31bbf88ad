// Package ui holds the frame shared by every screen: header with the
// unread badge, toast stack and status bar.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/notify"
	"github.com/nhle/portal-notify/internal/theme"
)

// toastWidth caps a single popup.
const toastWidth = 48

// Layout manages the terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
	// ToastHeight is the number of rows the toast stack occupies.
	ToastHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the main content area.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.StatusBarHeight - l.ToastHeight
	if h < 1 {
		return 1
	}
	return h
}

// RenderHeader renders the top bar: title and unread badge on the left,
// connection status on the right.
func (l Layout) RenderHeader(title string, unread int, syncStatus string) string {
	left := theme.HeaderStyle.Render(title)
	if unread > 0 {
		badge := fmt.Sprintf("%d", unread)
		if unread > 99 {
			badge = "99+"
		}
		left = lipgloss.JoinHorizontal(lipgloss.Top, left, theme.BadgeStyle.Render(badge))
	}

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(syncStatus)

	gap := l.Width -
		lipgloss.Width(left) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, statusRendered)
}

// RenderToasts renders the popup stack, newest last, right-aligned.
// It returns "" when there are no toasts.
func (l Layout) RenderToasts(toasts []notify.Toast) string {
	if len(toasts) == 0 {
		return ""
	}

	width := toastWidth
	if l.Width-2 < width {
		width = l.Width - 2
	}
	if width < 10 {
		width = 10
	}

	rows := make([]string, 0, len(toasts))
	for _, t := range toasts {
		body := t.Message
		if t.Kind == notify.ToastInfo && t.Type != "" {
			body = lipgloss.NewStyle().Bold(true).Render(notify.DisplayTitle(model.Notification{Type: t.Type})) + "\n" + t.Message
		}
		box := theme.ToastStyle(string(t.Kind)).Width(width).Render(body)
		rows = append(rows, lipgloss.PlaceHorizontal(l.Width, lipgloss.Right, box))
	}
	return strings.Join(rows, "\n")
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.StatusBarStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view. toasts may be empty.
func (l Layout) RenderWithFrame(header, content, toasts, statusBar string) string {
	parts := []string{header, content}
	if toasts != "" {
		parts = append(parts, toasts)
	}
	parts = append(parts, statusBar)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
