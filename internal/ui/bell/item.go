package bell

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/notify"
	"github.com/nhle/portal-notify/internal/theme"
)

// Item wraps a notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
	// Now anchors the relative timestamp.
	Now time.Time
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return notify.DisplayTitle(i.Notification) }

// Title returns the localized heading.
func (i Item) Title() string { return notify.DisplayTitle(i.Notification) }

// Description returns the localized body and the relative time.
func (i Item) Description() string {
	parts := []string{notify.DisplayMessage(i.Notification)}
	if ago := notify.TimeAgo(i.Notification.Timestamp, i.Now); ago != "" {
		parts = append(parts, ago)
	}
	return strings.Join(parts, " | ")
}

// Delegate renders a record on two lines: marker, title and age, then the
// message.
type Delegate struct{}

// Height returns the number of lines each item takes.
func (d Delegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d Delegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single record.
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.Notification
	unread := n.Status.IsUnread()

	marker := " "
	if unread {
		marker = theme.StatusStyle(n.Status).Render("●")
	}

	title := notify.DisplayTitle(n)
	if unread {
		title = lipgloss.NewStyle().Bold(true).Render(title)
	}

	age := theme.DimmedStyle.Render(notify.TimeAgo(n.Timestamp, it.Now))
	src := theme.SourceLabelStyle(n.Source).Render(sourceLabel(n.Source))

	msg := notify.DisplayMessage(n)
	if limit := m.Width() - 6; limit > 0 && lipgloss.Width(msg) > limit {
		msg = truncate(msg, limit)
	}

	line := fmt.Sprintf("%s %s%s  %s\n  %s", marker, title, src, age, theme.DimmedStyle.Render(msg))
	if !unread {
		line = theme.DimmedStyle.Render(line)
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

func sourceLabel(s model.Source) string {
	switch s {
	case model.SourceRealtime:
		return "LIVE"
	case model.SourceLocal:
		return "LOC"
	}
	return ""
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}
