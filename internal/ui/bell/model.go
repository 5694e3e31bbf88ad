// Package bell is the notification list of one role bell.
package bell

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/keys"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/notify"
	"github.com/nhle/portal-notify/internal/theme"
)

// SelectedMsg asks the parent to open a record.
type SelectedMsg struct {
	ID string
}

// MarkReadMsg asks the parent to mark one record read.
type MarkReadMsg struct {
	ID string
}

// MarkBellReadMsg asks the parent to mark every unread record of the bell
// read.
type MarkBellReadMsg struct {
	IDs []string
}

// HideMsg asks the parent to dismiss a record's popup.
type HideMsg struct {
	ID string
}

// RemoveMsg asks the parent to delete a record.
type RemoveMsg struct {
	ID string
}

// Model is the list view for a bell.
type Model struct {
	list       list.Model
	keys       *keys.KeyMap
	bell       notify.Bell
	records    []model.Notification
	now        time.Time
	unreadOnly bool
	width      int
	height     int
}

// New creates a list for the given bell.
func New(b notify.Bell, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, Delegate{}, width, height-2)
	l.Title = b.Title
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		bell:   b,
		width:  width,
		height: height,
	}
}

// Bell returns the bell this list shows.
func (m Model) Bell() notify.Bell { return m.bell }

// SetBell switches the list to another bell, e.g. after a new login.
func (m *Model) SetBell(b notify.Bell) {
	m.bell = b
	m.list.Title = b.Title
}

// SetRecords replaces the rows with the bell's share of list.
func (m *Model) SetRecords(all []model.Notification, now time.Time) tea.Cmd {
	m.records = m.bell.Filter(all)
	m.now = now

	items := make([]list.Item, 0, len(m.records))
	for _, n := range m.records {
		if n.Status == model.StatusRemoved {
			continue
		}
		if m.unreadOnly && !n.Status.IsUnread() {
			continue
		}
		items = append(items, Item{Notification: n, Now: now})
	}
	return m.list.SetItems(items)
}

// Selected returns the focused record.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Len is the number of visible rows.
func (m Model) Len() int { return len(m.list.Items()) }

// Unread is the number of unread records on this bell.
func (m Model) Unread() int { return len(m.bell.Unread(m.records)) }

// Init has nothing to load; records are pushed by the parent.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		return m, m.withSelected(func(id string) tea.Msg { return SelectedMsg{ID: id} })

	case key.Matches(msg, m.keys.MarkRead):
		return m, m.withSelected(func(id string) tea.Msg { return MarkReadMsg{ID: id} })

	case key.Matches(msg, m.keys.Hide):
		return m, m.withSelected(func(id string) tea.Msg { return HideMsg{ID: id} })

	case key.Matches(msg, m.keys.Remove):
		return m, m.withSelected(func(id string) tea.Msg { return RemoveMsg{ID: id} })

	case key.Matches(msg, m.keys.MarkAllRead):
		ids := m.bell.Unread(m.records)
		if len(ids) == 0 {
			return m, nil
		}
		return m, func() tea.Msg { return MarkBellReadMsg{IDs: ids} }

	case key.Matches(msg, m.keys.ToggleUnread):
		m.unreadOnly = !m.unreadOnly
		return m, m.SetRecords(m.records, m.now)
	}

	// Navigation keys (up/down/pgup/pgdn).
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) withSelected(build func(id string) tea.Msg) tea.Cmd {
	n, ok := m.Selected()
	if !ok {
		return nil
	}
	return func() tea.Msg { return build(n.ID) }
}

// View renders the list, or a hint when it is empty.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.unreadOnly {
		return style.Render("Không có thông báo chưa đọc.\nPress u to show all.")
	}
	return style.Render("Không có thông báo mới.\n\nPress r to refresh.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
