// Package detail shows one notification record with its portal route.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/keys"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/notify"
	"github.com/nhle/portal-notify/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Actions carried by ActionMsg.
const (
	ActionMarkRead = "read"
	ActionRemove   = "remove"
)

// ActionMsg signals the parent to execute an action on the shown record.
type ActionMsg struct {
	Action string
	ID     string
}

// Model is the record detail view component.
type Model struct {
	record   *model.Notification
	bell     notify.Bell
	now      time.Time
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(msg, m.keys.MarkRead):
			return m, m.action(ActionMarkRead)

		case key.Matches(msg, m.keys.Remove):
			return m, m.action(ActionRemove)
		}
	}

	// Scrolling (j/k, up/down, pgup/pgdn).
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) action(name string) tea.Cmd {
	if m.record == nil {
		return nil
	}
	id := m.record.ID
	return func() tea.Msg { return ActionMsg{Action: name, ID: id} }
}

// View renders the detail view.
func (m Model) View() string {
	if m.record == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notification selected")
	}
	return m.viewport.View()
}

// Record returns the shown record, if any.
func (m Model) Record() (model.Notification, bool) {
	if m.record == nil {
		return model.Notification{}, false
	}
	return *m.record, true
}

func (m Model) renderContent() string {
	if m.record == nil {
		return ""
	}
	n := *m.record
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(notify.DisplayTitle(n)))

	srcBadge := theme.SourceLabelStyle(n.Source).Render(strings.ToUpper(string(n.Source)))
	statusBadge := theme.StatusStyle(n.Status).Render(n.Status.String())
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, srcBadge, "  ", statusBadge))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(11)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, metaStyle.Render(label+":")+valStyle.Render(value))
	}

	row("Type", n.Type)
	if n.ContractID != "" {
		ref := n.ContractID
		if n.ReferenceType != "" {
			ref = fmt.Sprintf("%s #%s", n.ReferenceType, n.ContractID)
		}
		row("Reference", ref)
	}
	if !n.Timestamp.IsZero() {
		row("Received", fmt.Sprintf("%s (%s)",
			n.Timestamp.Local().Format("2006-01-02 15:04"),
			notify.TimeAgo(n.Timestamp, m.now)))
	}
	row("Open", m.bell.Route(n))
	row("ID", n.ID)
	if !n.Synced {
		row("Sync", "pending")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", sep, "")

	body := notify.DisplayMessage(n)
	if body == "" {
		body = lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true).Render("No message")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-4, 20)).Render(body))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetRecord shows n as seen from bell b.
func (m *Model) SetRecord(n model.Notification, b notify.Bell, now time.Time) {
	m.record = &n
	m.bell = b
	m.now = now
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Refresh re-renders the shown record if it is still in list.
func (m *Model) Refresh(list []model.Notification, now time.Time) {
	if m.record == nil {
		return
	}
	for _, n := range list {
		if n.ID == m.record.ID {
			m.record = &n
			m.now = now
			m.viewport.SetContent(m.renderContent())
			return
		}
	}
}

// Clear drops the shown record.
func (m *Model) Clear() {
	m.record = nil
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.record != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
