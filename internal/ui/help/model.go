// Package help renders the key binding overlay with the session summary.
package help

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/keys"
	"github.com/nhle/portal-notify/internal/theme"
)

// Session is the summary shown above the shortcuts.
type Session struct {
	User      string
	Role      string
	Bell      string
	Connected bool
}

// Model is the help overlay view.
type Model struct {
	keys    *keys.KeyMap
	help    help.Model
	session Session
	width   int
	height  int
}

// New creates a new help view model.
func New(k *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   k,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// SetSession updates the summary block.
func (m *Model) SetSession(s Session) {
	m.session = s
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Session"),
		m.renderSession(),
		"",
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		"",
		theme.HelpStyle.Render("Commands: refresh, read-all, clear, logout, quit"),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

func (m Model) renderSession() string {
	if m.session.User == "" {
		return theme.DimmedStyle.Render("not logged in")
	}
	conn := lipgloss.NewStyle().Foreground(theme.ColorRed).Render("offline")
	if m.session.Connected {
		conn = lipgloss.NewStyle().Foreground(theme.ColorGreen).Render("live")
	}
	return fmt.Sprintf("%s  %s  %s  %s",
		m.session.User,
		theme.DimmedStyle.Render(m.session.Role),
		m.session.Bell,
		conn)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
