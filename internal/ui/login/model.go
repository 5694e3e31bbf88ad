// Package login is the username/password form used by the TUI and the
// login command.
package login

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/theme"
)

// SubmitMsg is dispatched when the form is completed.
type SubmitMsg struct {
	Username string
	Password string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	username string
	password string
}

// Model is the Bubble Tea model for the login form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	err    string
	width  int
	height int
}

// New creates an idle login form. Call Start to show it.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start resets the password, keeps the last username and shows errMsg
// above the form when set.
func (m *Model) Start(errMsg string) tea.Cmd {
	m.fb.password = ""
	m.err = errMsg
	m.form = buildForm(m.fb).WithWidth(m.formWidth())
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		out := SubmitMsg{Username: strings.TrimSpace(m.fb.username), Password: m.fb.password}
		m.form = nil
		return m, func() tea.Msg { return out }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Đăng nhập")}
	if m.err != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorRed).Render(m.err), "")
	}
	if m.form != nil {
		parts = append(parts, m.form.View())
	} else {
		parts = append(parts, theme.DimmedStyle.Render("Signing in..."))
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

// Prompt runs the form standalone on the terminal, for the login command.
func Prompt(username string) (SubmitMsg, error) {
	fb := &formBindings{username: username}
	if err := buildForm(fb).Run(); err != nil {
		return SubmitMsg{}, err
	}
	return SubmitMsg{Username: strings.TrimSpace(fb.username), Password: fb.password}, nil
}

func buildForm(fb *formBindings) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&fb.username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&fb.password).
				Validate(validateRequired("Password")),
		),
	)
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 30 {
		w = 30
	}
	if w > 60 {
		w = 60
	}
	return w
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}
