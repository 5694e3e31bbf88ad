// Package config is the settings screen: it edits the portal endpoints,
// tests them against the health endpoint and writes the config file.
package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/keys"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/theme"
)

// checkTimeout bounds a connection test.
const checkTimeout = 10 * time.Second

// Mode represents the current state of the settings view.
type Mode int

const (
	ModeSummary        Mode = iota // Show current settings
	ModeForm                       // Edit settings
	ModeValidating                 // Testing connection
	ModeValidateResult             // Show test result
)

// Checker probes the notification service at baseURL and returns its
// reported status.
type Checker func(ctx context.Context, baseURL string) (string, error)

// Saver writes the configuration file.
type Saver func(cfg *model.AppConfig) error

// DoneMsg signals the settings view should close.
type DoneMsg struct{}

// SavedMsg signals the settings were written.
type SavedMsg struct {
	Config model.AppConfig
}

// ValidateResultMsg carries the result of a connection test.
type ValidateResultMsg struct {
	Status string
	Err    error
}

// savedInternalMsg is sent after the file write.
type savedInternalMsg struct {
	cfg model.AppConfig
	err error
}

// formBindings holds field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	baseURL     string
	realtimeURL string
	logLevel    string
	metricsAddr string
}

// Model is the Bubble Tea model for the settings UI.
type Model struct {
	mode    Mode
	cfg     model.AppConfig
	check   Checker
	save    Saver
	form    *huh.Form
	fb      *formBindings
	spinner spinner.Model

	// pending is the edited config awaiting a successful test.
	pending *model.AppConfig

	validStatus string
	validError  error
	statusMsg   string

	keys          *keys.KeyMap
	width, height int
}

// New creates a settings view over cfg.
func New(cfg model.AppConfig, check Checker, save Saver, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		mode:    ModeSummary,
		cfg:     cfg,
		check:   check,
		save:    save,
		fb:      &formBindings{},
		spinner: sp,
		keys:    k,
		width:   width,
		height:  height,
	}
}

// Mode returns the current mode.
func (m Model) Mode() Mode { return m.mode }

// Init resets the view to the summary.
func (m *Model) Init() tea.Cmd {
	m.mode = ModeSummary
	m.statusMsg = ""
	m.pending = nil
	return nil
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ValidateResultMsg:
		m.validStatus = msg.Status
		m.validError = msg.Err
		if msg.Err == nil && m.pending != nil {
			cfg := *m.pending
			m.pending = nil
			m.mode = ModeSummary
			return m, m.write(cfg)
		}
		m.mode = ModeValidateResult
		return m, nil

	case savedInternalMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error saving settings: %v", msg.err)
			return m, nil
		}
		m.cfg = msg.cfg
		m.statusMsg = "Settings saved. Restart watch to apply them."
		saved := msg.cfg
		return m, func() tea.Msg { return SavedMsg{Config: saved} }

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	if m.mode == ModeForm {
		return m.updateForm(msg)
	}
	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case ModeSummary:
		return m.handleSummaryKeys(msg)
	case ModeForm:
		return m.updateForm(msg)
	case ModeValidateResult:
		return m.handleValidateResultKeys(msg)
	case ModeValidating:
		// Only allow escape during validation
		if msg.String() == "esc" {
			m.mode = ModeSummary
			m.pending = nil
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleSummaryKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return DoneMsg{} }

	case msg.String() == "e":
		m.fb.baseURL = m.cfg.API.BaseURL
		m.fb.realtimeURL = m.cfg.Realtime.URL
		m.fb.logLevel = m.cfg.Log.Level
		m.fb.metricsAddr = m.cfg.Metrics.Addr
		m.form = buildForm(m.fb).WithWidth(m.formWidth())
		m.mode = ModeForm
		m.statusMsg = ""
		return m, m.form.Init()

	case key.Matches(msg, m.keys.Select):
		return m.startValidation(m.cfg.API.BaseURL)
	}
	return m, nil
}

func (m Model) handleValidateResultKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.mode = ModeSummary
		m.pending = nil
		m.validError = nil
		return m, nil
	case "r":
		target := m.cfg.API.BaseURL
		if m.pending != nil {
			target = m.pending.API.BaseURL
		}
		return m.startValidation(target)
	case "s":
		// Save despite a failed test.
		if m.pending != nil {
			cfg := *m.pending
			m.pending = nil
			m.mode = ModeSummary
			return m, m.write(cfg)
		}
	}
	return m, nil
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		cfg := m.cfg
		cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(m.fb.baseURL), "/")
		cfg.Realtime.URL = strings.TrimSpace(m.fb.realtimeURL)
		cfg.Log.Level = m.fb.logLevel
		cfg.Metrics.Addr = strings.TrimSpace(m.fb.metricsAddr)
		m.pending = &cfg
		m.form = nil
		return m.startValidation(cfg.API.BaseURL)
	case huh.StateAborted:
		m.form = nil
		m.mode = ModeSummary
		return m, nil
	}
	return m, cmd
}

func (m Model) startValidation(baseURL string) (Model, tea.Cmd) {
	m.mode = ModeValidating
	check := m.check
	return m, tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
			defer cancel()
			status, err := check(ctx, baseURL)
			return ValidateResultMsg{Status: status, Err: err}
		},
	)
}

func (m Model) write(cfg model.AppConfig) tea.Cmd {
	save := m.save
	return func() tea.Msg {
		return savedInternalMsg{cfg: cfg, err: save(&cfg)}
	}
}

func buildForm(fb *formBindings) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API base URL").
				Description("Portal REST root, e.g. https://portal.example.com/api").
				Value(&fb.baseURL).
				Validate(validateURL("http", "https")),
			huh.NewInput().
				Title("Realtime URL").
				Description("STOMP websocket endpoint").
				Value(&fb.realtimeURL).
				Validate(validateURL("ws", "wss")),
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&fb.logLevel),
			huh.NewInput().
				Title("Metrics address").
				Description("host:port for /metrics, empty to disable").
				Placeholder(":9464").
				Value(&fb.metricsAddr),
		),
	)
}

// --- View ---

// View renders the settings UI based on the current mode.
func (m Model) View() string {
	switch m.mode {
	case ModeForm:
		if m.form == nil {
			return ""
		}
		return m.frame().Render(m.form.View())
	case ModeValidating:
		return m.frame().Render(fmt.Sprintf(
			"%s Testing connection...\n\nPress esc to cancel.",
			m.spinner.View(),
		))
	case ModeValidateResult:
		return m.viewValidateResult()
	default:
		return m.viewSummary()
	}
}

func (m Model) frame() lipgloss.Style {
	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)
}

func (m Model) viewSummary() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	labelStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(16)

	b.WriteString(titleStyle.Render("Settings"))
	b.WriteString("\n\n")

	rows := [][2]string{
		{"API base URL", m.cfg.API.BaseURL},
		{"Realtime URL", m.cfg.Realtime.URL},
		{"Log level", m.cfg.Log.Level},
		{"Metrics", orNone(m.cfg.Metrics.Addr)},
		{"Fallback poll", m.cfg.Sync.FallbackInterval.String()},
		{"Unread sync", m.cfg.Sync.UnreadInterval.String()},
	}
	for _, r := range rows {
		b.WriteString(labelStyle.Render(r[0]) + r[1] + "\n")
	}

	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorYellow).Italic(true).Render(m.statusMsg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(theme.DimmedStyle.Render("e edit | enter test connection | esc back"))

	return m.frame().Render(b.String())
}

func (m Model) viewValidateResult() string {
	var content string
	if m.validError != nil {
		hint := "r retry | enter/esc back"
		if m.pending != nil {
			hint = "r retry | s save anyway | enter/esc discard"
		}
		content = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorRed).Render("Connection failed") +
			"\n\n" + m.validError.Error() + "\n\n" +
			theme.DimmedStyle.Render(hint)
	} else {
		status := m.validStatus
		if status == "" {
			status = "OK"
		}
		content = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorGreen).Render("Connection successful") +
			"\n\n" + fmt.Sprintf("Service status: %s", status) + "\n\n" +
			theme.DimmedStyle.Render("enter/esc back")
	}
	return m.frame().Render(content)
}

// --- Helpers ---

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func orNone(s string) string {
	if s == "" {
		return "disabled"
	}
	return s
}

// --- Validators ---

func validateURL(schemes ...string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("URL is required")
		}
		parsed, err := url.Parse(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid URL: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("URL must include scheme and host")
		}
		for _, sc := range schemes {
			if parsed.Scheme == sc {
				return nil
			}
		}
		return fmt.Errorf("URL scheme must be one of %s", strings.Join(schemes, ", "))
	}
}
