// Package app is the root Bubble Tea model: view routing, the frame, and
// the glue between the notification store and the screens.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/keys"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/notify"
	"github.com/nhle/portal-notify/internal/session"
	appsync "github.com/nhle/portal-notify/internal/sync"
	"github.com/nhle/portal-notify/internal/ui"
	"github.com/nhle/portal-notify/internal/ui/bell"
	"github.com/nhle/portal-notify/internal/ui/command"
	"github.com/nhle/portal-notify/internal/ui/config"
	"github.com/nhle/portal-notify/internal/ui/detail"
	helpview "github.com/nhle/portal-notify/internal/ui/help"
	"github.com/nhle/portal-notify/internal/ui/login"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewList
	ViewDetail
	ViewHelp
	ViewCommand
	ViewSettings
)

// Model is the root Bubble Tea model.
type Model struct {
	svc Services

	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	loginView   login.Model
	bellList    bell.Model
	detail      detail.Model
	helpView    helpview.Model
	commandView command.Model
	settings    config.Model

	session        model.Session
	toasts         []notify.Toast
	unread         int
	lastSync       *appsync.SyncResultMsg
	waitingResults bool
	ready          bool
}

// New creates the root model. The store should already be restored.
func New(svc Services) *Model {
	k := keys.DefaultKeyMap()
	return &Model{
		svc:         svc,
		currentView: ViewList,
		keys:        k,
		layout:      ui.NewLayout(80, 24),
		loginView:   login.New(80, 24),
		bellList:    bell.New(notify.ServiceBell, k, 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		settings:    config.New(svc.Config, svc.Check, svc.SaveConfig, k, 80, 24),
	}
}

// Init starts the session if one was restored, otherwise shows the login
// form.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForChanges(m.svc.Store.Changes()), tick()}

	if sess, ok := m.svc.Sessions.Current(); ok {
		m.currentView = ViewList
		cmds = append(cmds, m.startSession(sess))
	} else {
		m.currentView = ViewLogin
		cmds = append(cmds, m.loginView.Start(""))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout.Width, m.layout.Height = msg.Width, msg.Height
		m.ready = true
		m.resize()
		// Forward to the active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case storeChangedMsg:
		m.refreshRecords()
		return m, waitForChanges(m.svc.Store.Changes())

	case tickMsg:
		m.refreshRecords()
		return m, tick()

	case appsync.SyncResultMsg:
		m.lastSync = &msg
		m.refreshRecords()
		return m, m.svc.Poller.WaitForNextResult()

	case login.SubmitMsg:
		return m, m.login(msg.Username, msg.Password)

	case login.CancelMsg:
		m.stopSession()
		return m, tea.Quit

	case loginResultMsg:
		if msg.err != nil {
			m.svc.Logger.Warn().Err(msg.err).Msg("login failed")
			return m, m.loginView.Start(loginError(msg.err))
		}
		if err := m.svc.Sessions.Login(msg.session); err != nil {
			return m, m.loginView.Start(loginError(err))
		}
		m.svc.Logger.Info().Str("user", msg.session.User.Username).Msg("logged in")
		m.currentView = ViewList
		return m, m.startSession(msg.session)

	case bell.SelectedMsg:
		n, ok := m.svc.Store.Get(msg.ID)
		if !ok {
			return m, nil
		}
		m.svc.Store.MarkRead(msg.ID)
		m.detail.SetRecord(n, m.bellList.Bell(), m.now())
		m.previousView = ViewList
		m.currentView = ViewDetail
		return m, nil

	case bell.MarkReadMsg:
		m.svc.Store.MarkRead(msg.ID)
		return m, nil

	case bell.MarkBellReadMsg:
		m.svc.Store.MarkReadMany(msg.IDs)
		return m, nil

	case bell.HideMsg:
		m.svc.Store.Hide(msg.ID)
		return m, nil

	case bell.RemoveMsg:
		m.svc.Store.Remove(msg.ID)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case detail.ActionMsg:
		switch msg.Action {
		case detail.ActionMarkRead:
			m.svc.Store.MarkRead(msg.ID)
		case detail.ActionRemove:
			m.svc.Store.Remove(msg.ID)
			m.detail.Clear()
			m.currentView = ViewList
		}
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(msg)

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case config.DoneMsg:
		m.currentView = ViewList
		return m, nil

	case config.SavedMsg:
		m.svc.Logger.Info().Str("base_url", msg.Config.API.BaseURL).Msg("settings saved")
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKeys(msg); handled {
			return m, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKeys processes keys that work outside text inputs.
func (m *Model) handleGlobalKeys(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		m.stopSession()
		return tea.Quit, true
	}
	// The login form, the palette and the settings screen own the keyboard.
	if m.currentView == ViewLogin || m.currentView == ViewCommand || m.currentView == ViewSettings {
		return nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.currentView == ViewList {
			m.stopSession()
			return tea.Quit, true
		}

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Refresh):
		if m.currentView == ViewList {
			return m.svc.Poller.Refresh(), true
		}

	case key.Matches(msg, m.keys.Settings):
		if m.currentView == ViewList {
			return m.openSettings(), true
		}

	case key.Matches(msg, m.keys.Dismiss):
		for _, t := range m.toasts {
			m.svc.Store.DismissToast(t.ID)
		}
		return nil, true
	}
	return nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m *Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewList:
		m.bellList, cmd = m.bellList.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewSettings:
		m.settings, cmd = m.settings.Update(msg)
	}

	return m, cmd
}

// executeCommand handles a command from the palette.
func (m *Model) executeCommand(c command.CommandMsg) tea.Cmd {
	switch c.Name {
	case "refresh", "sync":
		return m.svc.Poller.Refresh()
	case "read-all", "readall":
		m.svc.Store.MarkAllRead()
	case "note":
		// note <type> <reference> <message...>
		if len(c.Args) < 2 {
			m.svc.Logger.Debug().Strs("args", c.Args).Msg("note needs a type and a reference")
			return nil
		}
		msg := strings.Join(c.Args[2:], " ")
		if _, ok := m.svc.Store.Post(c.Args[0], c.Args[1], msg); !ok {
			m.svc.Logger.Debug().Str("type", c.Args[0]).Str("reference", c.Args[1]).Msg("note duplicates a recent notification")
		}
	case "clear":
		m.svc.Store.Clear()
	case "settings":
		return m.openSettings()
	case "logout":
		return m.logout()
	case "quit", "q":
		m.stopSession()
		return tea.Quit
	default:
		m.svc.Logger.Debug().Str("command", c.Name).Msg("unknown command")
	}
	return nil
}

// openSettings shows the settings screen when it is configured.
func (m *Model) openSettings() tea.Cmd {
	if m.svc.Check == nil || m.svc.SaveConfig == nil {
		return nil
	}
	m.currentView = ViewSettings
	return m.settings.Init()
}

// refreshRecords pulls the store state into the views.
func (m *Model) refreshRecords() {
	list := m.svc.Store.Snapshot()
	now := m.now()

	m.unread = m.svc.Store.UnreadCount()
	m.bellList.SetRecords(list, now)
	m.detail.Refresh(list, now)

	toastRows := 0
	m.toasts = m.svc.Store.Toasts()
	if stack := m.layout.RenderToasts(m.toasts); stack != "" {
		toastRows = lipgloss.Height(stack)
	}
	if toastRows != m.layout.ToastHeight {
		m.layout.ToastHeight = toastRows
		m.resize()
	}

	m.helpView.SetSession(helpview.Session{
		User:      displayName(m.session.User),
		Role:      session.PrimaryRole(m.session),
		Bell:      m.bellList.Bell().Title,
		Connected: m.svc.Feed.Connected(),
	})
}

func (m *Model) resize() {
	w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
	m.loginView.SetSize(w, h)
	m.bellList.SetSize(w, h)
	m.detail.SetSize(w, h)
	m.helpView.SetSize(w, h)
	m.commandView.SetSize(w, h)
	m.settings.SetSize(w, h)
}

func (m *Model) now() time.Time {
	if m.svc.Clock != nil {
		return m.svc.Clock.Now()
	}
	return time.Now()
}

// View renders the full terminal UI using the layout manager.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("portal-notify", m.unread, m.syncStatus())
	toasts := m.layout.RenderToasts(m.toasts)
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, m.renderContent(), toasts, statusBar)
}

func (m *Model) renderContent() string {
	switch m.currentView {
	case ViewLogin:
		return m.loginView.View()
	case ViewList:
		return m.bellList.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewSettings:
		return m.settings.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the connection and the
// last reconciliation.
func (m *Model) syncStatus() string {
	if m.currentView == ViewLogin {
		return "offline"
	}
	status := "● offline"
	if m.svc.Feed.Connected() {
		status = "● live"
	}
	if m.lastSync != nil && m.lastSync.Ran {
		status += fmt.Sprintf(" | synced %s", m.lastSync.At.Local().Format("15:04"))
	}
	return status
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m *Model) keyHints() string {
	switch m.currentView {
	case ViewLogin:
		return "enter submit | tab next field | ctrl+c quit"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewDetail:
		return "esc back | m mark read | d remove | j/k scroll"
	case ViewSettings:
		return "e edit | enter test | esc back"
	default:
		return "q quit | ? help | : command | enter open | m read | M read all | r refresh | c settings"
	}
}

func displayName(u model.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
