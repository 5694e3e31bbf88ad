package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/notify"
	"github.com/nhle/portal-notify/internal/portal"
	"github.com/nhle/portal-notify/internal/session"
	"github.com/nhle/portal-notify/internal/ui/config"
)

// loginTimeout bounds the login request.
const loginTimeout = 30 * time.Second

// Feed is the realtime connection.
type Feed interface {
	Start(token string, destinations []string)
	Stop()
	Connected() bool
}

// Scheduler is the background reconciliation poller.
type Scheduler interface {
	Start() tea.Cmd
	Stop()
	Refresh() tea.Cmd
	WaitForNextResult() tea.Cmd
}

// Authenticator exchanges credentials for a session.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (model.Session, error)
}

// Sessions holds the current session.
type Sessions interface {
	Current() (model.Session, bool)
	Login(model.Session) error
	Logout() error
}

// Services are the long-lived components the TUI drives.
type Services struct {
	Store    *notify.Store
	Poller   Scheduler
	Feed     Feed
	Auth     Authenticator
	Sessions Sessions

	// AllowedRoles gate the realtime subscription.
	AllowedRoles []string

	// Config is the loaded configuration shown on the settings screen.
	// Check and SaveConfig back its connection test and save; the screen
	// is unavailable when either is nil.
	Config     model.AppConfig
	Check      config.Checker
	SaveConfig config.Saver

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// loginResultMsg carries the outcome of a login request.
type loginResultMsg struct {
	session model.Session
	err     error
}

// storeChangedMsg is sent whenever the notification store changes.
type storeChangedMsg struct{}

// tickMsg re-renders relative timestamps.
type tickMsg time.Time

// login returns a command that authenticates against the portal.
func (m *Model) login(username, password string) tea.Cmd {
	auth := m.svc.Auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
		defer cancel()

		sess, err := auth.Login(ctx, username, password)
		return loginResultMsg{session: sess, err: err}
	}
}

// startSession subscribes to the realtime feed for sess and starts the
// poller. It returns the poller's first result waiter only once per
// program run since the waiter outlives a logout.
func (m *Model) startSession(sess model.Session) tea.Cmd {
	m.session = sess
	m.bellList.SetBell(notify.BellForRole(session.PrimaryRole(sess)))
	m.refreshRecords()

	log := m.svc.Logger.With().Str("user", sess.User.Username).Logger()
	if session.Allowed(session.Roles(sess), m.svc.AllowedRoles) {
		m.svc.Feed.Start(sess.Token, session.Destinations(sess))
	} else {
		log.Info().Strs("roles", session.Roles(sess)).Msg("role has no notification stream")
	}

	cmd := m.svc.Poller.Start()
	if m.waitingResults {
		return nil
	}
	m.waitingResults = cmd != nil
	return cmd
}

// stopSession halts the feed and the poller.
func (m *Model) stopSession() {
	m.svc.Feed.Stop()
	m.svc.Poller.Stop()
}

// logout ends the session and clears every local trace of it.
func (m *Model) logout() tea.Cmd {
	m.stopSession()
	m.svc.Store.Clear()
	if err := m.svc.Sessions.Logout(); err != nil {
		m.svc.Logger.Warn().Err(err).Msg("clearing stored session")
	}
	m.session = model.Session{}
	m.detail.Clear()
	m.currentView = ViewLogin
	return m.loginView.Start("")
}

// waitForChanges delivers the next store change signal.
func waitForChanges(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// loginError renders a login failure for the form.
func loginError(err error) string {
	if portal.IsAuthError(err) {
		return "Sai tên đăng nhập hoặc mật khẩu"
	}
	return "Đăng nhập thất bại: " + err.Error()
}
