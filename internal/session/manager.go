// Package session holds the logged-in portal session and derives roles
// and realtime destinations from it.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nhle/portal-notify/internal/credential"
	"github.com/nhle/portal-notify/internal/model"
)

// Credentials persists sessions between runs.
type Credentials interface {
	SaveSession(model.Session) error
	LoadSession() (model.Session, error)
	DeleteSession() error
}

// Manager is the process-wide current session.
type Manager struct {
	creds Credentials

	mu      sync.RWMutex
	current model.Session
}

// NewManager returns a Manager with no session. Call Restore to pick up a
// stored one.
func NewManager(creds Credentials) *Manager {
	return &Manager{creds: creds}
}

// Restore loads the stored session, if any. It reports whether one was found.
func (m *Manager) Restore() (bool, error) {
	sess, err := m.creds.LoadSession()
	if errors.Is(err, credential.ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("restoring session: %w", err)
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return true, nil
}

// Login makes sess current and stores it.
func (m *Manager) Login(sess model.Session) error {
	if !sess.Valid() {
		return errors.New("login response carried no token")
	}
	if err := m.creds.SaveSession(sess); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return nil
}

// Logout forgets the current session.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.current = model.Session{}
	m.mu.Unlock()
	return m.creds.DeleteSession()
}

// Current returns the session and whether it is usable.
func (m *Manager) Current() (model.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.current.Valid()
}

// Token returns the bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Token
}

// UserID returns the current user's id as it appears in payload actor fields.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.User.IDString()
}

// Roles returns the normalized roles of the current session.
func (m *Manager) Roles() []string {
	sess, _ := m.Current()
	return Roles(sess)
}
