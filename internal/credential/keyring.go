package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/nhle/portal-notify/internal/model"
)

const (
	serviceName = "portal-notify"
	sessionKey  = "session"
)

// ErrNoSession is returned by LoadSession when nobody is logged in.
var ErrNoSession = errors.New("no stored session")

// Store keeps the portal session in the system keyring.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the first available keyring backend.
// dir holds the encrypted file backend when no OS keyring is present.
func Open(dir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("portal-notify-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// SaveSession stores the token and user of a successful login.
func (s *Store) SaveSession(sess model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	err = s.ring.Set(keyring.Item{
		Key:   sessionKey,
		Data:  data,
		Label: "portal-notify session",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", sessionKey, err)
	}

	return nil
}

// LoadSession returns the stored session, or ErrNoSession.
func (s *Store) LoadSession() (model.Session, error) {
	item, err := s.ring.Get(sessionKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return model.Session{}, ErrNoSession
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("getting credential %q: %w", sessionKey, err)
	}

	var sess model.Session
	if err := json.Unmarshal(item.Data, &sess); err != nil {
		return model.Session{}, fmt.Errorf("decoding session: %w", err)
	}
	if !sess.Valid() {
		return model.Session{}, ErrNoSession
	}

	return sess, nil
}

// DeleteSession forgets the stored session. A missing session is not an error.
func (s *Store) DeleteSession() error {
	err := s.ring.Remove(sessionKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", sessionKey, err)
	}

	return nil
}
