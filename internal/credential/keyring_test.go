package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/portal-notify/internal/model"
)

func TestSessionRoundTrip(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	_, err := s.LoadSession()
	assert.ErrorIs(t, err, ErrNoSession)

	sess := model.Session{
		Token: "jwt-token",
		User:  model.User{ID: 7, Username: "svc", RoleName: "SERVICE_STAFF"},
	}
	require.NoError(t, s.SaveSession(sess))

	got, err := s.LoadSession()
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	require.NoError(t, s.DeleteSession())
	_, err = s.LoadSession()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestDeleteSessionWhenMissing(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))
	assert.NoError(t, s.DeleteSession())
}

func TestLoadSessionWithoutToken(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: sessionKey, Data: []byte(`{"user":{"id":1}}`)}})
	_, err := NewStore(ring).LoadSession()
	assert.ErrorIs(t, err, ErrNoSession)
}
