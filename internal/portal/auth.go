package portal

import (
	"context"
	"fmt"

	"github.com/nhle/portal-notify/internal/model"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the account returned on successful login.
type LoginResponse struct {
	model.User
	Token string `json:"token"`
}

// Session converts the response into a storable session.
func (r LoginResponse) Session() model.Session {
	return model.Session{Token: r.Token, User: r.User}
}

// Login exchanges credentials for a session. A rejected login surfaces as
// AuthError or HTTPError depending on the status the backend chose.
func (c *Client) Login(ctx context.Context, username, password string) (model.Session, error) {
	var resp LoginResponse
	err := c.post(ctx, "/auth/login", LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return model.Session{}, fmt.Errorf("logging in as %s: %w", username, err)
	}
	if resp.Token == "" {
		return model.Session{}, fmt.Errorf("logging in as %s: response carried no token", username)
	}
	return resp.Session(), nil
}
