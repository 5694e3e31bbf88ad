package model

import "strconv"

// User is the account returned by the portal login endpoint.
type User struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"fullName"`
	Phone      string `json:"phone,omitempty"`
	RoleName   string `json:"roleName"`
	Department string `json:"department,omitempty"`
}

// IDString returns the user id in the form actor ids take on the wire.
func (u User) IDString() string {
	if u.ID == 0 {
		return ""
	}
	return strconv.Itoa(u.ID)
}

// Session is an authenticated login: bearer token plus the user it belongs to.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Valid reports whether the session can be used for authenticated calls.
func (s Session) Valid() bool {
	return s.Token != ""
}
