package domain

import "time"

// Session holds the operator's credential pair and identity metadata.
// The zero value means "not authenticated". The session manager is the
// only writer; logout clears the whole struct, never individual fields.
type Session struct {
	AccessToken       string    `json:"access_token" toml:"access_token"`
	RefreshToken      string    `json:"refresh_token,omitempty" toml:"refresh_token,omitempty"`
	Username          string    `json:"username" toml:"username"`
	Email             string    `json:"email,omitempty" toml:"email,omitempty"`
	RememberMe        bool      `json:"remember_me" toml:"remember_me"`
	IssuedAt          time.Time `json:"issued_at" toml:"issued_at"`
	ExpiresAtEstimate time.Time `json:"expires_at_estimate" toml:"expires_at_estimate"`
}

// Authenticated reports whether the session carries an access token.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}
