package api

import (
	"context"
	"net/http"
)

// TokenResponse is the identity service's reply to login, register,
// and refresh calls.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	User         struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

type loginRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	RememberMe   bool   `json:"remember_me"`
}

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// Login exchanges a username and password digest for a token pair.
// The digest is computed by the session manager; this layer never sees
// the plaintext password.
func (c *Client) Login(ctx context.Context, username, digest string, rememberMe bool) (*TokenResponse, error) {
	var tokens TokenResponse
	req := loginRequest{Username: username, PasswordHash: digest, RememberMe: rememberMe}
	if err := c.doJSON(ctx, http.MethodPost, c.authURL+"/api/auth/login", "", req, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Register creates an account and returns an initial token pair.
func (c *Client) Register(ctx context.Context, username, email, digest string) (*TokenResponse, error) {
	var tokens TokenResponse
	req := registerRequest{Username: username, Email: email, PasswordHash: digest}
	if err := c.doJSON(ctx, http.MethodPost, c.authURL+"/api/auth/register", "", req, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Me checks the access token against the identity endpoint.
func (c *Client) Me(ctx context.Context, accessToken string) error {
	return c.doJSON(ctx, http.MethodGet, c.authURL+"/api/auth/me", accessToken, nil, nil)
}

// Refresh exchanges the refresh token for a new token pair. The refresh
// token is presented as the bearer credential.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var tokens TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, c.authURL+"/api/auth/refresh", refreshToken, nil, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}
