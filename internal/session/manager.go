package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/llmwatch/internal/api"
	"github.com/pscheid92/llmwatch/internal/config"
	"github.com/pscheid92/llmwatch/internal/domain"
	apperrors "github.com/pscheid92/llmwatch/internal/errors"
	"github.com/pscheid92/llmwatch/internal/metrics"
)

// accessTokenTTL estimates how long an access token stays valid. The
// identity service issues 24h tokens; the estimate is only used to
// decide when a proactive refresh is worthwhile.
const accessTokenTTL = 24 * time.Hour

// ErrLoginInFlight is returned when a login or registration is already
// running, preventing duplicate submissions.
var ErrLoginInFlight = apperrors.Validation("a login attempt is already in progress")

// identityClient is the subset of the API client the manager needs.
type identityClient interface {
	Login(ctx context.Context, username, digest string, rememberMe bool) (*api.TokenResponse, error)
	Register(ctx context.Context, username, email, digest string) (*api.TokenResponse, error)
	Me(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error)
	SetAuthToken(token string)
}

// Manager owns the session lifecycle and its persistence.
type Manager struct {
	client identityClient
	store  *config.Store
	clock  clockwork.Clock

	mu       sync.Mutex
	session  domain.Session
	inFlight bool
	onLogout []func()
}

// NewManager creates a session manager over the given identity client
// and config store.
func NewManager(client identityClient, store *config.Store, clock clockwork.Clock) *Manager {
	return &Manager{client: client, store: store, clock: clock}
}

// LoadPersisted restores the session from the config store on cold
// start. The store is the sole source of truth at this point.
func (m *Manager) LoadPersisted() error {
	file, err := m.store.Load()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.session = file.Session
	m.mu.Unlock()

	m.client.SetAuthToken(file.Session.AccessToken)
	return nil
}

// Current returns a copy of the session. The zero value means the
// operator is not authenticated.
func (m *Manager) Current() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Authenticated reports whether a session is established.
func (m *Manager) Authenticated() bool {
	return m.Current().Authenticated()
}

// OnLogout registers a callback invoked synchronously during Logout,
// used to stop dependent polling and streaming.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	m.onLogout = append(m.onLogout, fn)
	m.mu.Unlock()
}

func (m *Manager) acquireInFlight() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		return ErrLoginInFlight
	}
	m.inFlight = true
	return nil
}

func (m *Manager) releaseInFlight() {
	m.mu.Lock()
	m.inFlight = false
	m.mu.Unlock()
}

// Login exchanges credentials for a session. The in-flight guard is
// always released on completion, success or failure.
func (m *Manager) Login(ctx context.Context, username, password string, rememberMe bool) (*domain.Session, error) {
	if err := m.acquireInFlight(); err != nil {
		return nil, err
	}
	defer m.releaseInFlight()

	username = strings.ToLower(strings.TrimSpace(username))
	digest := PasswordDigest(username, password)

	tokens, err := m.client.Login(ctx, username, digest, rememberMe)
	if err != nil {
		slog.Warn("Login failed", "username", username, "error", err)
		return nil, err
	}

	return m.establish(tokens, rememberMe)
}

// Register validates inputs locally, then creates an account and
// establishes the initial session. Validation failures short-circuit
// before any network call.
func (m *Manager) Register(ctx context.Context, username, email, password, confirm string) (*domain.Session, error) {
	if err := validateRegistration(username, email, password, confirm); err != nil {
		return nil, err
	}

	if err := m.acquireInFlight(); err != nil {
		return nil, err
	}
	defer m.releaseInFlight()

	username = strings.ToLower(strings.TrimSpace(username))
	digest := PasswordDigest(username, password)

	tokens, err := m.client.Register(ctx, username, strings.ToLower(email), digest)
	if err != nil {
		slog.Warn("Registration failed", "username", username, "error", err)
		return nil, err
	}

	return m.establish(tokens, true)
}

// establish persists the new session, then installs it in memory. The
// store write happens first so persisted and in-memory state can never
// diverge on a partial failure.
func (m *Manager) establish(tokens *api.TokenResponse, rememberMe bool) (*domain.Session, error) {
	now := m.clock.Now()
	newSession := domain.Session{
		AccessToken:       tokens.AccessToken,
		RefreshToken:      tokens.RefreshToken,
		Username:          tokens.User.Username,
		Email:             tokens.User.Email,
		RememberMe:        rememberMe,
		IssuedAt:          now,
		ExpiresAtEstimate: now.Add(accessTokenTTL),
	}

	if err := m.persist(newSession); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.session = newSession
	m.mu.Unlock()

	m.client.SetAuthToken(newSession.AccessToken)
	slog.Info("Session established", "username", newSession.Username)

	result := newSession
	return &result, nil
}

func (m *Manager) persist(session domain.Session) error {
	file, err := m.store.Load()
	if err != nil {
		return err
	}
	file.Session = session
	return m.store.Save(file)
}

// Validate checks the access token against the identity endpoint. On
// failure it attempts exactly one Refresh before reporting the session
// invalid. It never retries beyond that.
func (m *Manager) Validate(ctx context.Context) bool {
	current := m.Current()
	if !current.Authenticated() {
		return false
	}

	if err := m.client.Me(ctx, current.AccessToken); err != nil {
		slog.Debug("Session validation failed, attempting refresh", "error", err)
		return m.Refresh(ctx)
	}
	return true
}

// Refresh exchanges the refresh token for a new pair. On any failure it
// returns false and leaves the prior session untouched.
func (m *Manager) Refresh(ctx context.Context) bool {
	current := m.Current()
	if current.RefreshToken == "" {
		return false
	}

	tokens, err := m.client.Refresh(ctx, current.RefreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		slog.Warn("Token refresh failed", "error", err)
		return false
	}

	refreshed := current
	refreshed.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	now := m.clock.Now()
	refreshed.IssuedAt = now
	refreshed.ExpiresAtEstimate = now.Add(accessTokenTTL)

	if err := m.persist(refreshed); err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		slog.Error("Failed to persist refreshed session", "error", err)
		return false
	}

	m.mu.Lock()
	m.session = refreshed
	m.mu.Unlock()

	m.client.SetAuthToken(refreshed.AccessToken)
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	return true
}

// Logout clears persisted and in-memory session state synchronously and
// stops all dependents through the registered callbacks.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.session = domain.Session{}
	callbacks := append([]func(){}, m.onLogout...)
	m.mu.Unlock()

	m.client.SetAuthToken("")

	for _, fn := range callbacks {
		fn()
	}

	if err := m.persist(domain.Session{}); err != nil {
		return err
	}

	slog.Info("Logged out")
	return nil
}
