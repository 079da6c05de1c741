package devserver

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// userStore holds registered accounts and issued tokens in memory.
// The dev server accepts the client-side digest as the stored secret;
// the real identity service bcrypts it again.
type userStore struct {
	mu      sync.Mutex
	users   map[string]userRecord
	access  map[string]string // access token -> username
	refresh map[string]string // refresh token -> username
}

type userRecord struct {
	email  string
	digest string
}

func newUserStore() *userStore {
	return &userStore{
		users:   make(map[string]userRecord),
		access:  make(map[string]string),
		refresh: make(map[string]string),
	}
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func (s *userStore) register(username, email, digest string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return false
	}
	s.users[username] = userRecord{email: strings.ToLower(email), digest: digest}
	return true
}

func (s *userStore) verify(username, digest string) (userRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok || user.digest != digest {
		return userRecord{}, false
	}
	return user, true
}

func (s *userStore) issue(username string) (accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accessToken = uuid.NewString()
	refreshToken = uuid.NewString()
	s.access[accessToken] = username
	s.refresh[refreshToken] = username
	return accessToken, refreshToken
}

func (s *userStore) lookupAccess(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.access[token]
	return username, ok
}

func (s *userStore) rotate(refreshToken string) (string, string, bool) {
	s.mu.Lock()
	username, ok := s.refresh[refreshToken]
	if ok {
		delete(s.refresh, refreshToken)
	}
	s.mu.Unlock()
	if !ok {
		return "", "", false
	}
	access, refresh := s.issue(username)
	return access, refresh, true
}

func (s *userStore) revoke(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, accessToken)
}

func (s *userStore) email(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[username].email
}
