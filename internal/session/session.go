// Package session holds the authenticated identity of the running client
// and persists it across runs.
package session

import (
	"sync"

	"github.com/dukerupert/tasksparkle/internal/model"
)

// Session is the in-memory authentication state. A Session is either
// authenticated (non-empty token and a user) or not; the two fields are
// always set and cleared together.
type Session struct {
	mu    sync.RWMutex
	token string
	user  *model.User
}

func New() *Session {
	return &Session{}
}

// Token returns the bearer token, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the logged-in user, or nil.
func (s *Session) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

func (s *Session) set(token string, user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = &user
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
}
