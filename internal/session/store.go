package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/tasksparkle/internal/api"
	"github.com/dukerupert/tasksparkle/internal/model"
	"github.com/dukerupert/tasksparkle/internal/store"
)

// Keys under which the session is persisted.
const (
	TokenKey = "token"
	UserKey  = "user"
)

// AuthError is returned by Login and Register for any failure, whether the
// backend rejected the credentials or could not be reached.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Authenticator is the subset of the API client used for authentication.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Register(ctx context.Context, name, email, password string) (*api.MessageResponse, error)
}

// Store ties a Session to durable storage and the auth endpoints.
type Store struct {
	kv      store.KV
	auth    Authenticator
	session *Session
	logger  *slog.Logger
}

func NewStore(kv store.KV, auth Authenticator, s *Session, logger *slog.Logger) *Store {
	return &Store{kv: kv, auth: auth, session: s, logger: logger}
}

func (st *Store) Session() *Session {
	return st.session
}

// Login authenticates against the backend. On success the token and user
// are persisted and the session becomes authenticated; on failure the
// session is left as it was.
func (st *Store) Login(ctx context.Context, email, password string) error {
	resp, err := st.auth.Login(ctx, email, password)
	if err != nil {
		return &AuthError{Op: "login", Err: err}
	}
	if resp.Token == "" {
		return &AuthError{Op: "login", Err: fmt.Errorf("server returned no token")}
	}

	user := model.User{Name: resp.Name}
	data, err := json.Marshal(user)
	if err != nil {
		return &AuthError{Op: "login", Err: fmt.Errorf("encode user: %w", err)}
	}
	if err := st.kv.Set(TokenKey, resp.Token); err != nil {
		return &AuthError{Op: "login", Err: fmt.Errorf("persist token: %w", err)}
	}
	if err := st.kv.Set(UserKey, string(data)); err != nil {
		if derr := st.kv.Delete(TokenKey); derr != nil {
			st.logger.Warn("failed to delete session key", "key", TokenKey, "error", derr)
		}
		return &AuthError{Op: "login", Err: fmt.Errorf("persist user: %w", err)}
	}

	st.session.set(resp.Token, user)
	st.logger.Info("logged in", "user", user.Name)
	return nil
}

// Register creates an account. It never authenticates; the caller logs in
// separately. Returns the backend's confirmation message.
func (st *Store) Register(ctx context.Context, name, email, password string) (string, error) {
	resp, err := st.auth.Register(ctx, name, email, password)
	if err != nil {
		return "", &AuthError{Op: "register", Err: err}
	}
	st.logger.Info("registered account", "user", name)
	return resp.Message, nil
}

// Logout forgets the session locally. There is no server call and it
// cannot fail; storage errors are only logged.
func (st *Store) Logout() {
	st.forget()
	st.logger.Info("logged out")
}

func (st *Store) forget() {
	for _, key := range []string{TokenKey, UserKey} {
		if err := st.kv.Delete(key); err != nil {
			st.logger.Warn("failed to delete session key", "key", key, "error", err)
		}
	}
	st.session.clear()
}

// Restore rehydrates the session from storage without touching the
// network. Both keys must be present and the user must decode; anything
// less leaves the session unauthenticated.
func (st *Store) Restore() {
	token, okToken, err := st.kv.Get(TokenKey)
	if err != nil {
		st.logger.Warn("failed to read token", "error", err)
		st.dropUnreadable(err)
		return
	}
	raw, okUser, err := st.kv.Get(UserKey)
	if err != nil {
		st.logger.Warn("failed to read user", "error", err)
		st.dropUnreadable(err)
		return
	}
	if !okToken || !okUser || token == "" {
		if okToken != okUser {
			st.logger.Debug("partial session in storage, ignoring", "has_token", okToken, "has_user", okUser)
		}
		st.session.clear()
		return
	}

	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		st.logger.Warn("stored user is corrupt, ignoring session", "error", err)
		st.session.clear()
		return
	}
	st.session.set(token, user)
	st.logger.Debug("session restored", "user", user.Name)
}

// dropUnreadable clears the session, deleting the stored keys when they
// can never be read with the current key.
func (st *Store) dropUnreadable(err error) {
	if errors.Is(err, store.ErrUnreadable) {
		st.forget()
		return
	}
	st.session.clear()
}
