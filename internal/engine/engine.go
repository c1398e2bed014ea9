// Package engine implements the authentication and authorization state
// machine. It owns the session registry, the connection registry, and the
// token-ownership map; no other component touches them. A single coarse
// mutex serializes every operation, which keeps the worker-per-connection
// transport safe without per-map locking.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/skordev/authline/internal/connect"
	"github.com/skordev/authline/internal/session"
	"github.com/skordev/authline/internal/store"
	"github.com/skordev/authline/internal/user"
)

// Engine handles register/login/logout/update/admin/delete requests.
type Engine struct {
	mu        sync.Mutex
	registry  *session.Registry
	connector *connect.Connector
	owners    map[string]user.User
	store     store.Store
}

// New creates an engine over the given registry and store.
func New(registry *session.Registry, st store.Store) *Engine {
	return &Engine{
		registry:  registry,
		connector: connect.NewConnector(),
		owners:    make(map[string]user.User),
		store:     st,
	}
}

// requireNoSession reconciles a stale binding and fails with
// ErrAlreadyLoggedIn when the connection still holds a live session. Used by
// register and both login forms.
func (e *Engine) requireNoSession(conn connect.Conn) error {
	token, bound := e.connector.Token(conn)
	if !bound {
		return nil
	}
	if e.registry.IsValid(token) {
		return ErrAlreadyLoggedIn
	}
	e.reap(conn, token)
	return nil
}

// requireSession reconciles a stale binding and fails with ErrNotLoggedIn
// when the connection holds no live session. Used by every operation that
// needs an authenticated caller.
func (e *Engine) requireSession(conn connect.Conn) error {
	token, bound := e.connector.Token(conn)
	if !bound {
		return ErrNotLoggedIn
	}
	if !e.registry.IsValid(token) {
		e.reap(conn, token)
		return ErrNotLoggedIn
	}
	return nil
}

// reap removes a dead session: unbind the connection, drop the token and its
// ownership entry.
func (e *Engine) reap(conn connect.Conn, token string) {
	e.connector.Unbind(conn)
	e.registry.Invalidate(token)
	delete(e.owners, token)
}

// Register creates a new account. It does not log the connection in; the
// caller follows up with a credential login. The first account ever created
// becomes an admin regardless of the request; the returned flag reports that
// outcome.
func (e *Engine) Register(conn connect.Conn, acct user.Account, prof user.Profile) (first bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireNoSession(conn); err != nil {
		return false, err
	}

	taken, err := e.store.Has(acct.Username)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return false, ErrUsernameTaken
	}

	first, err = e.store.IsEmpty()
	if err != nil {
		return false, fmt.Errorf("check bootstrap: %w", err)
	}

	u := user.User{Account: acct, Profile: prof, Role: user.RoleRegular}
	if first {
		u.Role = user.RoleAdmin
	}

	if err := e.store.Add(u); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return false, ErrUsernameTaken
		}
		return false, fmt.Errorf("persist user: %w", err)
	}

	return first, nil
}

// LoginWithPassword authenticates by credentials and returns a fresh token.
func (e *Engine) LoginWithPassword(conn connect.Conn, username, password string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireNoSession(conn); err != nil {
		return "", err
	}

	u, err := e.store.Extract(username)
	if errors.Is(err, store.ErrUserNotFound) {
		return "", ErrInvalidCombination
	}
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if u.Password != password {
		return "", ErrInvalidCombination
	}

	return e.bind(conn, u), nil
}

// LoginWithToken resumes an existing session on this connection. No new
// token is minted; the supplied one is echoed back on success.
func (e *Engine) LoginWithToken(conn connect.Conn, token string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireNoSession(conn); err != nil {
		return "", err
	}

	if !e.registry.IsValid(token) {
		return "", ErrInvalidSession
	}
	u, ok := e.owners[token]
	if !ok {
		return "", ErrInvalidSession
	}

	e.connector.Bind(conn, token, u)
	return token, nil
}

// Logout ends the connection's session. A supplied token that does not match
// the live bound token fails with ErrInvalidSession.
func (e *Engine) Logout(conn connect.Conn, token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(conn); err != nil {
		return err
	}

	bound, _ := e.connector.Token(conn)
	if token != bound {
		return ErrInvalidSession
	}

	e.reap(conn, bound)
	return nil
}

// UpdateProfile overlays the requested field changes on the caller's stored
// record. The connection's cached user is deliberately left as it was; the
// next credential login reads the fresh record.
func (e *Engine) UpdateProfile(conn connect.Conn, token string, ch store.Changes) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(conn); err != nil {
		return err
	}
	if !e.registry.IsValid(token) {
		return ErrInvalidSession
	}
	if len(ch) == 0 {
		return ErrNoUpdateRequested
	}

	u, _ := e.connector.User(conn)
	if _, err := e.store.Update(u.Username, ch); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("update user %s: %w", u.Username, err)
	}
	return nil
}

// UpdatePassword replaces the caller's password after re-verifying the old
// credentials. The comparison runs against the user cached at login time,
// not a fresh store read.
func (e *Engine) UpdatePassword(conn connect.Conn, token, username, oldPassword, newPassword string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(conn); err != nil {
		return err
	}
	if !e.registry.IsValid(token) {
		return ErrInvalidSession
	}

	bound, _ := e.connector.User(conn)
	if username != bound.Username || oldPassword != bound.Password {
		return ErrInvalidCombination
	}

	if _, err := e.store.Update(bound.Username, store.Changes{store.FieldPassword: newPassword}); err != nil {
		return fmt.Errorf("update password for %s: %w", bound.Username, err)
	}
	return nil
}

// MakeAdmin grants admin rights to the target user. The caller must be an
// admin according to their stored record, not the cached binding.
func (e *Engine) MakeAdmin(conn connect.Conn, token, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(conn); err != nil {
		return err
	}
	if !e.registry.IsValid(token) {
		return ErrInvalidSession
	}

	acting, err := e.actingUser(conn)
	if err != nil {
		return err
	}
	if !acting.IsAdmin() {
		return ErrNotAuthorized
	}

	targetUser, err := e.store.Extract(target)
	if errors.Is(err, store.ErrUserNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("fetch target %s: %w", target, err)
	}
	if targetUser.IsAdmin() {
		return ErrAlreadyAuthorized
	}

	if err := e.store.SetRole(target, user.RoleAdmin); err != nil {
		return fmt.Errorf("promote %s: %w", target, err)
	}
	return nil
}

// RemoveAdmin revokes admin rights from the target user. Demoting the only
// remaining admin is rejected by the store.
func (e *Engine) RemoveAdmin(conn connect.Conn, token, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(conn); err != nil {
		return err
	}
	if !e.registry.IsValid(token) {
		return ErrInvalidSession
	}

	acting, err := e.actingUser(conn)
	if err != nil {
		return err
	}
	if !acting.IsAdmin() {
		return ErrNotAuthorized
	}

	targetUser, err := e.store.Extract(target)
	if errors.Is(err, store.ErrUserNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("fetch target %s: %w", target, err)
	}
	if !targetUser.IsAdmin() {
		return ErrAlreadyNotAuthorized
	}

	if err := e.store.SetRole(target, user.RoleRegular); err != nil {
		if errors.Is(err, store.ErrLastAdmin) {
			return ErrLastAdmin
		}
		return fmt.Errorf("demote %s: %w", target, err)
	}
	return nil
}

// DeleteUser removes the target account. On success the acting session's
// token is invalidated but the binding is left in place, so the acting
// connection is reaped as stale on its next operation. Invalidating the
// actor instead of the deleted user's sessions is a deliberate oddity kept
// for wire compatibility; see DESIGN.md.
func (e *Engine) DeleteUser(conn connect.Conn, token, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(conn); err != nil {
		return err
	}
	if !e.registry.IsValid(token) {
		return ErrInvalidSession
	}

	acting, err := e.actingUser(conn)
	if err != nil {
		return err
	}
	if !acting.IsAdmin() {
		return ErrNotAuthorized
	}

	exists, err := e.store.Has(target)
	if err != nil {
		return fmt.Errorf("check target %s: %w", target, err)
	}
	if !exists {
		return ErrUserNotFound
	}

	if err := e.store.Remove(target); err != nil {
		if errors.Is(err, store.ErrLastAdmin) {
			return ErrLastAdmin
		}
		return fmt.Errorf("remove %s: %w", target, err)
	}

	e.registry.Invalidate(token)
	delete(e.owners, token)
	return nil
}

// IsLoggedIn reports whether the connection is bound to a live session. It
// does not reconcile a stale binding.
func (e *Engine) IsLoggedIn(conn connect.Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	token, bound := e.connector.Token(conn)
	return bound && e.registry.IsValid(token)
}

// IsSessionValid reports whether the token is live.
func (e *Engine) IsSessionValid(token string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.registry.IsValid(token)
}

// CurrentUser returns the user bound to the connection, if any.
func (e *Engine) CurrentUser(conn connect.Conn) (user.User, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.connector.User(conn)
}

// actingUser resolves the caller's stored record so role checks see role
// changes made after the caller logged in.
func (e *Engine) actingUser(conn connect.Conn) (user.User, error) {
	bound, _ := e.connector.User(conn)
	u, err := e.store.Extract(bound.Username)
	if errors.Is(err, store.ErrUserNotFound) {
		return user.User{}, ErrNotAuthorized
	}
	if err != nil {
		return user.User{}, fmt.Errorf("fetch acting user %s: %w", bound.Username, err)
	}
	return u, nil
}

// bind issues a fresh token, records its owner and binds the connection.
func (e *Engine) bind(conn connect.Conn, u user.User) string {
	token := e.registry.Issue()
	e.owners[token] = u
	e.connector.Bind(conn, token, u)
	return token
}
