// Package store persists user accounts. The SQLite implementation is the one
// the server runs with; the interface exists so the engine can be exercised
// against an in-memory fake.
package store

import (
	"errors"

	"github.com/skordev/authline/internal/user"
)

var (
	// ErrUserNotFound means no account exists under the given username.
	ErrUserNotFound = errors.New("store: user not found")

	// ErrDuplicateUser means an account already exists under the username.
	ErrDuplicateUser = errors.New("store: username already taken")

	// ErrLastAdmin means the operation would leave the system without any
	// administrator.
	ErrLastAdmin = errors.New("store: cannot remove the last admin")
)

// Field names a mutable account attribute.
type Field int

const (
	FieldUsername Field = iota
	FieldFirstName
	FieldLastName
	FieldEmail
	FieldPassword
)

// Changes is a partial overlay of account fields to apply on update. Absent
// fields keep their stored value.
type Changes map[Field]string

// Store is the persistent account registry. Usernames are case-sensitive.
type Store interface {
	// Add inserts a new account. Returns ErrDuplicateUser if the username
	// is taken.
	Add(u user.User) error

	// Remove deletes the account. Returns ErrUserNotFound if absent and
	// ErrLastAdmin if the account is the only admin left.
	Remove(username string) error

	// Update applies the overlay atomically and returns the resulting user.
	// A username change that collides with an existing account returns
	// ErrDuplicateUser and leaves the store untouched.
	Update(username string, ch Changes) (user.User, error)

	// Has reports whether an account exists under the username.
	Has(username string) (bool, error)

	// Extract fetches the account, password decrypted.
	Extract(username string) (user.User, error)

	// IsEmpty reports whether the store holds no accounts at all.
	IsEmpty() (bool, error)

	// SetRole changes the account's role. Demoting the only admin returns
	// ErrLastAdmin.
	SetRole(username string, role user.Role) error

	// List returns every account ordered by username.
	List() ([]user.User, error)
}
