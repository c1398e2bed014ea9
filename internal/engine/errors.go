package engine

import "errors"

// Sentinel errors the dispatcher translates into wire responses. Anything
// else coming out of the engine is treated as an internal failure.
var (
	ErrAlreadyLoggedIn      = errors.New("engine: connection already holds a live session")
	ErrNotLoggedIn          = errors.New("engine: connection is not logged in")
	ErrInvalidCombination   = errors.New("engine: wrong username/password combination")
	ErrInvalidSession       = errors.New("engine: wrong session id")
	ErrUsernameTaken        = errors.New("engine: username already taken")
	ErrUserNotFound         = errors.New("engine: user does not exist")
	ErrNotAuthorized        = errors.New("engine: caller is not an admin")
	ErrAlreadyAuthorized    = errors.New("engine: target is already an admin")
	ErrAlreadyNotAuthorized = errors.New("engine: target is not an admin")
	ErrNoUpdateRequested    = errors.New("engine: no changes requested")
	ErrLastAdmin            = errors.New("engine: cannot demote or remove the last admin")
)
