package connect

import (
	"github.com/skordev/authline/internal/user"
)

// Conn is an opaque handle for a live client connection, supplied by the
// transport layer. The core only ever compares handles for identity and asks
// for the remote host when writing audit records.
type Conn interface {
	// RemoteHost returns the peer's host (no port). An error here means the
	// transport is unusable and is treated as fatal by the dispatcher.
	RemoteHost() (string, error)
}

type binding struct {
	token string
	user  user.User
}

// Connector binds live connections to a session token and the authenticated
// user behind it. At most one binding exists per connection. Not safe for
// concurrent use on its own; exclusively owned by the engine.
type Connector struct {
	bindings map[Conn]binding
}

// NewConnector creates an empty connector.
func NewConnector() *Connector {
	return &Connector{bindings: make(map[Conn]binding)}
}

// Bind associates the connection with a token and user, replacing any
// previous binding. Panics on a nil connection.
func (c *Connector) Bind(conn Conn, token string, u user.User) {
	mustConn(conn)
	c.bindings[conn] = binding{token: token, user: u}
}

// Unbind removes the connection's binding, if any.
func (c *Connector) Unbind(conn Conn) {
	mustConn(conn)
	delete(c.bindings, conn)
}

// IsBound reports whether the connection has a binding.
func (c *Connector) IsBound(conn Conn) bool {
	mustConn(conn)
	_, ok := c.bindings[conn]
	return ok
}

// Token returns the session token bound to the connection.
func (c *Connector) Token(conn Conn) (string, bool) {
	mustConn(conn)
	b, ok := c.bindings[conn]
	return b.token, ok
}

// User returns the user bound to the connection.
func (c *Connector) User(conn Conn) (user.User, bool) {
	mustConn(conn)
	b, ok := c.bindings[conn]
	return b.user, ok
}

func mustConn(conn Conn) {
	if conn == nil {
		panic("connect: nil connection handle")
	}
}
