package server

import (
	"fmt"
	"net"
)

// ClientConn wraps a TCP connection and serves as the opaque connection
// handle the engine and defense key their per-connection state on.
type ClientConn struct {
	conn net.Conn
}

// NewClientConn wraps an accepted connection.
func NewClientConn(conn net.Conn) *ClientConn {
	return &ClientConn{conn: conn}
}

// RemoteHost returns the peer's host with the port stripped.
func (c *ClientConn) RemoteHost() (string, error) {
	addr := c.conn.RemoteAddr()
	if addr == nil {
		return "", fmt.Errorf("connection has no remote address")
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", fmt.Errorf("split remote address %q: %w", addr, err)
	}
	return host, nil
}

// Close closes the underlying connection.
func (c *ClientConn) Close() error {
	return c.conn.Close()
}
