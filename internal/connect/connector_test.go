package connect

import (
	"testing"

	"github.com/skordev/authline/internal/user"
)

type fakeConn struct{ host string }

func (f *fakeConn) RemoteHost() (string, error) { return f.host, nil }

func TestBindAndLookup(t *testing.T) {
	c := NewConnector()
	conn := &fakeConn{host: "10.0.0.1"}
	u := user.User{Account: user.Account{Username: "alice"}, Role: user.RoleRegular}

	if c.IsBound(conn) {
		t.Fatal("fresh connection should not be bound")
	}

	c.Bind(conn, "token-1", u)

	if !c.IsBound(conn) {
		t.Fatal("connection should be bound after Bind")
	}
	if token, ok := c.Token(conn); !ok || token != "token-1" {
		t.Fatalf("expected token-1, got %q ok=%v", token, ok)
	}
	if got, ok := c.User(conn); !ok || got.Username != "alice" {
		t.Fatalf("expected alice, got %q ok=%v", got.Username, ok)
	}
}

func TestRebindReplaces(t *testing.T) {
	c := NewConnector()
	conn := &fakeConn{}

	c.Bind(conn, "token-1", user.User{Account: user.Account{Username: "alice"}})
	c.Bind(conn, "token-2", user.User{Account: user.Account{Username: "bob"}})

	if token, _ := c.Token(conn); token != "token-2" {
		t.Fatalf("rebind should replace the binding, got %q", token)
	}
}

func TestUnbind(t *testing.T) {
	c := NewConnector()
	conn := &fakeConn{}

	c.Bind(conn, "token-1", user.User{})
	c.Unbind(conn)

	if c.IsBound(conn) {
		t.Fatal("connection should not be bound after Unbind")
	}

	// Unbinding again is a no-op.
	c.Unbind(conn)
}

func TestBindingsAreKeyedByConnection(t *testing.T) {
	c := NewConnector()
	a := &fakeConn{host: "10.0.0.1"}
	b := &fakeConn{host: "10.0.0.1"}

	c.Bind(a, "token-a", user.User{})

	if c.IsBound(b) {
		t.Fatal("distinct connections with the same host must not share a binding")
	}
}

func TestNilConnectionPanics(t *testing.T) {
	c := NewConnector()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on nil connection")
		}
	}()
	c.IsBound(nil)
}
