// Package server is the TCP transport: it accepts connections, reads
// command lines and writes back the dispatcher's responses. One goroutine
// runs per connection; all cross-connection state lives behind the engine
// and defense locks.
package server

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/skordev/authline/internal/dispatch"
	"github.com/skordev/authline/internal/protocol"
)

// ConnectionHandler is called for each new client connection. The handler
// is responsible for running the connection and closing it.
type ConnectionHandler func(cc *ClientConn)

// Listener accepts incoming client connections.
type Listener struct {
	addr    string
	handler ConnectionHandler
}

// NewListener creates a new TCP listener.
func NewListener(addr string, handler ConnectionHandler) *Listener {
	return &Listener{
		addr:    addr,
		handler: handler,
	}
}

// ListenAndServe starts accepting connections. Blocks until the listener
// is closed or a fatal error occurs.
func (l *Listener) ListenAndServe() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.addr, err)
	}
	defer ln.Close()

	log.Printf("Authentication server listening on %s", l.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("Accept error: %v", err)
			continue
		}

		cc := NewClientConn(conn)
		go l.handler(cc)
	}
}

// Serve runs the command loop for one connection: read a line, dispatch it,
// write the response. Returns when the client disconnects.
func Serve(cc *ClientConn, d *dispatch.Dispatcher) {
	defer cc.Close()

	scanner := bufio.NewScanner(cc.conn)
	writer := bufio.NewWriter(cc.conn)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		response := d.Execute(protocol.Parse(line), cc)

		if _, err := writer.WriteString(response + "\n"); err != nil {
			log.Printf("Write error: %v", err)
			return
		}
		if err := writer.Flush(); err != nil {
			log.Printf("Flush error: %v", err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Read error: %v", err)
	}
}
