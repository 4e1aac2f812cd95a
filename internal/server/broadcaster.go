package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// writeTimeout bounds how long one slow client can hold up a broadcast.
const writeTimeout = time.Second

// Broadcaster accepts TCP clients and sends every line to all of them.
// Clients that fail a write are dropped.
type Broadcaster struct {
	name   string
	ln     net.Listener
	logger *logrus.Logger

	mu      sync.Mutex
	clients map[net.Conn]struct{}
	closed  bool
}

// ListenBroadcaster starts listening on addr. Serve must be called to accept
// clients.
func ListenBroadcaster(name, addr string, logger *logrus.Logger) (*Broadcaster, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for %s clients on %s: %w", name, addr, err)
	}

	logger.WithFields(logrus.Fields{
		"service": name,
		"addr":    ln.Addr().String(),
	}).Info("Output service listening")

	return &Broadcaster{
		name:    name,
		ln:      ln,
		logger:  logger,
		clients: make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the listening address.
func (b *Broadcaster) Addr() net.Addr {
	return b.ln.Addr()
}

// Serve accepts clients until ctx is done or the listener is closed.
func (b *Broadcaster) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { b.Close() })
	defer stop()

	for {
		conn, err := b.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s accept failed: %w", b.name, err)
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			conn.Close()
			return nil
		}
		b.clients[conn] = struct{}{}
		count := len(b.clients)
		b.mu.Unlock()

		b.logger.WithFields(logrus.Fields{
			"service": b.name,
			"remote":  conn.RemoteAddr().String(),
			"clients": count,
		}).Info("Client connected")
	}
}

// Broadcast writes line plus a newline to every client.
func (b *Broadcaster) Broadcast(line string) {
	data := []byte(line + "\n")

	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(data); err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"service": b.name,
				"remote":  conn.RemoteAddr().String(),
			}).Info("Client dropped")
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close stops accepting and disconnects every client.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
	return b.ln.Close()
}
