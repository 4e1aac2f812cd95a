package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"modes1090/internal/beast"
	"modes1090/internal/modes"
)

// maxLineLength caps a raw input line; the longest valid one is 30 bytes.
const maxLineLength = 256

// Frame is a demodulated Mode S frame received from a network client.
type Frame struct {
	Data     []byte
	Received time.Time
	Source   string
	Signal   byte // Beast signal level, 0 for raw input
}

// Input accepts TCP clients sending frames and forwards them on a channel.
type Input struct {
	name   string
	ln     net.Listener
	logger *logrus.Logger
	out    chan<- Frame
	read   func(ctx context.Context, conn net.Conn) error

	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	frames  atomic.Uint64
	invalid atomic.Uint64
}

// ListenRawInput accepts clients sending "*HEX;" lines.
func ListenRawInput(addr string, out chan<- Frame, logger *logrus.Logger) (*Input, error) {
	in, err := listenInput("raw-in", addr, out, logger)
	if err != nil {
		return nil, err
	}
	in.read = in.readRaw
	return in, nil
}

// ListenBeastInput accepts clients sending the Beast binary format.
func ListenBeastInput(addr string, out chan<- Frame, logger *logrus.Logger) (*Input, error) {
	in, err := listenInput("beast-in", addr, out, logger)
	if err != nil {
		return nil, err
	}
	in.read = in.readBeast
	return in, nil
}

func listenInput(name, addr string, out chan<- Frame, logger *logrus.Logger) (*Input, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for %s clients on %s: %w", name, addr, err)
	}

	logger.WithFields(logrus.Fields{
		"service": name,
		"addr":    ln.Addr().String(),
	}).Info("Input service listening")

	return &Input{
		name:   name,
		ln:     ln,
		logger: logger,
		out:    out,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the listening address.
func (in *Input) Addr() net.Addr {
	return in.ln.Addr()
}

// Counters returns frames forwarded and input rejected.
func (in *Input) Counters() (frames, invalid uint64) {
	return in.frames.Load(), in.invalid.Load()
}

// Serve accepts clients until ctx is done, then waits for their readers.
func (in *Input) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { in.Close() })
	defer stop()
	defer in.wg.Wait()

	for {
		conn, err := in.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s accept failed: %w", in.name, err)
		}

		in.mu.Lock()
		in.conns[conn] = struct{}{}
		in.mu.Unlock()

		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			defer in.drop(conn)

			remote := conn.RemoteAddr().String()
			in.logger.WithFields(logrus.Fields{
				"service": in.name,
				"remote":  remote,
			}).Info("Client connected")

			if err := in.read(ctx, conn); err != nil && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				in.logger.WithError(err).WithField("remote", remote).Debug("Client read ended")
			}
		}()
	}
}

func (in *Input) drop(conn net.Conn) {
	in.mu.Lock()
	delete(in.conns, conn)
	in.mu.Unlock()
	conn.Close()
}

// Close stops accepting and disconnects every client.
func (in *Input) Close() error {
	in.mu.Lock()
	for conn := range in.conns {
		conn.Close()
	}
	in.mu.Unlock()
	return in.ln.Close()
}

func (in *Input) send(ctx context.Context, f Frame) bool {
	select {
	case in.out <- f:
		in.frames.Add(1)
		return true
	case <-ctx.Done():
		return false
	}
}

func (in *Input) readRaw(ctx context.Context, conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxLineLength), maxLineLength)
	remote := conn.RemoteAddr().String()

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		data, err := modes.ParseHexFrame(line)
		if err != nil {
			in.invalid.Add(1)
			in.logger.WithError(err).Trace("Ignoring raw input line")
			continue
		}
		if !in.send(ctx, Frame{Data: data, Received: time.Now(), Source: remote}) {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func (in *Input) readBeast(ctx context.Context, conn net.Conn) error {
	decoder := beast.NewDecoder(in.logger)
	remote := conn.RemoteAddr().String()
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)
		for _, msg := range decoder.Decode(buf[:n]) {
			if !msg.IsModeS() {
				continue
			}
			if !msg.IsValid() {
				in.invalid.Add(1)
				continue
			}
			f := Frame{Data: msg.Data, Received: msg.Received, Source: remote, Signal: msg.Signal}
			if !in.send(ctx, f) {
				return ctx.Err()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
