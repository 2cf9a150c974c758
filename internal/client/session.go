package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Prompt is printed whenever the session waits for a line of input.
const Prompt = "You: "

const closeGrace = time.Second

// errClosedByServer ends the session when the server goes away first.
var errClosedByServer = errors.New("connection closed by server")

// Session runs a Receiver and an Input loop against a single connection.
type Session struct {
	cfg Config
	in  io.Reader
	out io.Writer
	log zerolog.Logger

	outMu   sync.Mutex
	running atomic.Bool
}

// NewSession creates a Session that reads lines from in and prints to out.
func NewSession(cfg Config, in io.Reader, out io.Writer, log zerolog.Logger) *Session {
	return &Session{
		cfg: cfg,
		in:  in,
		out: out,
		log: log,
	}
}

// Running reports whether the session is between connect and shutdown.
func (s *Session) Running() bool {
	return s.running.Load()
}

// Run connects and blocks until the input loop stops, the server closes the
// connection or ctx is cancelled. Only a failure to connect is returned as
// an error.
func (s *Session) Run(ctx context.Context) error {
	url := s.cfg.URL()
	s.printf("Connecting to %s...\n", url)

	conn, err := Dial(ctx, s.cfg)
	if err != nil {
		if errors.Is(err, ErrServerUnavailable) {
			s.printf("Could not connect to server at %s\n", url)
			s.printf("Make sure the server is running with: broadcast-server start\n")
		} else {
			s.printf("Connection error: %v\n", err)
		}
		return err
	}

	s.running.Store(true)
	s.printf("Connected to broadcast server!\n")
	s.printf("Type your messages and press Enter. Type 'exit' or 'quit' to leave.\n")

	received := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(received)
		return s.receive(conn)
	})
	g.Go(func() error {
		defer s.hangUp(conn, received)
		return s.input(gctx, conn)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errClosedByServer) {
		s.log.Debug().Err(err).Msg("session ended with error")
	}
	return nil
}

// hangUp marks the session stopped, so the receiver prints nothing more, and
// performs the closing handshake. The socket is released once the receiver
// has seen the server's close frame or closeGrace elapses.
func (s *Session) hangUp(conn *Conn, received <-chan struct{}) {
	s.running.Store(false)

	if err := conn.SendClose(); err == nil {
		select {
		case <-received:
		case <-time.After(closeGrace):
		}
	}
	_ = conn.Close()
}

// receive prints every message until the connection closes. Nothing is
// printed once the session has stopped running.
func (s *Session) receive(conn *Conn) error {
	for {
		msg, err := conn.Receive()
		if err != nil {
			if !s.running.Load() {
				return nil
			}
			if errors.Is(err, ErrConnectionClosed) {
				s.printf("\nConnection closed by server\n")
			} else {
				s.printf("\nError receiving messages: %v\n", err)
			}
			return errClosedByServer
		}

		// Keep draining after hang-up until the server's close frame arrives.
		if !s.running.Load() {
			continue
		}
		s.printf("\r%s\n%s", msg, Prompt)
	}
}

// input transmits local lines until exit/quit, end of input or cancellation.
func (s *Session) input(ctx context.Context, conn *Conn) error {
	lines := readLines(ctx, s.in)

	for {
		s.printf("%s", Prompt)

		var line string
		select {
		case <-ctx.Done():
			if !errors.Is(context.Cause(ctx), errClosedByServer) {
				s.printf("\nDisconnecting...\n")
			}
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		line = strings.TrimSpace(line)
		if isExitCommand(line) {
			s.printf("Disconnecting from server...\n")
			return nil
		}
		if line == "" {
			continue
		}

		if err := conn.Send(line); err != nil {
			s.printf("Error sending message: %v\n", err)
			return err
		}
	}
}

func isExitCommand(line string) bool {
	return strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit")
}

// readLines scans r on its own goroutine. The channel closes at end of input
// or once ctx is done; a read already blocked in r is left to finish.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func (s *Session) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = fmt.Fprintf(s.out, format, args...)
}
