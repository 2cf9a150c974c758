// Package client implements the interactive peer of the broadcast server: a
// session that prints relayed messages while sending lines typed locally.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrServerUnavailable reports that nothing accepted the connection at
	// the configured address.
	ErrServerUnavailable = errors.New("server unavailable")
	// ErrConnectionClosed reports that the connection was closed by either side.
	ErrConnectionClosed = errors.New("connection closed")
)

// Config holds the client connection settings.
type Config struct {
	Host             string
	Port             int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// NewConfig creates a Config populated with defaults.
func NewConfig() Config {
	return Config{
		Host:             "localhost",
		Port:             12345,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// URL returns the WebSocket URL of the server.
func (c Config) URL() string {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(c.Host, strconv.Itoa(c.Port))}
	return u.String()
}

// Conn is the client end of a broadcast connection.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial opens a connection to the server described by cfg. A refused
// connection is reported as ErrServerUnavailable.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}

	ws, resp, err := dialer.DialContext(ctx, cfg.URL(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w at %s: %w", ErrServerUnavailable, cfg.URL(), err)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.URL(), err)
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = NewConfig().WriteTimeout
	}
	return &Conn{ws: ws, writeTimeout: writeTimeout}, nil
}

// Send transmits msg as one text frame.
func (c *Conn) Send(msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		if isClosed(err) {
			return ErrConnectionClosed
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Receive blocks for the next message from the server.
func (c *Conn) Receive() (string, error) {
	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		if isClosed(err) {
			return "", ErrConnectionClosed
		}
		return "", fmt.Errorf("read: %w", err)
	}
	return string(msg), nil
}

// SendClose starts the closing handshake without releasing the socket. The
// server answers with its own close frame, which ends Receive.
func (c *Conn) SendClose() error {
	frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return c.ws.WriteControl(websocket.CloseMessage, frame, time.Now().Add(time.Second))
}

// Close sends a normal-closure frame and releases the socket. A Receive
// blocked on another goroutine returns ErrConnectionClosed.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.SendClose()
		if cerr := c.ws.Close(); cerr != nil && !isClosed(cerr) {
			err = cerr
		}
	})
	return err
}

func isClosed(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent)
}
