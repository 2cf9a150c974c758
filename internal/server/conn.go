// Package server defines the connection abstraction shared by the registry,
// broadcaster and handler, plus its WebSocket implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnectionClosed reports that the peer or the local side closed the
// connection. It is a normal terminal condition, not a failure.
var ErrConnectionClosed = errors.New("connection closed")

// Conn is a live bidirectional message channel to one peer. Implementations
// must allow Send to be called from several goroutines at once.
type Conn interface {
	// Addr returns the peer address identifier in host:port form.
	Addr() string
	// ID returns a unique identifier used for log correlation.
	ID() string
	// Send delivers one text message to the peer.
	Send(ctx context.Context, msg []byte) error
	// Receive blocks for the next inbound message. It returns
	// ErrConnectionClosed once the channel has been closed by either side.
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the channel. It is safe to call more than once.
	Close() error
}

// wsConn implements Conn on top of a gorilla WebSocket.
type wsConn struct {
	conn         *websocket.Conn
	addr         string
	id           string
	writeTimeout time.Duration
	pongWait     time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(conn *websocket.Conn, addr string, cfg Config) *wsConn {
	c := &wsConn{
		conn:         conn,
		addr:         addr,
		id:           uuid.NewString(),
		writeTimeout: cfg.WriteTimeout,
		pongWait:     cfg.PongWait,
		closed:       make(chan struct{}),
	}
	conn.SetReadLimit(cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	return c
}

func (c *wsConn) Addr() string { return c.addr }

func (c *wsConn) ID() string { return c.id }

// Send writes msg as a single text frame under the write deadline.
func (c *wsConn) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(c.deadline(ctx, c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline for %s: %w", c.addr, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		if isExpectedCloseError(err) {
			return ErrConnectionClosed
		}
		return fmt.Errorf("write to %s: %w", c.addr, err)
	}
	return nil
}

// Receive reads the next data frame. A read blocked in the socket is not
// interrupted by ctx; Close unblocks it.
func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return nil, classifyReadError(err)
	}
	// Data frames extend the read deadline just as pongs do.
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		return nil, classifyReadError(err)
	}
	return msg, nil
}

// keepAlive pings the peer every interval until the connection closes.
func (c *wsConn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			// WriteControl is safe to call concurrently with WriteMessage.
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// Close sends a normal-closure frame and releases the socket.
func (c *wsConn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *wsConn) closeWith(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		frame := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(time.Second))
		if cerr := c.conn.Close(); cerr != nil && !isExpectedCloseError(cerr) {
			err = cerr
		}
	})
	return err
}

func (c *wsConn) deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

// classifyReadError folds every graceful shutdown path into ErrConnectionClosed.
func classifyReadError(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure) {
		return ErrConnectionClosed
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isExpectedCloseError(err) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("read: %w", err)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
