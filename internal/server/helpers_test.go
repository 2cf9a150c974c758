package server

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Conn. Messages pushed with deliver are returned by
// Receive; everything sent to it is recorded.
type fakeConn struct {
	addr   string
	block  chan struct{}
	onRecv func()

	mu      sync.Mutex
	sendErr error
	sent    []string

	inbox      chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	closeCalls atomic.Int32
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		addr:   addr,
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Addr() string { return c.addr }

func (c *fakeConn) ID() string { return "fake-" + c.addr }

func (c *fakeConn) Send(ctx context.Context, msg []byte) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	c.sent = append(c.sent, string(msg))
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	if c.onRecv != nil {
		c.onRecv()
	}
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closeCalls.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(msg string) {
	c.inbox <- []byte(msg)
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// waitForMessages blocks until conn has recorded exactly want.
func waitForMessages(t *testing.T, conn *fakeConn, want ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got := conn.messages()
		if len(got) != len(want) {
			return false
		}
		for i := range want {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond, "conn %s got %q, want %q", conn.addr, conn.messages(), want)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
