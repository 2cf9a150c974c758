package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/broadcast-server/internal/server"
)

// syncBuffer is a bytes.Buffer safe for the session's concurrent writers and
// the test's reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startServer(t *testing.T) (*server.Server, Config) {
	t.Helper()

	srv, err := server.New(server.NewConfig(), zerolog.Nop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := NewConfig()
	cfg.Host = host
	cfg.Port = port
	return srv, cfg
}

// observe connects a raw peer and consumes its welcome message.
func observe(t *testing.T, cfg Config) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(cfg.URL()+"/", nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	assert.Contains(t, read(t, conn), "Welcome!")
	return conn
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func runSession(t *testing.T, cfg Config, in io.Reader) (*syncBuffer, error) {
	t.Helper()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- NewSession(cfg, in, out, zerolog.Nop()).Run(context.Background())
	}()

	select {
	case err := <-done:
		return out, err
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
		return out, nil
	}
}

func TestConfigURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:12345", NewConfig().URL())

	cfg := Config{Host: "::1", Port: 9000}
	assert.Equal(t, "ws://[::1]:9000", cfg.URL())
}

func TestIsExitCommand(t *testing.T) {
	for _, line := range []string{"exit", "quit", "EXIT", "Quit"} {
		assert.True(t, isExitCommand(line), line)
	}
	for _, line := range []string{"", "exit now", "quitting", "q"} {
		assert.False(t, isExitCommand(line), line)
	}
}

func TestSession_QuitAndEmptyLinesAreNotTransmitted(t *testing.T) {
	srv, cfg := startServer(t)
	observer := observe(t, cfg)

	out, err := runSession(t, cfg, strings.NewReader("hello\n\n   \nQUIT\nafter quit\n"))
	require.NoError(t, err)

	joined := read(t, observer)
	require.True(t, strings.HasPrefix(joined, "[System] "), joined)
	require.True(t, strings.HasSuffix(joined, " joined"), joined)
	addr := strings.TrimSuffix(strings.TrimPrefix(joined, "[System] "), " joined")

	assert.Equal(t, "["+addr+"] hello", read(t, observer))
	assert.Equal(t, "[System] "+addr+" left", read(t, observer))

	assert.Contains(t, out.String(), "Connected to broadcast server!")
	assert.Contains(t, out.String(), "Disconnecting from server...")
	require.Eventually(t, func() bool { return srv.Registry().Size() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSession_EndOfInputStops(t *testing.T) {
	srv, cfg := startServer(t)

	out, err := runSession(t, cfg, strings.NewReader(""))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Connected to broadcast server!")
	assert.NotContains(t, out.String(), "Connection closed by server")
	require.Eventually(t, func() bool { return srv.Registry().Size() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSession_PrintsRelayedMessages(t *testing.T) {
	srv, cfg := startServer(t)
	observer := observe(t, cfg)

	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- NewSession(cfg, in, out, zerolog.Nop()).Run(context.Background())
	}()

	joined := read(t, observer)
	require.Contains(t, joined, "joined")

	require.NoError(t, observer.WriteMessage(websocket.TextMessage, []byte("greetings")))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "greetings")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "\r["+observer.LocalAddr().String()+"] greetings\n"+Prompt)

	_, err := io.WriteString(w, "exit\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
	}
	require.Eventually(t, func() bool { return srv.Registry().Size() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSession_ServerCloseEndsSession(t *testing.T) {
	srv, cfg := startServer(t)

	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- NewSession(cfg, in, out, zerolog.Nop()).Run(context.Background())
	}()

	require.Eventually(t, func() bool { return srv.Registry().Size() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish after server shutdown")
	}
	assert.Contains(t, out.String(), "Connection closed by server")
	assert.NotContains(t, out.String(), "Disconnecting...")
}

func TestSession_CancelPrintsDisconnecting(t *testing.T) {
	srv, cfg := startServer(t)

	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- NewSession(cfg, in, out, zerolog.Nop()).Run(ctx)
	}()

	require.Eventually(t, func() bool { return srv.Registry().Size() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish after cancellation")
	}
	assert.Contains(t, out.String(), "\nDisconnecting...\n")
	assert.NotContains(t, out.String(), "Connection closed by server")
}

func TestSession_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := NewConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = port

	out, err := runSession(t, cfg, strings.NewReader("never sent\n"))
	require.ErrorIs(t, err, ErrServerUnavailable)

	assert.Contains(t, out.String(), "Could not connect to server at ws://127.0.0.1:"+strconv.Itoa(port))
	assert.Contains(t, out.String(), "Make sure the server is running with: broadcast-server start")
	assert.NotContains(t, out.String(), "Connected to broadcast server!")
}
