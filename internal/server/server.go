// Package server owns the listening side: one Server holds the registry and
// broadcaster and hands them to every connection handler it spawns.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrServerRunning is returned when Serve is called on a server that is
// already serving.
var ErrServerRunning = errors.New("server already running")

// Server owns the registry shared by every connection handler.
type Server struct {
	cfg         Config
	log         zerolog.Logger
	registry    *Registry
	broadcaster *Broadcaster
	origins     *originPolicy
	upgrader    websocket.Upgrader
	httpServer  *http.Server

	// ctx is the parent of every handler context; cancel fires on shutdown.
	ctx      context.Context
	cancel   context.CancelFunc
	handlers sync.WaitGroup
	running  atomic.Bool
}

// New creates a Server from cfg. Unset values fall back to defaults.
func New(cfg Config, log zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.sanitize()

	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:         cfg,
		log:         log,
		registry:    registry,
		broadcaster: NewBroadcaster(registry, log),
		origins:     newOriginPolicy(cfg.AllowedOrigins, log),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	s.httpServer = createHTTPServer(cfg.Addr(), s.Routes())

	return s, nil
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// Registry returns the set of active connections.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Broadcaster returns the server's fan-out component.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// serveConn runs the handler for an upgraded connection on the calling
// goroutine and returns when the connection is closed.
func (s *Server) serveConn(ws *websocket.Conn, remoteAddr string) {
	conn := newWSConn(ws, remoteAddr, s.cfg)
	if s.ctx.Err() != nil {
		_ = conn.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}

	go conn.keepAlive(s.cfg.PingInterval)

	h := NewHandler(conn, s.registry, s.broadcaster, s.cfg.RateLimit, s.log)
	_ = h.Run(s.ctx)
}

// closeConnections sends a going-away close frame to every registered peer.
// Their handlers observe the closure and run their own cleanup.
func (s *Server) closeConnections() int {
	conns := s.registry.Snapshot()
	for _, conn := range conns {
		if ws, ok := conn.(*wsConn); ok {
			_ = ws.closeWith(websocket.CloseGoingAway, "server shutting down")
			continue
		}
		_ = conn.Close()
	}
	return len(conns)
}
