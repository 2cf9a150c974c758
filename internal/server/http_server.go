// Package server constructs, starts and stops the HTTP listener that hosts
// the WebSocket endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// createHTTPServer creates an HTTP server for addr and handler. Upgraded
// WebSocket connections are not subject to these timeouts.
func createHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or the listener
// fails. On cancellation it performs a Shutdown bounded by ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		_ = ln.Close()
		return ErrServerRunning
	}

	s.log.Info().Msgf("Server is listening on ws://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info().Msg("Server shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections, closes every active peer and waits
// for their handlers to finish cleanup or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	closed := s.closeConnections()
	s.log.Info().Int("connections", closed).Msg("closed client connections")

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("Server shutdown complete")
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("shutdown timeout reached, some handlers may still be running")
		return ctx.Err()
	}
}
