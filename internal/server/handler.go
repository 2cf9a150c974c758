// Package server drives the lifecycle of one accepted connection: welcome,
// join announcement, receive loop, leave announcement and cleanup.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// State is a connection handler lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler runs the lifecycle of a single connection. One Handler exists per
// accepted connection and is not reused.
type Handler struct {
	conn        Conn
	registry    *Registry
	broadcaster *Broadcaster
	limiter     *rate.Limiter
	rateLimit   RateLimitConfig
	log         zerolog.Logger

	state     atomic.Int32
	closeOnce sync.Once
}

// NewHandler creates a Handler for conn in the Connecting state.
func NewHandler(conn Conn, registry *Registry, broadcaster *Broadcaster, rateLimit RateLimitConfig, log zerolog.Logger) *Handler {
	return &Handler{
		conn:        conn,
		registry:    registry,
		broadcaster: broadcaster,
		limiter:     newRateLimiter(rateLimit),
		rateLimit:   rateLimit,
		log:         log.With().Str("addr", conn.Addr()).Str("conn_id", conn.ID()).Logger(),
	}
}

// State returns the current lifecycle state.
func (h *Handler) State() State {
	return State(h.state.Load())
}

// Run drives the connection until it closes. Cleanup runs exactly once on
// every exit path, panics included. A graceful close yields a nil error;
// anything else is logged here and returned for the caller's information.
func (h *Handler) Run(ctx context.Context) (err error) {
	defer h.close(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			h.log.Error().Err(err).Msg("connection error")
		}
	}()

	if err := h.activate(ctx); err != nil {
		return err
	}
	return h.receive(ctx)
}

func (h *Handler) activate(ctx context.Context) error {
	total := h.registry.Add(h.conn)
	h.state.Store(int32(StateActive))
	h.log.Info().Int("total", total).Msg("client connected")

	if err := h.conn.Send(ctx, []byte(WelcomeMessage(h.conn.Addr()))); err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			return nil
		}
		return fmt.Errorf("send welcome: %w", err)
	}

	if total > 1 {
		h.broadcaster.Broadcast(ctx, []byte(JoinMessage(h.conn.Addr())), h.conn)
	}
	return nil
}

// receive processes inbound messages one at a time, in arrival order.
func (h *Handler) receive(ctx context.Context) error {
	for {
		msg, err := h.conn.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrConnectionClosed):
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}

		if h.limiter != nil && !h.limiter.Allow() {
			h.log.Warn().
				Int("burst", h.rateLimit.Burst).
				Dur("interval", h.rateLimit.RefillInterval).
				Msg("rate limit exceeded; discarding message")
			continue
		}

		text := ChatMessage(h.conn.Addr(), msg)
		h.log.Info().Msg(text)
		h.broadcaster.Broadcast(ctx, []byte(text), h.conn)
	}
}

// close deregisters the connection, tells the remaining peers and releases
// the channel. Only the first call has any effect.
func (h *Handler) close(ctx context.Context) {
	h.closeOnce.Do(func() {
		h.state.Store(int32(StateClosing))

		_, total := h.registry.Remove(h.conn)
		if total > 0 {
			// The handler context may already be cancelled by shutdown; the
			// announcement is still attempted under the per-send write deadline.
			h.broadcaster.Broadcast(context.WithoutCancel(ctx), []byte(LeaveMessage(h.conn.Addr())), nil)
		}

		if err := h.conn.Close(); err != nil {
			h.log.Debug().Err(err).Msg("error closing connection")
		}

		h.state.Store(int32(StateClosed))
		h.log.Info().Int("total", total).Msg("client disconnected")
	})
}
