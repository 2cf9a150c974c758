package server

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Broadcaster fans a message out to every registered connection and evicts
// recipients whose delivery fails.
type Broadcaster struct {
	registry *Registry
	log      zerolog.Logger
}

// NewBroadcaster creates a Broadcaster reading members from registry.
func NewBroadcaster(registry *Registry, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		log:      log.With().Str("component", "broadcaster").Logger(),
	}
}

// Broadcast delivers msg to every registered connection except exclude,
// which may be nil. Deliveries run concurrently and independently; the call
// returns once all of them have succeeded or failed.
//
// Returns the number of successful deliveries.
func (b *Broadcaster) Broadcast(ctx context.Context, msg []byte, exclude Conn) int {
	recipients := b.recipients(exclude)
	if len(recipients) == 0 {
		return 0
	}

	b.log.Debug().Int("recipients", len(recipients)).Msg("broadcasting message")

	var delivered atomic.Int64
	var g errgroup.Group
	for _, conn := range recipients {
		conn := conn
		g.Go(func() error {
			if err := conn.Send(ctx, msg); err != nil {
				if isContextError(err) {
					b.log.Debug().Err(err).Str("addr", conn.Addr()).Msg("delivery abandoned")
					return nil
				}
				b.evict(conn, err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(delivered.Load())
}

func (b *Broadcaster) recipients(exclude Conn) []Conn {
	snapshot := b.registry.Snapshot()
	recipients := snapshot[:0]
	for _, conn := range snapshot {
		if exclude != nil && conn == exclude {
			continue
		}
		recipients = append(recipients, conn)
	}
	return recipients
}

// isContextError reports a Send that stopped because the caller's context
// ended. The recipient itself is not at fault.
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// evict drops a recipient whose delivery failed and closes its channel so
// the owning handler runs its cleanup.
func (b *Broadcaster) evict(conn Conn, cause error) {
	removed, total := b.registry.Remove(conn)
	if !removed {
		return
	}

	event := b.log.Warn()
	if errors.Is(cause, ErrConnectionClosed) {
		event = b.log.Debug()
	}
	event.Err(cause).
		Str("addr", conn.Addr()).
		Str("conn_id", conn.ID()).
		Int("total", total).
		Msg("evicted peer after failed delivery")

	_ = conn.Close()
}
