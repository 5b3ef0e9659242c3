// Package runtime hosts the live side of the system: room entities,
// their session registries, and the partition router. It contains no
// domain rules beyond command handling order.
package runtime

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"chat-router/domain"
	"chat-router/errors"
)

// OverflowPolicy decides what happens when a session's outbound buffer
// is full. drop-newest protects the room's command loop and is the
// default; block applies backpressure to the publisher and is only
// safe for low-fanout rooms.
type OverflowPolicy string

const (
	DropNewest OverflowPolicy = "drop-newest"
	Block      OverflowPolicy = "block"
)

func ParseOverflowPolicy(raw string) (OverflowPolicy, error) {
	switch OverflowPolicy(raw) {
	case DropNewest, Block:
		return OverflowPolicy(raw), nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", raw)
	}
}

// Outbound wraps one session's sink with a bounded channel so a slow
// or broken consumer never stalls the room. A pump goroutine drains
// the channel into the sink; the first sink failure marks the session
// broken and the next Publish reports it.
type Outbound struct {
	sessionID string
	sink      domain.Sink
	ch        chan domain.Envelope
	policy    OverflowPolicy
	log       *slog.Logger
	failed    atomic.Bool
	closeOnce sync.Once
}

func NewOutbound(sessionID string, sink domain.Sink, capacity int, policy OverflowPolicy, log *slog.Logger) *Outbound {
	o := &Outbound{
		sessionID: sessionID,
		sink:      sink,
		ch:        make(chan domain.Envelope, capacity),
		policy:    policy,
		log:       log,
	}
	go o.pump()
	return o
}

func (o *Outbound) pump() {
	for env := range o.ch {
		if o.failed.Load() {
			continue
		}
		if err := o.sink.Push(env); err != nil {
			o.failed.Store(true)
			o.log.Warn("outbound push failed", "session", o.sessionID, "error", err)
		}
	}
	_ = o.sink.Close()
}

// Publish enqueues an envelope for delivery. Under drop-newest a full
// buffer silently discards the envelope; rejoin-with-cursor is the
// recovery mechanism for such gaps. An error means the session is
// broken and should be stopped.
func (o *Outbound) Publish(env domain.Envelope) error {
	if o.failed.Load() {
		return fmt.Errorf("%w: %s", errors.ErrSessionClosed, o.sessionID)
	}
	switch o.policy {
	case Block:
		o.ch <- env
	default:
		select {
		case o.ch <- env:
		default:
			o.log.Debug("outbound buffer full, dropping message", "session", o.sessionID)
		}
	}
	return nil
}

// Close stops the pump after pending envelopes drain, then closes the
// underlying sink to signal end-of-stream.
func (o *Outbound) Close() {
	o.closeOnce.Do(func() {
		close(o.ch)
	})
}

func (o *Outbound) Depth() int    { return len(o.ch) }
func (o *Outbound) Capacity() int { return cap(o.ch) }
