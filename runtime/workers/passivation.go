package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-router/contract"
)

// Passivator is the router-side hook for evicting idle entities.
type Passivator interface {
	PassivateIdle(idleAfter time.Duration) []string
}

var _ contract.Worker = (*PassivationWorker)(nil)

// PassivationWorker periodically evicts room entities that have been
// idle for longer than the configured duration, reclaiming goroutines
// and buffers. Durable state survives eviction; only the transient
// session registry is lost, which clients recover from by rejoining.
type PassivationWorker struct {
	log       *slog.Logger
	router    Passivator
	idleAfter time.Duration
	interval  time.Duration
}

func NewPassivationWorker(router Passivator, idleAfter, interval time.Duration, log *slog.Logger) *PassivationWorker {
	return &PassivationWorker{log: log, router: router, idleAfter: idleAfter, interval: interval}
}

func (w *PassivationWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping passivation sweep")
			return nil
		case <-ticker.C:
			if rooms := w.router.PassivateIdle(w.idleAfter); len(rooms) > 0 {
				w.log.Info("Passivated idle rooms", "rooms", rooms)
			}
		}
	}
}
