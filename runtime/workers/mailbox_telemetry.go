package workers

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"chat-router/contract"
)

// MailboxSource exposes inbox samples for every live entity.
type MailboxSource interface {
	MailboxStats() []contract.MailboxStat
}

// Mailboxes filling up faster than this fraction of capacity get a
// warning; everything else is debug noise.
const highWatermarkPercent = 80

var _ contract.Worker = (*MailboxTelemetryWorker)(nil)

// MailboxTelemetryWorker periodically samples entity inbox depth and
// session counts. Reading channel length and capacity is non-blocking,
// so sampling never interferes with command processing; an occasional
// stale sample is fine because metrics are periodic anyway.
type MailboxTelemetryWorker struct {
	log      *slog.Logger
	source   MailboxSource
	interval time.Duration
}

func NewMailboxTelemetryWorker(source MailboxSource, interval time.Duration, log *slog.Logger) *MailboxTelemetryWorker {
	return &MailboxTelemetryWorker{log: log, source: source, interval: interval}
}

func (w *MailboxTelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping mailbox telemetry")
			return nil
		case <-ticker.C:
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			w.log.Debug("Process sample",
				"alloc_mb", mem.Alloc/1024/1024, "num_gc", mem.NumGC,
				"goroutines", runtime.NumGoroutine())

			for _, stat := range w.source.MailboxStats() {
				if stat.Capacity > 0 && stat.Depth*100/stat.Capacity >= highWatermarkPercent {
					w.log.Warn("Mailbox near capacity",
						"room", stat.Room, "depth", stat.Depth,
						"capacity", stat.Capacity, "sessions", stat.Sessions)
					continue
				}
				w.log.Debug("Mailbox sample",
					"room", stat.Room, "depth", stat.Depth,
					"capacity", stat.Capacity, "sessions", stat.Sessions)
			}
		}
	}
}
