package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs the cleanup sweep on an interval. It only ever moves rows
// toward terminal states, so it is safe next to live validation traffic
// and safe to run on every replica.
type Sweeper struct {
	auth     AuthServiceInterface
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(auth AuthServiceInterface, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{auth: auth, interval: interval, logger: logger}
}

// Run blocks until ctx is canceled. Sweep failures are logged and the
// loop keeps going; a transient store outage must not kill the sweeper.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := w.auth.Cleanup(ctx)
			if err != nil {
				w.logger.WarnContext(ctx, "cleanup sweep failed", "error", err)
				continue
			}
			if count > 0 {
				w.logger.InfoContext(ctx, "cleanup sweep done", "rows", count)
			}
		}
	}
}
