package capture

import (
	"context"
	"time"
)

// RunSweeper periodically reclaims abandoned ledger entries until ctx
// is canceled. Entries with an in-flight retrieval are skipped for the
// cycle. Never returns an error.
func (e *Engine) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Sweep(now)
		}
	}
}

// Sweep runs one expiry pass at the given time.
func (e *Engine) Sweep(now time.Time) {
	removed, skipped := e.ledger.Expire(now.Add(-e.opts.MaxEntryAge))
	if removed > 0 || skipped > 0 {
		e.log.Info("ledger sweep", "removed", removed, "skipped", skipped)
	}
}
