package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"servlite/pkg/logger"
)

// StartJanitor runs a background eviction loop on the given cron schedule
// until ctx is canceled. An empty cron expression defaults to every five
// minutes. The expression is validated up front so a bad schedule fails at
// startup rather than silently never evicting.
func (p *Pool) StartJanitor(ctx context.Context, cronExpr string, idleFor time.Duration) error {
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("invalid eviction cron expression: %s", cronExpr)
	}
	if idleFor <= 0 {
		idleFor = 10 * time.Minute
	}
	logger.Info("limiter_janitor_started", "cron", cronExpr, "idle_for", idleFor.String())

	go func() {
		for {
			now := time.Now().UTC()
			next, err := gronx.NextTickAfter(cronExpr, now, false)
			if err != nil {
				logger.Error("limiter_janitor_nexttick_failed", "cron", cronExpr, "error", err)
				// fallback sleep then retry
				select {
				case <-time.After(30 * time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-time.After(next.Sub(now)):
			case <-ctx.Done():
				return
			}
			if n := p.Evict(idleFor); n > 0 {
				logger.Info("limiter_buckets_evicted", "count", n, "remaining", p.Size())
			}
		}
	}()
	return nil
}
