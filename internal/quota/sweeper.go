package quota

import (
	"context"
	"time"
)

// EvictIdle removes every client state whose last activity is older than
// the TTL. Returns the number of evicted clients. Clients holding live
// concurrency slots are kept regardless of age; evicting them would leak
// the paired Release.
func (l *Limiter) EvictIdle(ttl time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-ttl)
	evicted := 0
	for id, state := range l.clients {
		if state.concurrent > 0 {
			continue
		}
		if state.lastSeen.Before(cutoff) {
			delete(l.clients, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs the periodic idle eviction until the context is
// cancelled. Interval and TTL come from the quota config.
func (l *Limiter) StartSweeper(ctx context.Context) {
	interval := l.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ttl := l.cfg.IdleTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.EvictIdle(ttl); n > 0 {
					l.logger.Info("Idle quota states evicted", "count", n, "active", l.ActiveClients())
				}
			}
		}
	}()
}
