package timecache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// backgroundSweepInterval is how often a cache scans for expired entries.
var backgroundSweepInterval = time.Minute

// background periodically sweeps expired entries out of m until ctx is
// cancelled. clk is injectable so tests can advance time deterministically
// instead of sleeping in real time.
func background(ctx context.Context, clk clock.Clock, lk sync.Locker, m map[string]time.Time) {
	ticker := clk.Ticker(backgroundSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			sweep(lk, m, now)
		case <-ctx.Done():
			return
		}
	}
}

// sweep removes every entry from m whose expiry is before now.
func sweep(lk sync.Locker, m map[string]time.Time, now time.Time) {
	lk.Lock()
	defer lk.Unlock()

	for k, expiry := range m {
		if expiry.Before(now) {
			delete(m, k)
		}
	}
}
