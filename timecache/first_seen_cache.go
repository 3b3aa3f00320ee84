package timecache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// FirstSeenCache is a time cache that stamps an entry's expiry only the
// first time it is added; later lookups never extend it.
type FirstSeenCache struct {
	lk  sync.RWMutex
	m   map[string]time.Time
	ttl time.Duration
	clk clock.Clock

	done func()
}

var _ TimeCache = (*FirstSeenCache)(nil)

func newFirstSeenCache(ttl time.Duration, clk clock.Clock) *FirstSeenCache {
	tc := &FirstSeenCache{
		m:   make(map[string]time.Time),
		ttl: ttl,
		clk: clk,
	}

	ctx, done := context.WithCancel(context.Background())
	tc.done = done
	go background(ctx, clk, &tc.lk, tc.m)

	return tc
}

// Done stops the background sweep goroutine.
func (tc *FirstSeenCache) Done() {
	tc.done()
}

// Has reports whether s is currently present in the cache.
func (tc *FirstSeenCache) Has(s string) bool {
	tc.lk.RLock()
	defer tc.lk.RUnlock()

	_, ok := tc.m[s]
	return ok
}

// Add records s if it is not already present, stamping its expiry from
// now. It returns false if s was already present.
func (tc *FirstSeenCache) Add(s string) bool {
	tc.lk.Lock()
	defer tc.lk.Unlock()

	if _, ok := tc.m[s]; ok {
		return false
	}

	tc.m[s] = tc.clk.Now().Add(tc.ttl)
	return true
}
