package timecache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// LastSeenCache is a time cache that extends an entry's expiry on every
// Add or Has.
type LastSeenCache struct {
	lk  sync.Mutex
	m   map[string]time.Time
	ttl time.Duration
	clk clock.Clock

	done func()
}

var _ TimeCache = (*LastSeenCache)(nil)

func newLastSeenCache(ttl time.Duration, clk clock.Clock) *LastSeenCache {
	tc := &LastSeenCache{
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
func (tc *LastSeenCache) Done() {
	tc.done()
}

// Add records s, extending its expiry from now regardless of whether it
// was already present. It returns false when s was already present.
func (tc *LastSeenCache) Add(s string) bool {
	tc.lk.Lock()
	defer tc.lk.Unlock()

	_, ok := tc.m[s]
	tc.m[s] = tc.clk.Now().Add(tc.ttl)

	return !ok
}

// Has reports whether s is present, extending its expiry from now if so.
func (tc *LastSeenCache) Has(s string) bool {
	tc.lk.Lock()
	defer tc.lk.Unlock()

	_, ok := tc.m[s]
	if ok {
		tc.m[s] = tc.clk.Now().Add(tc.ttl)
	}

	return ok
}
