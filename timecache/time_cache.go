// Package timecache provides a cache of recently-seen message ids used to
// deduplicate inbound traffic, with a pluggable expiry strategy and an
// injectable clock for deterministic tests.
package timecache

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Strategy selects when a TimeCache resets an entry's expiry.
type Strategy uint8

const (
	// StrategyFirstSeen expires an entry ttl after it was first added.
	StrategyFirstSeen Strategy = iota
	// StrategyLastSeen expires an entry ttl after it was last added or
	// looked up.
	StrategyLastSeen
)

// TimeCache is a cache of recently-seen ids.
type TimeCache interface {
	// Add records id if not already present, and reports whether it was
	// newly added. Whether this extends an existing entry's expiry
	// depends on the cache's strategy.
	Add(id string) bool
	// Has reports whether id is currently present. Whether this extends
	// id's expiry depends on the cache's strategy.
	Has(id string) bool
	// Done stops the cache's background sweep and releases its
	// resources. Callers that no longer need the cache must call it.
	Done()
}

// NewTimeCache creates a cache using the default (first-seen) strategy and
// the real wall clock.
func NewTimeCache(ttl time.Duration) TimeCache {
	return NewTimeCacheWithStrategy(StrategyFirstSeen, ttl)
}

// NewTimeCacheWithStrategy creates a cache using the given strategy and
// the real wall clock.
func NewTimeCacheWithStrategy(strategy Strategy, ttl time.Duration) TimeCache {
	return NewTimeCacheWithClock(strategy, ttl, clock.New())
}

// NewTimeCacheWithClock creates a cache using the given strategy and an
// explicit clock, for tests that need to advance time deterministically
// rather than sleep in real time.
func NewTimeCacheWithClock(strategy Strategy, ttl time.Duration, clk clock.Clock) TimeCache {
	switch strategy {
	case StrategyLastSeen:
		return newLastSeenCache(ttl, clk)
	default:
		return newFirstSeenCache(ttl, clk)
	}
}
