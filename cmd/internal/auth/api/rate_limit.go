package api

import (
	"sync"
	"time"
)

// loginThrottle tracks failed login attempts per key (client IP, telephone)
// over a sliding window. Successful logins reset the key.
type loginThrottle struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	failures map[string][]time.Time
}

func newLoginThrottle(max int, window time.Duration) *loginThrottle {
	return &loginThrottle{
		max:      max,
		window:   window,
		failures: make(map[string][]time.Time),
	}
}

// Blocked reports whether key has exhausted its failure budget, and how long
// until the oldest counted failure ages out.
func (t *loginThrottle) Blocked(key string, now time.Time) (bool, time.Duration) {
	if key == "" {
		return false, 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.prune(key, now)
	if len(kept) < t.max {
		return false, 0
	}
	retryAfter := kept[0].Add(t.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return true, retryAfter
}

// RecordFailure counts one failed attempt for key.
func (t *loginThrottle) RecordFailure(key string, now time.Time) {
	if key == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[key] = append(t.prune(key, now), now)
}

// Reset clears the failure history for key.
func (t *loginThrottle) Reset(key string) {
	if key == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, key)
}

// prune drops aged-out entries. Caller holds the lock.
func (t *loginThrottle) prune(key string, now time.Time) []time.Time {
	cut := now.Add(-t.window)
	kept := t.failures[key][:0]
	for _, ts := range t.failures[key] {
		if ts.After(cut) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(t.failures, key)
		return nil
	}
	t.failures[key] = kept
	return kept
}
