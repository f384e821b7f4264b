package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const cleanupInterval = 1 * time.Minute

// Limiter is a process-local sliding-window-by-reset gate. Each
// (identifier, endpoint) key holds a counter and a fixed reset timestamp;
// once the window elapses the entry is replaced, not incremented. Entries
// are purged in the background so memory stays bounded. Single-instance
// only: a multi-process deployment needs an external shared store.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	maxRequests int
	window      time.Duration

	now  func() time.Time
	done chan struct{}
}

type entry struct {
	count   int
	resetAt time.Time
}

func New(maxRequests int, window time.Duration) *Limiter {
	l := &Limiter{
		entries:     make(map[string]*entry),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		done:        make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow records a request for the key and reports whether it is within the
// window's budget. When rejected, retryAfter hints how long the caller
// should back off.
func (l *Limiter) Allow(identifier, endpoint string) (allowed bool, retryAfter time.Duration) {
	key := identifier + ":" + endpoint
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(l.window)}
		return true, 0
	}
	if e.count >= l.maxRequests {
		return false, e.resetAt.Sub(now)
	}
	e.count++
	return true, 0
}

// Stop terminates the background cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.done)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.purgeExpired()
		}
	}
}

func (l *Limiter) purgeExpired() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, key)
		}
	}
}

// RetryAfterMessage formats the client-facing backoff hint.
func RetryAfterMessage(retryAfter time.Duration) string {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("rate limit exceeded, retry in %ds", seconds)
}
