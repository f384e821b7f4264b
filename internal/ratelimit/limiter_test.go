package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(maxRequests int, window time.Duration, now *time.Time) *Limiter {
	l := New(maxRequests, window)
	l.now = func() time.Time { return *now }
	return l
}

func TestAllowWithinBudget(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(3, time.Minute, &now)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, _ := l.Allow("user:1", "chat_message")
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}
	allowed, retryAfter := l.Allow("user:1", "chat_message")
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, retryAfter)
}

func TestWindowResetReplacesEntry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(2, time.Minute, &now)
	defer l.Stop()

	l.Allow("user:1", "chat_message")
	l.Allow("user:1", "chat_message")
	allowed, _ := l.Allow("user:1", "chat_message")
	assert.False(t, allowed)

	// The full window elapses; the next request starts a fresh counter.
	now = now.Add(time.Minute)
	allowed, _ = l.Allow("user:1", "chat_message")
	assert.True(t, allowed)
	allowed, _ = l.Allow("user:1", "chat_message")
	assert.True(t, allowed)
	allowed, _ = l.Allow("user:1", "chat_message")
	assert.False(t, allowed)
}

func TestRetryAfterShrinksAsWindowElapses(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(1, time.Minute, &now)
	defer l.Stop()

	l.Allow("user:1", "upload")
	now = now.Add(45 * time.Second)
	allowed, retryAfter := l.Allow("user:1", "upload")
	assert.False(t, allowed)
	assert.Equal(t, 15*time.Second, retryAfter)
}

func TestKeysAreIndependent(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(1, time.Minute, &now)
	defer l.Stop()

	allowed, _ := l.Allow("user:1", "chat_message")
	assert.True(t, allowed)
	allowed, _ = l.Allow("user:1", "chat_message")
	assert.False(t, allowed)

	// Different user, same endpoint.
	allowed, _ = l.Allow("user:2", "chat_message")
	assert.True(t, allowed)

	// Same user, different endpoint.
	allowed, _ = l.Allow("user:1", "document_upload")
	assert.True(t, allowed)
}

func TestPurgeExpiredDropsStaleEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(5, time.Minute, &now)
	defer l.Stop()

	l.Allow("user:1", "chat_message")
	l.Allow("user:2", "chat_message")
	assert.Len(t, l.entries, 2)

	now = now.Add(2 * time.Minute)
	l.purgeExpired()
	assert.Empty(t, l.entries)
}

func TestRetryAfterMessage(t *testing.T) {
	assert.Equal(t, "rate limit exceeded, retry in 30s", RetryAfterMessage(30*time.Second))
	assert.Equal(t, "rate limit exceeded, retry in 1s", RetryAfterMessage(200*time.Millisecond))
}
