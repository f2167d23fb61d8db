package limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveDelay_UnknownHostNoDelay(t *testing.T) {
	l := NewConcurrentRateLimiter()
	l.SetBaseDelay(500 * time.Millisecond)

	assert.Equal(t, time.Duration(0), l.ResolveDelay("tiles.example.com"))
}

func TestResolveDelay_RecentFetchDelays(t *testing.T) {
	l := NewConcurrentRateLimiter()
	l.SetBaseDelay(200 * time.Millisecond)

	l.MarkLastFetchAsNow("tiles.example.com")

	delay := l.ResolveDelay("tiles.example.com")
	assert.Greater(t, delay, time.Duration(0))
	assert.LessOrEqual(t, delay, 200*time.Millisecond)
}

func TestResolveDelay_ElapsedFetchNoDelay(t *testing.T) {
	l := NewConcurrentRateLimiter()
	l.SetBaseDelay(time.Nanosecond)

	l.MarkLastFetchAsNow("tiles.example.com")
	time.Sleep(time.Millisecond)

	assert.Equal(t, time.Duration(0), l.ResolveDelay("tiles.example.com"))
}

func TestBackoff_GrowsAndResets(t *testing.T) {
	l := NewConcurrentRateLimiter()

	l.Backoff("tiles.example.com")
	first := l.GetHostTimings()["tiles.example.com"]
	assert.Equal(t, 1, first.BackoffCount())
	assert.Equal(t, 1*time.Second, first.BackOffDelay())

	l.Backoff("tiles.example.com")
	second := l.GetHostTimings()["tiles.example.com"]
	assert.Equal(t, 2, second.BackoffCount())
	assert.Equal(t, 2*time.Second, second.BackOffDelay())

	l.ResetBackoff("tiles.example.com")
	reset := l.GetHostTimings()["tiles.example.com"]
	assert.Equal(t, 0, reset.BackoffCount())
	assert.Equal(t, time.Duration(0), reset.BackOffDelay())
}

func TestBackoff_CappedAtThirtySeconds(t *testing.T) {
	l := NewConcurrentRateLimiter()

	for i := 0; i < 10; i++ {
		l.Backoff("tiles.example.com")
	}

	timing := l.GetHostTimings()["tiles.example.com"]
	assert.Equal(t, 30*time.Second, timing.BackOffDelay())
}

func TestBackoff_HostsIndependent(t *testing.T) {
	l := NewConcurrentRateLimiter()

	l.Backoff("a.example.com")
	l.Backoff("a.example.com")

	timings := l.GetHostTimings()
	assert.Equal(t, 2, timings["a.example.com"].BackoffCount())
	assert.Equal(t, 0, timings["b.example.com"].BackoffCount())
}
