package limiter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Exercises the limiter from many goroutines the way per-source expansion
// workers do. Run with -race.
func TestConcurrentRateLimiter_ParallelAccess(t *testing.T) {
	l := NewConcurrentRateLimiter()
	l.SetBaseDelay(time.Millisecond)
	l.SetJitter(time.Millisecond)
	l.SetRandomSeed(7)

	hosts := []string{"a.example.com", "b.example.com", "c.example.com"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			host := hosts[n%len(hosts)]
			l.MarkLastFetchAsNow(host)
			l.ResolveDelay(host)
			if n%5 == 0 {
				l.Backoff(host)
			}
			if n%7 == 0 {
				l.ResetBackoff(host)
			}
		}(i)
	}
	wg.Wait()

	timings := l.GetHostTimings()
	for _, host := range hosts {
		assert.False(t, timings[host].LastFetchAt().IsZero())
	}
}
