package limiter

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// RateLimiter
// Specialized component to pace tile fetches against remote tile servers
// Responsibilities:
// - Bookkeep each hostname's last fetch timestamp
// - Compute the final delay for each hostname given base rate and backoff
// - Make sure gap-filling never hammers a tile provider
type RateLimiter interface {
	SetBaseDelay(baseDelay time.Duration)
	SetJitter(jitter time.Duration)
	SetRandomSeed(randomSeed int64)
	Backoff(host string)
	ResetBackoff(host string)
	MarkLastFetchAsNow(host string)
	ResolveDelay(host string) time.Duration
}

type ConcurrentRateLimiter struct {
	mu          sync.RWMutex
	rngMu       sync.Mutex
	baseDelay   time.Duration
	jitter      time.Duration
	hostTimings map[string]hostTiming
	rng         *rand.Rand
}

func NewConcurrentRateLimiter() *ConcurrentRateLimiter {
	return &ConcurrentRateLimiter{
		hostTimings: make(map[string]hostTiming),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ConcurrentRateLimiter) SetBaseDelay(baseDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.baseDelay = baseDelay
}

func (r *ConcurrentRateLimiter) SetJitter(jitter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jitter = jitter
}

func (r *ConcurrentRateLimiter) SetRandomSeed(randomSeed int64) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	r.rng = rand.New(rand.NewSource(randomSeed))
}

// exponentialBackoffDelay computes exponential backoff based on count
// Does NOT take lock; caller must hold r.mu (RLock or Lock)
func (r *ConcurrentRateLimiter) exponentialBackoffDelay(backoffCount int) time.Duration {
	initialBackoff := 1 * time.Second
	multiplier := 2.0
	maxBackoff := 30 * time.Second

	exponent := float64(backoffCount - 1)
	delay := float64(initialBackoff) * math.Pow(multiplier, exponent)
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}

	return time.Duration(delay)
}

// Backoff triggers exponential backoff for the given host.
// Called after a 429 or 5xx so subsequent fetches to the host slow down.
func (r *ConcurrentRateLimiter) Backoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming := r.hostTimings[host]
	currentHostTiming.backoffCount++
	currentHostTiming.backoffDelay = r.exponentialBackoffDelay(currentHostTiming.backoffCount)
	r.hostTimings[host] = currentHostTiming
}

// ResetBackoff resets the backoff counter for the given host.
// Called after a successful request to clear backoff state.
func (r *ConcurrentRateLimiter) ResetBackoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming, exists := r.hostTimings[host]
	if exists {
		currentHostTiming.backoffCount = 0
		currentHostTiming.backoffDelay = time.Duration(0)
		r.hostTimings[host] = currentHostTiming
	}
}

// Mark the given host lastFetch to time.Now()
func (r *ConcurrentRateLimiter) MarkLastFetchAsNow(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming := r.hostTimings[host]
	currentHostTiming.lastFetchAt = time.Now()
	r.hostTimings[host] = currentHostTiming
}

// Compute jitter for the given max duration
// Returns a pseudo-random duration between 0 and max (exclusive)
func (r *ConcurrentRateLimiter) computeJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return time.Duration(r.rng.Int63n(int64(max)))
}

// Compute the final delay resolution for given host
// FinalDelay = max(BaseDelay, BackoffDelay) + Jitter
func (r *ConcurrentRateLimiter) ResolveDelay(host string) time.Duration {
	// copy needed state under read lock, then compute without holding r.mu
	r.mu.RLock()
	currentHostTiming, exists := r.hostTimings[host]
	base := r.baseDelay
	jitter := r.jitter
	r.mu.RUnlock()

	// a host that has never been fetched needs no delay
	if !exists {
		return time.Duration(0)
	}

	finalDelay := base
	if currentHostTiming.backoffDelay > finalDelay {
		finalDelay = currentHostTiming.backoffDelay
	}

	finalDelay += r.computeJitter(jitter)

	elapsed := time.Since(currentHostTiming.lastFetchAt)

	// return the remaining wait since the host was last fetched,
	// else don't delay
	if elapsed < finalDelay {
		return finalDelay - elapsed
	}

	return time.Duration(0)
}

func (r *ConcurrentRateLimiter) GetHostTimings() map[string]hostTiming {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// return a shallow copy to avoid exposing internal map for mutation
	copyMap := make(map[string]hostTiming, len(r.hostTimings))
	for k, v := range r.hostTimings {
		copyMap[k] = v
	}
	return copyMap
}
