package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the largest duration in the slice, or zero for an
// empty slice.
func MaxDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	max := durations[0]
	for _, d := range durations[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// ExponentialBackoffDelay computes the delay before retry attempt n.
//
// The delay grows as initial * multiplier^(attempt-1), capped at the
// configured maximum, with a seeded pseudo-random jitter added on top.
// attempt is 1-based: the delay after the first failed attempt uses
// exponent 0.
func ExponentialBackoffDelay(
	attempt int,
	jitter time.Duration,
	rng rand.Rand,
	param BackoffParam,
) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	exponent := float64(attempt - 1)
	delay := float64(param.InitialDuration()) * math.Pow(param.Multiplier(), exponent)
	if delay > float64(param.MaxDuration()) {
		delay = float64(param.MaxDuration())
	}

	if jitter > 0 {
		delay += float64(rng.Int63n(int64(jitter)))
	}

	return time.Duration(delay)
}
