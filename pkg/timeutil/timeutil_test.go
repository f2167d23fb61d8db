package timeutil_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rohmanhakim/mapfreeze/pkg/timeutil"
	"github.com/stretchr/testify/assert"
)

func TestMaxDuration(t *testing.T) {
	tests := []struct {
		name      string
		durations []time.Duration
		want      time.Duration
	}{
		{
			name:      "multiple values returns maximum",
			durations: []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 200 * time.Millisecond},
			want:      500 * time.Millisecond,
		},
		{
			name:      "single value returns that value",
			durations: []time.Duration{300 * time.Millisecond},
			want:      300 * time.Millisecond,
		},
		{
			name:      "empty slice returns zero",
			durations: []time.Duration{},
			want:      0,
		},
		{
			name:      "all negative returns least negative",
			durations: []time.Duration{-100 * time.Millisecond, -50 * time.Millisecond, -200 * time.Millisecond},
			want:      -50 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timeutil.MaxDuration(tt.durations))
		})
	}
}

func TestExponentialBackoffDelay_GrowthAndCap(t *testing.T) {
	param := timeutil.NewBackoffParam(1*time.Second, 2.0, 8*time.Second)
	rng := rand.New(rand.NewSource(42))

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{name: "first attempt uses initial delay", attempt: 1, want: 1 * time.Second},
		{name: "second attempt doubles", attempt: 2, want: 2 * time.Second},
		{name: "third attempt doubles again", attempt: 3, want: 4 * time.Second},
		{name: "capped at max duration", attempt: 10, want: 8 * time.Second},
		{name: "attempt below one clamps to one", attempt: 0, want: 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timeutil.ExponentialBackoffDelay(tt.attempt, 0, *rng, param)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExponentialBackoffDelay_JitterBounded(t *testing.T) {
	param := timeutil.NewBackoffParam(1*time.Second, 2.0, 30*time.Second)
	jitter := 500 * time.Millisecond

	for seed := int64(0); seed < 10; seed++ {
		rng := rand.New(rand.NewSource(seed))
		got := timeutil.ExponentialBackoffDelay(1, jitter, *rng, param)
		assert.GreaterOrEqual(t, got, 1*time.Second)
		assert.Less(t, got, 1*time.Second+jitter)
	}
}
