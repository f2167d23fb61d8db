package retry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/rohmanhakim/mapfreeze/pkg/failure"
	"github.com/rohmanhakim/mapfreeze/pkg/retry"
	"github.com/rohmanhakim/mapfreeze/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeError struct {
	retryable bool
}

func (e *fakeError) Error() string { return "fake error" }

func (e *fakeError) Severity() failure.Severity {
	if e.retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *fakeError) IsRetryable() bool { return e.retryable }

func fastParam(maxAttempts int) retry.RetryParam {
	return retry.NewRetryParam(
		0,
		0,
		1,
		maxAttempts,
		timeutil.NewBackoffParam(time.Microsecond, 2.0, time.Millisecond),
	)
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := retry.Retry(fastParam(3), func() (int, failure.ClassifiedError) {
		calls++
		return 42, nil
	})

	require.Nil(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesRetryableError(t *testing.T) {
	calls := 0
	result, err := retry.Retry(fastParam(3), func() (string, failure.ClassifiedError) {
		calls++
		if calls < 3 {
			return "", &fakeError{retryable: true}
		}
		return "ok", nil
	})

	require.Nil(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := retry.Retry(fastParam(5), func() (int, failure.ClassifiedError) {
		calls++
		return 0, &fakeError{retryable: false}
	})

	require.NotNil(t, err)
	assert.Equal(t, 1, calls)

	var fake *fakeError
	assert.True(t, errors.As(err, &fake))
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := retry.Retry(fastParam(4), func() (int, failure.ClassifiedError) {
		calls++
		return 0, &fakeError{retryable: true}
	})

	require.NotNil(t, err)
	assert.Equal(t, 4, calls)

	var retryErr *retry.RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, retry.RetryErrorCause(retry.ErrExhaustedAttempts), retryErr.Cause)
}

func TestRetry_ZeroAttemptsRejected(t *testing.T) {
	_, err := retry.Retry(fastParam(0), func() (int, failure.ClassifiedError) {
		t.Fatal("task must not run with zero attempts")
		return 0, nil
	})

	require.NotNil(t, err)
	var retryErr *retry.RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, retry.RetryErrorCause(retry.ErrZeroAttempt), retryErr.Cause)
}
