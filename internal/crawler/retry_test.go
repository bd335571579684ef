package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicyRecoversFromTransientErrors(t *testing.T) {
	policy := NewRetryPolicy(3, 0)

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &FetchError{Kind: FetchNetwork, Err: errors.New("reset")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryPolicyStopsOnPermanentError(t *testing.T) {
	policy := NewRetryPolicy(3, 0)

	calls := 0
	permanent := &FetchError{Kind: FetchHTTPStatus, StatusCode: 404}
	err := policy.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	require.Equal(t, 1, calls, "a 404 should not be retried")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 404, fetchErr.StatusCode)
}

func TestRetryPolicyRetriesServerErrors(t *testing.T) {
	policy := NewRetryPolicy(2, 0)

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return &FetchError{Kind: FetchHTTPStatus, StatusCode: 503}
	})
	require.Equal(t, 2, calls)
	require.Error(t, err)
}

func TestRetryPolicyExhaustsBudget(t *testing.T) {
	policy := NewRetryPolicy(3, 0)

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return &FetchError{Kind: FetchNetwork, Err: errors.New("timeout")}
	})
	require.Equal(t, 3, calls)
	require.Error(t, err)
}

func TestRetryPolicyHonorsContext(t *testing.T) {
	policy := NewRetryPolicy(5, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := policy.Do(ctx, func() error {
		return &FetchError{Kind: FetchNetwork, Err: errors.New("reset")}
	})
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second,
		"a canceled context should skip the retry delay")
}

func TestNewRetryPolicyClampsAttempts(t *testing.T) {
	policy := NewRetryPolicy(0, time.Second)
	require.Equal(t, 1, policy.Attempts)
}

func TestPacerHonorsContext(t *testing.T) {
	pacer := NewPacer(time.Second)
	require.NoError(t, pacer.Wait(context.Background()), "first slot is free")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, pacer.Wait(ctx))
}
