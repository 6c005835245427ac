package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterRejectsOverBudget(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		d, err := limiter.Allow(context.Background(), "upload:u1", 5, time.Minute)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		now = now.Add(time.Second)
	}

	d, err := limiter.Allow(context.Background(), "upload:u1", 5, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
	require.Equal(t, time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC), d.ResetAt)

	other, err := limiter.Allow(context.Background(), "upload:u2", 5, time.Minute)
	require.NoError(t, err)
	require.True(t, other.Allowed)
}

func TestMemoryLimiterWindowResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(func() time.Time { return now })

	_, _ = limiter.Allow(context.Background(), "delete:u1", 1, time.Minute)
	d, _ := limiter.Allow(context.Background(), "delete:u1", 1, time.Minute)
	require.False(t, d.Allowed)

	now = now.Add(time.Minute)
	d, _ = limiter.Allow(context.Background(), "delete:u1", 1, time.Minute)
	require.True(t, d.Allowed)
	require.Equal(t, now.Add(time.Minute), d.ResetAt)
}
