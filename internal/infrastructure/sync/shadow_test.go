package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryShadow_MarkAndRead(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	s := NewMemoryShadow(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.MarkPending(ctx, "ARU-001", now))

	at, ok, err := s.LastPending(ctx, "ARU-001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now, at)

	// An older mark never overwrites a newer one.
	require.NoError(t, s.MarkPending(ctx, "ARU-001", now.Add(-10*time.Minute)))
	at, _, _ = s.LastPending(ctx, "ARU-001")
	assert.Equal(t, now, at)
}

func TestMemoryShadow_SweepsExpiredOnMark(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	s := NewMemoryShadow(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	// A morning's worth of distinct codes, never read back.
	for i := 0; i < 50; i++ {
		require.NoError(t, s.MarkPending(ctx, fmt.Sprintf("MEM-%03d", i), now))
	}

	now = now.Add(2 * time.Hour)
	require.NoError(t, s.MarkPending(ctx, "ARU-001", now))

	s.mu.Lock()
	size := len(s.entries)
	s.mu.Unlock()
	assert.Equal(t, 1, size)
}
