package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"soothe/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailoverSnapshotRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	logger := zerolog.New(io.Discard)
	primary := NewRedisSnapshotRepository(client, time.Hour)
	fallback := NewMemorySnapshotRepository(time.Hour)
	repo := NewFailoverSnapshotRepository(primary, fallback, &logger)
	ctx := context.Background()

	snapshot := &models.StatusSnapshot{
		BookingID: "b-1",
		Status:    models.StatusPending,
		UpdatedAt: time.Now(),
	}

	t.Run("PrimaryHealthy", func(t *testing.T) {
		require.NoError(t, repo.SetSnapshot(ctx, snapshot))

		got, err := repo.GetSnapshot(ctx, "b-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("FallsBackWhenPrimaryDies", func(t *testing.T) {
		s.Close()

		// The write goes to memory; the mirrored copy from the healthy
		// phase keeps the read warm.
		updated := &models.StatusSnapshot{
			BookingID: "b-1",
			Status:    models.StatusConfirmed,
			UpdatedAt: time.Now(),
		}
		require.NoError(t, repo.SetSnapshot(ctx, updated))

		got, err := repo.GetSnapshot(ctx, "b-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StatusConfirmed, got.Status)
	})

	t.Run("RateLimitOnFallback", func(t *testing.T) {
		allowed, err := repo.CheckRateLimit(ctx, "key", 1, time.Second)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, "key", 1, time.Second)
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}
