package repository

import (
	"context"
	"sync"
	"time"

	"soothe/internal/models"
)

type MemorySnapshotRepository struct {
	snapshots  sync.Map
	rateLimits sync.Map
	ttl        time.Duration
}

func NewMemorySnapshotRepository(ttl time.Duration) *MemorySnapshotRepository {
	return &MemorySnapshotRepository{
		ttl: ttl,
	}
}

func (r *MemorySnapshotRepository) GetSnapshot(ctx context.Context, bookingID string) (*models.StatusSnapshot, error) {
	val, ok := r.snapshots.Load(bookingID)
	if !ok {
		return nil, nil
	}
	return val.(*models.StatusSnapshot), nil
}

func (r *MemorySnapshotRepository) SetSnapshot(ctx context.Context, snapshot *models.StatusSnapshot) error {
	r.snapshots.Store(snapshot.BookingID, snapshot)
	return nil
}

func (r *MemorySnapshotRepository) ClearSnapshot(ctx context.Context, bookingID string) error {
	r.snapshots.Delete(bookingID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemorySnapshotRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
