package repository

import (
	"context"
	"sync/atomic"
	"time"

	"soothe/internal/domain"
	"soothe/internal/models"

	"github.com/rs/zerolog"
)

// FailoverSnapshotRepository prefers the primary (Redis) and drops to the
// in-memory fallback while the primary is down, probing for recovery once a
// minute.
type FailoverSnapshotRepository struct {
	primary   domain.SnapshotRepository
	fallback  domain.SnapshotRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverSnapshotRepository(primary, fallback domain.SnapshotRepository, logger *zerolog.Logger) *FailoverSnapshotRepository {
	return &FailoverSnapshotRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSnapshotRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary snapshot repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverSnapshotRepository) shouldProbe() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverSnapshotRepository) GetSnapshot(ctx context.Context, bookingID string) (*models.StatusSnapshot, error) {
	if !r.isDown.Load() {
		snapshot, err := r.primary.GetSnapshot(ctx, bookingID)
		if err == nil {
			return snapshot, nil
		}
		r.markDown(err)
	} else if r.shouldProbe() {
		snapshot, err := r.primary.GetSnapshot(ctx, bookingID)
		if err == nil {
			r.isDown.Store(false)
			return snapshot, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetSnapshot(ctx, bookingID)
}

func (r *FailoverSnapshotRepository) SetSnapshot(ctx context.Context, snapshot *models.StatusSnapshot) error {
	if !r.isDown.Load() {
		err := r.primary.SetSnapshot(ctx, snapshot)
		if err == nil {
			// Mirror to the fallback so reads stay warm across a failover.
			_ = r.fallback.SetSnapshot(ctx, snapshot)
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetSnapshot(ctx, snapshot)
}

func (r *FailoverSnapshotRepository) ClearSnapshot(ctx context.Context, bookingID string) error {
	if !r.isDown.Load() {
		err := r.primary.ClearSnapshot(ctx, bookingID)
		if err == nil {
			_ = r.fallback.ClearSnapshot(ctx, bookingID)
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearSnapshot(ctx, bookingID)
}

func (r *FailoverSnapshotRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
