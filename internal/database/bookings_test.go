package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"soothe/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "soothe.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestBooking(candidates ...string) *models.Booking {
	return &models.Booking{
		ID: uuid.NewString(),
		Customer: models.Customer{
			Name:    "Alice Martin",
			Email:   "alice@example.com",
			Phone:   "+61400000000",
			Address: "1 George St, Sydney NSW",
			Location: models.Coordinates{
				Lat: -33.8688, Lon: 151.2093,
			},
		},
		Service: models.ServiceDetails{
			ServiceType: "relaxation",
			DurationMin: 60,
			ScheduledAt: time.Now().AddDate(0, 0, 2),
			Parking:     "free",
			Price:       159,
		},
		CandidateOrder: candidates,
		CurrentIndex:   0,
		Status:         models.StatusPending,
		Deadline:       time.Now().Add(3 * time.Minute),
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking := newTestBooking("t-1", "t-2")
	require.NoError(t, db.CreateBooking(ctx, booking))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)
	assert.Equal(t, "Alice Martin", got.Customer.Name)
	assert.Equal(t, []string{"t-1", "t-2"}, got.CandidateOrder)
	assert.Equal(t, 0, got.CurrentIndex)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.WinningTherapist)
	assert.Equal(t, int64(1), got.Version)
}

func TestGetBookingNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetBooking(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestAcceptBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking := newTestBooking("t-1", "t-2")
	require.NoError(t, db.CreateBooking(ctx, booking))

	require.NoError(t, db.AcceptBooking(ctx, booking.ID, "t-1", 0))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, "t-1", got.WinningTherapist)

	t.Run("SecondAcceptRejected", func(t *testing.T) {
		err := db.AcceptBooking(ctx, booking.ID, "t-2", 0)
		assert.ErrorIs(t, err, ErrAlreadyResolved)

		got, err := db.GetBooking(ctx, booking.ID)
		require.NoError(t, err)
		assert.Equal(t, "t-1", got.WinningTherapist, "winner must never change")
	})
}

func TestAdvanceBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking := newTestBooking("t-1", "t-2", "t-3")
	require.NoError(t, db.CreateBooking(ctx, booking))

	deadline := time.Now().Add(3 * time.Minute)
	require.NoError(t, db.AdvanceBooking(ctx, booking.ID, 0, deadline))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentIndex)
	assert.Equal(t, models.StatusPending, got.Status)

	t.Run("StaleIndexRejected", func(t *testing.T) {
		err := db.AdvanceBooking(ctx, booking.ID, 0, deadline)
		assert.ErrorIs(t, err, ErrStaleResponder)
	})

	t.Run("StaleAcceptRejected", func(t *testing.T) {
		err := db.AcceptBooking(ctx, booking.ID, "t-1", 0)
		assert.ErrorIs(t, err, ErrStaleResponder)

		got, err := db.GetBooking(ctx, booking.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, 1, got.CurrentIndex)
	})
}

func TestFinalizeBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking := newTestBooking("t-1")
	require.NoError(t, db.CreateBooking(ctx, booking))

	require.NoError(t, db.FinalizeBooking(ctx, booking.ID, 0, models.StatusExpired))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)

	err = db.FinalizeBooking(ctx, booking.ID, 0, models.StatusDeclined)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestCancelBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking := newTestBooking("t-1")
	require.NoError(t, db.CreateBooking(ctx, booking))

	require.NoError(t, db.CancelBooking(ctx, booking.ID))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	assert.ErrorIs(t, db.CancelBooking(ctx, booking.ID), ErrAlreadyResolved)
	assert.ErrorIs(t, db.CancelBooking(ctx, "missing"), ErrBookingNotFound)
}

func TestGetBookingsByDateRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	inRange := newTestBooking("t-1")
	inRange.Service.ScheduledAt = time.Now().AddDate(0, 0, 1)
	require.NoError(t, db.CreateBooking(ctx, inRange))

	outOfRange := newTestBooking("t-1")
	outOfRange.Service.ScheduledAt = time.Now().AddDate(0, 1, 0)
	require.NoError(t, db.CreateBooking(ctx, outOfRange))

	got, err := db.GetBookingsByDateRange(ctx, time.Now(), time.Now().AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inRange.ID, got[0].ID)
}
