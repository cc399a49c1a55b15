package domain

import (
	"context"
	"time"

	"soothe/internal/models"
)

// BookingStore is the single authoritative store for booking state. Every
// transition is a guarded update; optimistic misses come back as the
// database package's sentinel errors.
type BookingStore interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	AcceptBooking(ctx context.Context, id, therapistID string, candidateIndex int) error
	AdvanceBooking(ctx context.Context, id string, candidateIndex int, deadline time.Time) error
	FinalizeBooking(ctx context.Context, id string, candidateIndex int, status string) error
	CancelBooking(ctx context.Context, id string) error
	RecordDispatch(ctx context.Context, d *models.Dispatch) error
	GetDispatchByToken(ctx context.Context, token string) (*models.Dispatch, error)
	GetDispatches(ctx context.Context, bookingID string) ([]*models.Dispatch, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	GetPendingBookings(ctx context.Context) ([]*models.Booking, error)
}

// SnapshotRepository caches booking status snapshots for polling clients and
// tracks per-key rate limits. Loss of the cache is harmless; the store wins.
type SnapshotRepository interface {
	GetSnapshot(ctx context.Context, bookingID string) (*models.StatusSnapshot, error)
	SetSnapshot(ctx context.Context, snapshot *models.StatusSnapshot) error
	ClearSnapshot(ctx context.Context, bookingID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// NotificationDispatcher sends the outbound messages the state machine
// triggers. Implementations must be safe to call from the state machine
// goroutines and must not block on provider delivery.
type NotificationDispatcher interface {
	SendTherapistRequest(ctx context.Context, booking *models.Booking, therapist models.Therapist, acceptURL, declineURL string) error
	SendCustomerAcknowledgment(ctx context.Context, booking *models.Booking) error
	SendCustomerConfirmation(ctx context.Context, booking *models.Booking, therapist models.Therapist) error
	SendCustomerDecline(ctx context.Context, booking *models.Booking) error
	SendAdminNotice(ctx context.Context, booking *models.Booking, text string) error
}

// SyncWorker queues back-office sync work (Google Sheets rows).
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID string, booking *models.Booking, status string) error
}

// Outcome is what a responder or caller observes after an operation.
type Outcome string

const (
	OutcomeConfirmed       Outcome = "confirmed"
	OutcomeAdvanced        Outcome = "advanced"
	OutcomeDeclined        Outcome = "declined"
	OutcomeExpired         Outcome = "expired"
	OutcomeAlreadyResolved Outcome = "already_resolved"
	OutcomeStaleResponder  Outcome = "stale_responder"
)

// AssignmentService drives a booking through its lifecycle.
type AssignmentService interface {
	CreateBooking(ctx context.Context, req *models.BookingRequest) (*models.Booking, error)
	Respond(ctx context.Context, token, action string) (Outcome, error)
	CancelBooking(ctx context.Context, id string) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetSnapshot(ctx context.Context, id string) (*models.StatusSnapshot, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
}
