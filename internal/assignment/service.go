package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soothe/internal/database"
	"soothe/internal/domain"
	"soothe/internal/events"
	"soothe/internal/matching"
	"soothe/internal/metrics"
	"soothe/internal/models"
	"soothe/internal/pricing"
	"soothe/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNoCandidatesInRange no available therapist is within the radius, or
	// the address never geocoded to a point.
	ErrNoCandidatesInRange = errors.New("no candidates in range")

	// ErrInvalidAction the respond action is neither accept nor decline.
	ErrInvalidAction = errors.New("invalid action")
)

// Config tunes the dispatch loop.
type Config struct {
	ResponseWindow time.Duration
	RadiusKm       float64
	PublicBaseURL  string
}

// Service drives a booking from creation through candidate dispatch to a
// terminal status. All state transitions go through the store's guarded
// updates; the in-memory timer table only schedules work, it never decides
// outcomes.
type Service struct {
	store      domain.BookingStore
	roster     []models.Therapist
	rosterByID map[string]models.Therapist
	dispatcher domain.NotificationDispatcher
	snapshots  domain.SnapshotRepository
	events     domain.EventPublisher
	sync       domain.SyncWorker
	cfg        Config
	logger     *zerolog.Logger

	timers *timerTable
}

func NewService(
	store domain.BookingStore,
	roster []models.Therapist,
	dispatcher domain.NotificationDispatcher,
	snapshots domain.SnapshotRepository,
	bus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	cfg Config,
	logger *zerolog.Logger,
) *Service {
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = models.DefaultResponseWindowSec * time.Second
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = models.DefaultRadiusKm
	}

	byID := make(map[string]models.Therapist, len(roster))
	for _, t := range roster {
		byID[t.ID] = t
	}

	return &Service{
		store:      store,
		roster:     roster,
		rosterByID: byID,
		dispatcher: dispatcher,
		snapshots:  snapshots,
		events:     bus,
		sync:       syncWorker,
		cfg:        cfg,
		logger:     logger,
		timers:     newTimerTable(),
	}
}

// CreateBooking validates the request, prices it, builds the candidate order
// and dispatches the first candidate. The booking exists only if at least one
// therapist is in range.
func (s *Service) CreateBooking(ctx context.Context, req *models.BookingRequest) (*models.Booking, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	candidates := matching.FilterAndOrder(req.Location, s.roster, s.cfg.RadiusKm)
	if len(candidates) == 0 {
		s.logger.Warn().
			Str("address", req.Address).
			Float64("radius_km", s.cfg.RadiusKm).
			Msg("no candidates in range")
		return nil, ErrNoCandidatesInRange
	}

	order := matching.CandidateOrder(req.SelectedTherapist, candidates)
	price := pricing.Quote(req.DurationMin, req.ScheduledAt, req.Parking)

	booking := &models.Booking{
		ID: uuid.NewString(),
		Customer: models.Customer{
			Name:     req.CustomerName,
			Email:    req.CustomerEmail,
			Phone:    req.CustomerPhone,
			Address:  req.Address,
			Location: req.Location,
		},
		Service: models.ServiceDetails{
			ServiceType: req.ServiceType,
			DurationMin: req.DurationMin,
			ScheduledAt: req.ScheduledAt,
			Parking:     req.Parking,
			Price:       price,
		},
		CandidateOrder: order,
		CurrentIndex:   0,
		Status:         models.StatusPending,
		Deadline:       time.Now().Add(s.cfg.ResponseWindow),
	}

	if err := s.store.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	metrics.IncBookingCreated()
	s.publish(events.EventBookingCreated, booking, "")
	s.writeSnapshot(ctx, booking)
	s.enqueueSync(ctx, worker.TaskUpsert, booking, "")

	if err := s.dispatcher.SendCustomerAcknowledgment(ctx, booking); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("acknowledgment failed")
	}

	s.dispatch(ctx, booking)

	return booking, nil
}

// dispatch arms the deadline and sends the request to the current candidate.
// The deadline is armed before the send so a dead mail provider can never
// strand a booking; the ledger row makes re-dispatch of the same position a
// no-op.
func (s *Service) dispatch(ctx context.Context, booking *models.Booking) {
	therapistID := booking.CurrentTherapist()
	if therapistID == "" {
		return
	}

	s.timers.arm(booking.ID, booking.Deadline, func() {
		s.onDeadline(booking.ID, booking.CurrentIndex)
	})

	dispatch := &models.Dispatch{
		BookingID:      booking.ID,
		CandidateIndex: booking.CurrentIndex,
		TherapistID:    therapistID,
		Token:          uuid.NewString(),
		SentAt:         time.Now(),
	}

	if err := s.store.RecordDispatch(ctx, dispatch); err != nil {
		if errors.Is(err, database.ErrDuplicateDispatch) {
			// Already sent for this position, nothing more to do.
			return
		}
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("record dispatch failed")
		return
	}

	therapist, ok := s.rosterByID[therapistID]
	if !ok {
		s.logger.Error().
			Str("booking_id", booking.ID).
			Str("therapist_id", therapistID).
			Msg("candidate missing from roster, waiting out the window")
		metrics.IncDispatchFailure()
		s.publish(events.EventDispatchFailed, booking, therapistID)
		return
	}

	acceptURL := s.respondURL(dispatch.Token, models.ActionAccept)
	declineURL := s.respondURL(dispatch.Token, models.ActionDecline)

	if err := s.dispatcher.SendTherapistRequest(ctx, booking, therapist, acceptURL, declineURL); err != nil {
		// The window still runs; the next candidate gets their turn when it
		// elapses. No same-window retry.
		s.logger.Error().
			Err(err).
			Str("booking_id", booking.ID).
			Str("therapist_id", therapistID).
			Msg("therapist request failed")
		metrics.IncDispatchFailure()
		s.publish(events.EventDispatchFailed, booking, therapistID)
		return
	}

	metrics.IncDispatch()
	s.publish(events.EventRequestDispatched, booking, therapistID)
}

func (s *Service) respondURL(token, action string) string {
	return fmt.Sprintf("%s/api/v1/respond?token=%s&action=%s", s.cfg.PublicBaseURL, token, action)
}

// GetBooking returns the authoritative booking row.
func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// GetSnapshot serves the polling read model from the cache, falling back to
// the store on a miss.
func (s *Service) GetSnapshot(ctx context.Context, id string) (*models.StatusSnapshot, error) {
	if s.snapshots != nil {
		snapshot, err := s.snapshots.GetSnapshot(ctx, id)
		if err == nil && snapshot != nil {
			return snapshot, nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("booking_id", id).Msg("snapshot cache read failed")
		}
	}

	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot := booking.Snapshot()
	s.writeSnapshot(ctx, booking)
	return snapshot, nil
}

func (s *Service) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	return s.store.GetBookingsByDateRange(ctx, start, end)
}

// RecoverPending re-arms deadlines after a restart. Positions whose window
// already elapsed advance immediately; dispatches lost between the booking
// insert and the send are re-issued through the idempotent ledger.
func (s *Service) RecoverPending(ctx context.Context) error {
	pending, err := s.store.GetPendingBookings(ctx)
	if err != nil {
		return err
	}

	for _, booking := range pending {
		if time.Now().After(booking.Deadline) {
			if _, err := s.advance(ctx, booking.ID, booking.CurrentIndex, models.StatusExpired); err != nil {
				s.logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("recover: advance failed")
			}
			continue
		}
		s.dispatch(ctx, booking)
	}

	s.logger.Info().Int("pending", len(pending)).Msg("pending bookings recovered")
	return nil
}

// Stop cancels all armed timers. Pending bookings pick up where they left
// off via RecoverPending on the next start.
func (s *Service) Stop() {
	s.timers.stopAll()
}

func (s *Service) writeSnapshot(ctx context.Context, booking *models.Booking) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.SetSnapshot(ctx, booking.Snapshot()); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("snapshot write failed")
	}
}

func (s *Service) publish(eventType string, booking *models.Booking, therapistID string) {
	if s.events == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:      booking.ID,
		Status:         booking.Status,
		CustomerName:   booking.Customer.Name,
		TherapistID:    therapistID,
		CandidateIndex: booking.CurrentIndex,
		ScheduledAt:    booking.Service.ScheduledAt,
		Price:          booking.Service.Price,
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

func (s *Service) enqueueSync(ctx context.Context, taskType string, booking *models.Booking, status string) {
	if s.sync == nil {
		return
	}
	if err := s.sync.EnqueueTask(ctx, taskType, booking.ID, booking, status); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("sync enqueue failed")
	}
}

func validateRequest(req *models.BookingRequest) error {
	if req == nil {
		return errors.New("request is nil")
	}
	if req.CustomerName == "" {
		return errors.New("customer name is required")
	}
	if req.Address == "" {
		return errors.New("address is required")
	}
	if req.ServiceType == "" {
		return errors.New("service type is required")
	}
	if req.DurationMin <= 0 {
		return errors.New("duration must be positive")
	}
	if req.ScheduledAt.IsZero() {
		return errors.New("scheduled time is required")
	}
	return nil
}
