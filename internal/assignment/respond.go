package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soothe/internal/database"
	"soothe/internal/domain"
	"soothe/internal/events"
	"soothe/internal/metrics"
	"soothe/internal/models"
	"soothe/internal/worker"
)

// Respond resolves a capability token to its dispatch and applies the
// therapist's answer. Stale and late responses are reported as outcomes,
// never as state changes.
func (s *Service) Respond(ctx context.Context, token, action string) (domain.Outcome, error) {
	if action != models.ActionAccept && action != models.ActionDecline {
		return "", ErrInvalidAction
	}

	dispatch, err := s.store.GetDispatchByToken(ctx, token)
	if err != nil {
		return "", err
	}

	var outcome domain.Outcome
	switch action {
	case models.ActionAccept:
		outcome, err = s.accept(ctx, dispatch)
	case models.ActionDecline:
		outcome, err = s.advance(ctx, dispatch.BookingID, dispatch.CandidateIndex, models.StatusDeclined)
	}
	if err != nil {
		return "", err
	}

	metrics.IncResponse(string(outcome))
	return outcome, nil
}

func (s *Service) accept(ctx context.Context, dispatch *models.Dispatch) (domain.Outcome, error) {
	err := s.store.AcceptBooking(ctx, dispatch.BookingID, dispatch.TherapistID, dispatch.CandidateIndex)
	if err != nil {
		return missOutcome(err)
	}

	s.timers.cancel(dispatch.BookingID)

	booking, err := s.store.GetBooking(ctx, dispatch.BookingID)
	if err != nil {
		return "", err
	}

	metrics.IncResolved(models.StatusConfirmed)
	s.publish(events.EventBookingConfirmed, booking, dispatch.TherapistID)
	s.writeSnapshot(ctx, booking)
	s.enqueueSync(ctx, worker.TaskUpdateStatus, booking, models.StatusConfirmed)

	therapist := s.rosterByID[dispatch.TherapistID]
	if err := s.dispatcher.SendCustomerConfirmation(ctx, booking, therapist); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("confirmation email failed")
	}
	if err := s.dispatcher.SendAdminNotice(ctx, booking,
		fmt.Sprintf("confirmed by %s for %s", therapist.Name, booking.Service.ScheduledAt.Format("2 Jan 15:04"))); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("admin notice failed")
	}

	return domain.OutcomeConfirmed, nil
}

// advance moves past candidateIndex after a decline or an elapsed window.
// The last candidate's exit finalizes the booking: declined when the
// candidate said no, expired when the window ran out.
func (s *Service) advance(ctx context.Context, bookingID string, candidateIndex int, finalStatus string) (domain.Outcome, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}

	if candidateIndex+1 >= len(booking.CandidateOrder) {
		return s.finalize(ctx, bookingID, candidateIndex, finalStatus)
	}

	deadline := time.Now().Add(s.cfg.ResponseWindow)
	if err := s.store.AdvanceBooking(ctx, bookingID, candidateIndex, deadline); err != nil {
		return missOutcome(err)
	}

	refreshed, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}

	s.writeSnapshot(ctx, refreshed)
	s.dispatch(ctx, refreshed)

	return domain.OutcomeAdvanced, nil
}

func (s *Service) finalize(ctx context.Context, bookingID string, candidateIndex int, status string) (domain.Outcome, error) {
	if err := s.store.FinalizeBooking(ctx, bookingID, candidateIndex, status); err != nil {
		return missOutcome(err)
	}

	s.timers.cancel(bookingID)

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}

	metrics.IncResolved(status)
	s.writeSnapshot(ctx, booking)
	s.enqueueSync(ctx, worker.TaskUpdateStatus, booking, status)

	var outcome domain.Outcome
	if status == models.StatusDeclined {
		outcome = domain.OutcomeDeclined
		s.publish(events.EventBookingDeclined, booking, "")
	} else {
		outcome = domain.OutcomeExpired
		s.publish(events.EventBookingExpired, booking, "")
	}

	if err := s.dispatcher.SendCustomerDecline(ctx, booking); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("decline email failed")
	}
	if err := s.dispatcher.SendAdminNotice(ctx, booking,
		fmt.Sprintf("no therapist confirmed (%s), customer notified", status)); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("admin notice failed")
	}

	return outcome, nil
}

// CancelBooking is the customer-initiated terminal transition.
func (s *Service) CancelBooking(ctx context.Context, id string) error {
	if err := s.store.CancelBooking(ctx, id); err != nil {
		return err
	}

	s.timers.cancel(id)

	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return err
	}

	metrics.IncResolved(models.StatusCancelled)
	s.publish(events.EventBookingCancelled, booking, "")
	s.writeSnapshot(ctx, booking)
	s.enqueueSync(ctx, worker.TaskUpdateStatus, booking, models.StatusCancelled)

	return nil
}

// missOutcome translates a guarded-update miss into the outcome the
// responder should see. Anything else is a real error.
func missOutcome(err error) (domain.Outcome, error) {
	switch {
	case errors.Is(err, database.ErrAlreadyResolved):
		return domain.OutcomeAlreadyResolved, nil
	case errors.Is(err, database.ErrStaleResponder):
		return domain.OutcomeStaleResponder, nil
	default:
		return "", err
	}
}
