package notify

import (
	"context"
	"fmt"
	"time"

	"soothe/internal/models"

	"github.com/rs/zerolog"
)

// MailQueue accepts messages for asynchronous delivery. The dispatcher
// never talks to the provider directly; enqueueing must not block.
type MailQueue interface {
	Enqueue(msg EmailMessage)
}

// AdminNotifier pushes operational notices to whoever is on call.
type AdminNotifier interface {
	Notify(ctx context.Context, text string)
}

// Dispatcher renders and queues the outbound messages the booking
// lifecycle produces.
type Dispatcher struct {
	mail   MailQueue
	admin  AdminNotifier
	logger *zerolog.Logger
}

func NewDispatcher(mail MailQueue, admin AdminNotifier, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		mail:   mail,
		admin:  admin,
		logger: logger,
	}
}

const scheduleFormat = "Mon, 2 Jan 2006 at 15:04"

func (d *Dispatcher) SendTherapistRequest(ctx context.Context, booking *models.Booking, therapist models.Therapist, acceptURL, declineURL string) error {
	if therapist.Email == "" {
		return fmt.Errorf("therapist %s has no email", therapist.ID)
	}

	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"New booking request:\n\n"+
			"Service: %s, %d min\n"+
			"When: %s\n"+
			"Where: %s\n"+
			"Client: %s\n\n"+
			"Accept: %s\n"+
			"Decline: %s\n\n"+
			"This request expires at %s. If you do not respond it will be "+
			"offered to the next available therapist.\n",
		therapist.Name,
		booking.Service.ServiceType, booking.Service.DurationMin,
		booking.Service.ScheduledAt.Format(scheduleFormat),
		booking.Customer.Address,
		booking.Customer.Name,
		acceptURL,
		declineURL,
		booking.Deadline.Format(time.Kitchen),
	)

	d.mail.Enqueue(EmailMessage{
		To:      therapist.Email,
		ToName:  therapist.Name,
		Subject: fmt.Sprintf("Booking request: %s on %s", booking.Service.ServiceType, booking.Service.ScheduledAt.Format("2 Jan")),
		Body:    body,
	})

	d.logger.Info().
		Str("booking_id", booking.ID).
		Str("therapist_id", therapist.ID).
		Msg("therapist request queued")
	return nil
}

func (d *Dispatcher) SendCustomerAcknowledgment(ctx context.Context, booking *models.Booking) error {
	if booking.Customer.Email == "" {
		return nil
	}

	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"We received your booking for %s (%d min) on %s.\n"+
			"Estimated price: $%.2f\n\n"+
			"We are matching you with a therapist now and will confirm shortly.\n",
		booking.Customer.Name,
		booking.Service.ServiceType, booking.Service.DurationMin,
		booking.Service.ScheduledAt.Format(scheduleFormat),
		booking.Service.Price,
	)

	d.mail.Enqueue(EmailMessage{
		To:      booking.Customer.Email,
		ToName:  booking.Customer.Name,
		Subject: "We received your booking",
		Body:    body,
	})
	return nil
}

func (d *Dispatcher) SendCustomerConfirmation(ctx context.Context, booking *models.Booking, therapist models.Therapist) error {
	if booking.Customer.Email == "" {
		return nil
	}

	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Good news: %s confirmed your booking.\n\n"+
			"Service: %s, %d min\n"+
			"When: %s\n"+
			"Where: %s\n"+
			"Price: $%.2f\n",
		booking.Customer.Name,
		therapist.Name,
		booking.Service.ServiceType, booking.Service.DurationMin,
		booking.Service.ScheduledAt.Format(scheduleFormat),
		booking.Customer.Address,
		booking.Service.Price,
	)

	d.mail.Enqueue(EmailMessage{
		To:      booking.Customer.Email,
		ToName:  booking.Customer.Name,
		Subject: "Your booking is confirmed",
		Body:    body,
	})
	return nil
}

func (d *Dispatcher) SendCustomerDecline(ctx context.Context, booking *models.Booking) error {
	if booking.Customer.Email == "" {
		return nil
	}

	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Unfortunately no therapist is available for %s on %s.\n"+
			"Nothing has been charged. Please try a different time slot.\n",
		booking.Customer.Name,
		booking.Service.ServiceType,
		booking.Service.ScheduledAt.Format(scheduleFormat),
	)

	d.mail.Enqueue(EmailMessage{
		To:      booking.Customer.Email,
		ToName:  booking.Customer.Name,
		Subject: "We could not confirm your booking",
		Body:    body,
	})
	return nil
}

func (d *Dispatcher) SendAdminNotice(ctx context.Context, booking *models.Booking, text string) error {
	if d.admin == nil {
		return nil
	}
	d.admin.Notify(ctx, fmt.Sprintf("[%s] %s", booking.ID, text))
	return nil
}
