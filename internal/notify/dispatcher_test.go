package notify

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"soothe/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureQueue struct {
	mu       sync.Mutex
	messages []EmailMessage
}

func (q *captureQueue) Enqueue(msg EmailMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
}

func (q *captureQueue) all() []EmailMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]EmailMessage(nil), q.messages...)
}

type captureAdmin struct {
	notices []string
}

func (a *captureAdmin) Notify(_ context.Context, text string) {
	a.notices = append(a.notices, text)
}

func testBooking() *models.Booking {
	return &models.Booking{
		ID: "b-1",
		Customer: models.Customer{
			Name:    "Alice",
			Email:   "alice@example.com",
			Address: "12 George St, Sydney",
		},
		Service: models.ServiceDetails{
			ServiceType: "relaxation",
			DurationMin: 60,
			ScheduledAt: time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC),
			Price:       190.80,
		},
		Status:   models.StatusPending,
		Deadline: time.Date(2026, 9, 1, 10, 3, 0, 0, time.UTC),
	}
}

func newTestDispatcher() (*Dispatcher, *captureQueue, *captureAdmin) {
	logger := zerolog.New(io.Discard)
	queue := &captureQueue{}
	admin := &captureAdmin{}
	return NewDispatcher(queue, admin, &logger), queue, admin
}

func TestSendTherapistRequest(t *testing.T) {
	d, queue, _ := newTestDispatcher()
	booking := testBooking()
	therapist := models.Therapist{ID: "t-1", Name: "Mia", Email: "mia@example.com"}

	err := d.SendTherapistRequest(context.Background(), booking, therapist,
		"https://soothe.example.com/api/v1/respond?token=abc&action=accept",
		"https://soothe.example.com/api/v1/respond?token=abc&action=decline")
	require.NoError(t, err)

	msgs := queue.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "mia@example.com", msgs[0].To)
	assert.Contains(t, msgs[0].Body, "action=accept")
	assert.Contains(t, msgs[0].Body, "action=decline")
	assert.Contains(t, msgs[0].Body, "relaxation")
	assert.Contains(t, msgs[0].Body, "Alice")
}

func TestSendTherapistRequestNoEmail(t *testing.T) {
	d, queue, _ := newTestDispatcher()

	err := d.SendTherapistRequest(context.Background(), testBooking(), models.Therapist{ID: "t-1"}, "a", "b")
	assert.Error(t, err)
	assert.Empty(t, queue.all())
}

func TestCustomerEmails(t *testing.T) {
	d, queue, _ := newTestDispatcher()
	booking := testBooking()
	therapist := models.Therapist{ID: "t-1", Name: "Mia", Email: "mia@example.com"}

	require.NoError(t, d.SendCustomerAcknowledgment(context.Background(), booking))
	require.NoError(t, d.SendCustomerConfirmation(context.Background(), booking, therapist))
	require.NoError(t, d.SendCustomerDecline(context.Background(), booking))

	msgs := queue.all()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0].Body, "$190.80")
	assert.Contains(t, msgs[1].Body, "Mia")
	assert.Contains(t, msgs[2].Subject, "could not confirm")
}

func TestCustomerEmailsSkipWithoutAddress(t *testing.T) {
	d, queue, _ := newTestDispatcher()
	booking := testBooking()
	booking.Customer.Email = ""

	require.NoError(t, d.SendCustomerAcknowledgment(context.Background(), booking))
	require.NoError(t, d.SendCustomerDecline(context.Background(), booking))
	assert.Empty(t, queue.all())
}

func TestSendAdminNotice(t *testing.T) {
	d, _, admin := newTestDispatcher()

	require.NoError(t, d.SendAdminNotice(context.Background(), testBooking(), "no candidates in range"))
	require.Len(t, admin.notices, 1)
	assert.Contains(t, admin.notices[0], "b-1")

	// nil admin notifier is fine
	logger := zerolog.New(io.Discard)
	d2 := NewDispatcher(&captureQueue{}, nil, &logger)
	assert.NoError(t, d2.SendAdminNotice(context.Background(), testBooking(), "x"))
}
