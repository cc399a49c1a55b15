package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus()

	var received []*Event
	bus.Subscribe(EventBookingConfirmed, func(e *Event) error {
		received = append(received, e)
		return nil
	})

	payload := BookingEventPayload{
		BookingID:   "b-1",
		Status:      "confirmed",
		TherapistID: "t-1",
	}
	require.NoError(t, bus.PublishJSON(EventBookingConfirmed, payload))

	require.Len(t, received, 1)
	assert.Equal(t, EventBookingConfirmed, received[0].Type)
	assert.False(t, received[0].CreatedAt.IsZero())

	var got BookingEventPayload
	require.NoError(t, json.Unmarshal(received[0].Payload, &got))
	assert.Equal(t, "b-1", got.BookingID)
	assert.Equal(t, "t-1", got.TherapistID)
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NoError(t, bus.PublishJSON(EventBookingExpired, BookingEventPayload{BookingID: "b-2"}))
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()

	count := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(EventBookingCreated, func(e *Event) error {
			count++
			return nil
		})
	}

	require.NoError(t, bus.PublishJSON(EventBookingCreated, BookingEventPayload{BookingID: "b-3"}))
	assert.Equal(t, 3, count)
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventBookingCreated, BookingEventPayload{}))
}
