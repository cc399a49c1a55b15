package models

import "time"

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// IsZero reports whether the point was never set (no geocoding result).
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

type Customer struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Phone    string      `json:"phone"`
	Address  string      `json:"address"`
	Location Coordinates `json:"location"`
}

type ServiceDetails struct {
	ServiceType string    `json:"service_type"`
	DurationMin int       `json:"duration_min"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Parking     string    `json:"parking"` // "free" or "paid"
	Price       float64   `json:"price"`
}

type Booking struct {
	ID               string         `json:"id"`
	Customer         Customer       `json:"customer"`
	Service          ServiceDetails `json:"service"`
	CandidateOrder   []string       `json:"candidate_order"` // therapist IDs, selected therapist first
	CurrentIndex     int            `json:"current_index"`
	Status           string         `json:"status"` // pending, confirmed, declined, expired, cancelled
	WinningTherapist string         `json:"winning_therapist,omitempty"`
	Deadline         time.Time      `json:"deadline"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Version          int64          `json:"version"`
}

// Terminal reports whether the booking can no longer change state.
func (b *Booking) Terminal() bool {
	switch b.Status {
	case StatusConfirmed, StatusDeclined, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// CurrentTherapist returns the candidate the booking is waiting on,
// or "" once the order is exhausted or the booking is terminal.
func (b *Booking) CurrentTherapist() string {
	if b.Terminal() || b.CurrentIndex < 0 || b.CurrentIndex >= len(b.CandidateOrder) {
		return ""
	}
	return b.CandidateOrder[b.CurrentIndex]
}

// StatusSnapshot is the read model served to polling clients.
type StatusSnapshot struct {
	BookingID        string    `json:"booking_id"`
	Status           string    `json:"status"`
	CurrentIndex     int       `json:"current_index"`
	WinningTherapist string    `json:"winning_therapist,omitempty"`
	Deadline         time.Time `json:"deadline,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Snapshot builds the polling read model for a booking.
func (b *Booking) Snapshot() *StatusSnapshot {
	return &StatusSnapshot{
		BookingID:        b.ID,
		Status:           b.Status,
		CurrentIndex:     b.CurrentIndex,
		WinningTherapist: b.WinningTherapist,
		Deadline:         b.Deadline,
		UpdatedAt:        b.UpdatedAt,
	}
}
