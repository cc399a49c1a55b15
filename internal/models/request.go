package models

import "time"

// BookingRequest is the wizard's submission payload.
type BookingRequest struct {
	CustomerName      string      `json:"customer_name"`
	CustomerEmail     string      `json:"customer_email"`
	CustomerPhone     string      `json:"customer_phone"`
	Address           string      `json:"address"`
	Location          Coordinates `json:"location"`
	ServiceType       string      `json:"service_type"`
	DurationMin       int         `json:"duration_min"`
	ScheduledAt       time.Time   `json:"scheduled_at"`
	Parking           string      `json:"parking"`
	SelectedTherapist string      `json:"selected_therapist,omitempty"`
}
