package models

import "time"

// Dispatch is one request sent to one candidate. The token doubles as the
// capability that authorizes that candidate's accept/decline response.
type Dispatch struct {
	BookingID      string    `json:"booking_id"`
	CandidateIndex int       `json:"candidate_index"`
	TherapistID    string    `json:"therapist_id"`
	Token          string    `json:"token"`
	SentAt         time.Time `json:"sent_at"`
}

const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
)
