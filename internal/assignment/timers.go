package assignment

import (
	"context"
	"sync"
	"time"

	"soothe/internal/models"
)

// timerTable holds at most one armed deadline per booking. Arm and cancel
// are race-safe; a timer that fires after its booking resolved is harmless
// because every transition is a guarded update in the store.
type timerTable struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerTable() *timerTable {
	return &timerTable{timers: make(map[string]*time.Timer)}
}

func (t *timerTable) arm(bookingID string, deadline time.Time, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[bookingID]; ok {
		old.Stop()
	}
	t.timers[bookingID] = time.AfterFunc(time.Until(deadline), fire)
}

func (t *timerTable) cancel(bookingID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[bookingID]; ok {
		timer.Stop()
		delete(t.timers, bookingID)
	}
}

func (t *timerTable) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// onDeadline runs when a candidate's response window elapses. The index is
// pinned at arm time; if the booking moved on since, the guarded update
// misses and nothing changes.
func (s *Service) onDeadline(bookingID string, candidateIndex int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome, err := s.advance(ctx, bookingID, candidateIndex, models.StatusExpired)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("booking_id", bookingID).
			Int("candidate_index", candidateIndex).
			Msg("deadline processing failed")
		return
	}

	s.logger.Info().
		Str("booking_id", bookingID).
		Int("candidate_index", candidateIndex).
		Str("outcome", string(outcome)).
		Msg("response window elapsed")
}
