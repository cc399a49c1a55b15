package assignment

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"soothe/internal/database"
	"soothe/internal/domain"
	"soothe/internal/events"
	"soothe/internal/models"
	"soothe/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sydney = models.Coordinates{Lat: -33.8688, Lon: 151.2093}

func testRoster() []models.Therapist {
	return []models.Therapist{
		{ID: "t-near", Name: "Mia", Email: "mia@example.com", Lat: -33.87, Lon: 151.21, Available: true},
		{ID: "t-mid", Name: "Noah", Email: "noah@example.com", Lat: -33.88, Lon: 151.22, Available: true},
		{ID: "t-far", Name: "Zoe", Email: "zoe@example.com", Lat: -33.95, Lon: 151.25, Available: true},
		{ID: "t-off", Name: "Eli", Email: "eli@example.com", Lat: -33.87, Lon: 151.21, Available: false},
	}
}

type sentRequest struct {
	TherapistID string
	AcceptURL   string
	DeclineURL  string
}

type fakeDispatcher struct {
	mu            sync.Mutex
	requests      []sentRequest
	acks          int
	confirmations int
	declines      int
	notices       []string
	requestErr    error
}

func (f *fakeDispatcher) SendTherapistRequest(_ context.Context, _ *models.Booking, t models.Therapist, acceptURL, declineURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestErr != nil {
		return f.requestErr
	}
	f.requests = append(f.requests, sentRequest{TherapistID: t.ID, AcceptURL: acceptURL, DeclineURL: declineURL})
	return nil
}

func (f *fakeDispatcher) SendCustomerAcknowledgment(_ context.Context, _ *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeDispatcher) SendCustomerConfirmation(_ context.Context, _ *models.Booking, _ models.Therapist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations++
	return nil
}

func (f *fakeDispatcher) SendCustomerDecline(_ context.Context, _ *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declines++
	return nil
}

func (f *fakeDispatcher) SendAdminNotice(_ context.Context, _ *models.Booking, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
	return nil
}

func (f *fakeDispatcher) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.requests))
	for i, r := range f.requests {
		ids[i] = r.TherapistID
	}
	return ids
}

func newTestService(t *testing.T, window time.Duration) (*Service, *database.DB, *fakeDispatcher) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assignment.db")
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	db, err := database.NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	quiet := zerolog.New(io.Discard)
	dispatcher := &fakeDispatcher{}
	snapshots := repository.NewMemorySnapshotRepository(time.Hour)

	svc := NewService(db, testRoster(), dispatcher, snapshots, events.NewEventBus(), nil, Config{
		ResponseWindow: window,
		RadiusKm:       10,
		PublicBaseURL:  "https://soothe.example.com",
	}, &quiet)
	t.Cleanup(svc.Stop)

	return svc, db, dispatcher
}

func newTestRequest() *models.BookingRequest {
	return &models.BookingRequest{
		CustomerName:  "Alice",
		CustomerEmail: "alice@example.com",
		CustomerPhone: "+61400000000",
		Address:       "12 George St, Sydney",
		Location:      sydney,
		ServiceType:   "relaxation",
		DurationMin:   60,
		ScheduledAt:   time.Now().Add(48 * time.Hour),
		Parking:       "free",
	}
}

// currentToken reads the ledger for the booking's current candidate.
func currentToken(t *testing.T, db *database.DB, bookingID string, index int) string {
	t.Helper()
	dispatches, err := db.GetDispatches(context.Background(), bookingID)
	require.NoError(t, err)
	for _, d := range dispatches {
		if d.CandidateIndex == index {
			return d.Token
		}
	}
	t.Fatalf("no dispatch recorded for index %d", index)
	return ""
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestCreateBookingDispatchesNearestFirst(t *testing.T) {
	svc, db, dispatcher := newTestService(t, time.Hour)

	booking, err := svc.CreateBooking(context.Background(), newTestRequest())
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, 0, booking.CurrentIndex)
	assert.Equal(t, []string{"t-near", "t-mid", "t-far"}, booking.CandidateOrder)
	assert.Greater(t, booking.Service.Price, 0.0)

	assert.Equal(t, []string{"t-near"}, dispatcher.sentTo())
	assert.Equal(t, 1, dispatcher.acks)

	dispatches, err := db.GetDispatches(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Len(t, dispatches, 1)
	assert.Equal(t, "t-near", dispatches[0].TherapistID)
	assert.NotEmpty(t, dispatches[0].Token)

	// accept link carries the token and the action
	u, err := url.Parse(dispatcher.requests[0].AcceptURL)
	require.NoError(t, err)
	assert.Equal(t, dispatches[0].Token, u.Query().Get("token"))
	assert.Equal(t, models.ActionAccept, u.Query().Get("action"))
}

func TestCreateBookingSelectedTherapistFirst(t *testing.T) {
	svc, _, dispatcher := newTestService(t, time.Hour)

	req := newTestRequest()
	req.SelectedTherapist = "t-mid"

	booking, err := svc.CreateBooking(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"t-mid", "t-near", "t-far"}, booking.CandidateOrder)
	assert.Equal(t, []string{"t-mid"}, dispatcher.sentTo())
}

func TestCreateBookingNoCandidates(t *testing.T) {
	svc, _, _ := newTestService(t, time.Hour)

	t.Run("TooFarAway", func(t *testing.T) {
		req := newTestRequest()
		req.Location = models.Coordinates{Lat: -37.81, Lon: 144.96} // Melbourne
		_, err := svc.CreateBooking(context.Background(), req)
		assert.ErrorIs(t, err, ErrNoCandidatesInRange)
	})

	t.Run("NeverGeocoded", func(t *testing.T) {
		req := newTestRequest()
		req.Location = models.Coordinates{}
		_, err := svc.CreateBooking(context.Background(), req)
		assert.ErrorIs(t, err, ErrNoCandidatesInRange)
	})
}

func TestCreateBookingValidation(t *testing.T) {
	svc, _, _ := newTestService(t, time.Hour)

	mutations := map[string]func(*models.BookingRequest){
		"MissingName":     func(r *models.BookingRequest) { r.CustomerName = "" },
		"MissingAddress":  func(r *models.BookingRequest) { r.Address = "" },
		"MissingService":  func(r *models.BookingRequest) { r.ServiceType = "" },
		"ZeroDuration":    func(r *models.BookingRequest) { r.DurationMin = 0 },
		"MissingSchedule": func(r *models.BookingRequest) { r.ScheduledAt = time.Time{} },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			req := newTestRequest()
			mutate(req)
			_, err := svc.CreateBooking(context.Background(), req)
			assert.Error(t, err)
		})
	}
}

func TestAcceptConfirmsBooking(t *testing.T) {
	svc, db, dispatcher := newTestService(t, time.Hour)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, newTestRequest())
	require.NoError(t, err)

	token := currentToken(t, db, booking.ID, 0)
	outcome, err := svc.Respond(ctx, token, models.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmed, outcome)

	stored, err := svc.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Equal(t, "t-near", stored.WinningTherapist)
	assert.Equal(t, 1, dispatcher.confirmations)

	// replaying the same link changes nothing
	outcome, err = svc.Respond(ctx, token, models.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyResolved, outcome)
	assert.Equal(t, "t-near", stored.WinningTherapist)
}

func TestDeclineAdvancesToNextCandidate(t *testing.T) {
	svc, db, dispatcher := newTestService(t, time.Hour)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, newTestRequest())
	require.NoError(t, err)

	firstToken := currentToken(t, db, booking.ID, 0)
	outcome, err := svc.Respond(ctx, firstToken, models.ActionDecline)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAdvanced, outcome)

	stored, err := svc.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.CurrentIndex)
	assert.Equal(t, []string{"t-near", "t-mid"}, dispatcher.sentTo())

	// the declined candidate's token is now stale in both directions
	outcome, err = svc.Respond(ctx, firstToken, models.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeStaleResponder, outcome)

	outcome, err = svc.Respond(ctx, firstToken, models.ActionDecline)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeStaleResponder, outcome)

	stored, err = svc.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentIndex)
}

func TestAllCandidatesDeclineFinalizes(t *testing.T) {
	svc, db, dispatcher := newTestService(t, time.Hour)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, newTestRequest())
	require.NoError(t, err)

	for i := 0; i < len(booking.CandidateOrder); i++ {
		token := currentToken(t, db, booking.ID, i)
		outcome, err := svc.Respond(ctx, token, models.ActionDecline)
		require.NoError(t, err)
		if i < len(booking.CandidateOrder)-1 {
			assert.Equal(t, domain.OutcomeAdvanced, outcome)
		} else {
			assert.Equal(t, domain.OutcomeDeclined, outcome)
		}
	}

	stored, err := svc.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, stored.Status)
	assert.Empty(t, stored.WinningTherapist)
	assert.Equal(t, 1, dispatcher.declines)
}

func TestTimeoutAdvancesAndExpires(t *testing.T) {
	svc, _, dispatcher := newTestService(t, 60*time.Millisecond)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, newTestRequest())
	require.NoError(t, err)

	// three candidates, three elapsed windows, then terminal expired
	waitFor(t, func() bool {
		stored, err := svc.GetBooking(ctx, booking.ID)
		return err == nil && stored.Status == models.StatusExpired
	})

	assert.Equal(t, []string{"t-near", "t-mid", "t-far"}, dispatcher.sentTo())
	assert.Equal(t, 1, dispatcher.declines) // customer notified once
}

func TestAcceptAfterExpiryIsSideEffectFree(t *testing.T) {
	svc, db, _ := newTestService(t, 60*time.Millisecond)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, newTestRequest())
	require.NoError(t, err)
	token := currentToken(t, db, booking.ID, 0)

	waitFor(t, func() bool {
		stored, err := svc.GetBooking(ctx, booking.ID)
		return err == nil && stored.Status == models.StatusExpired
	})

	outcome, err := svc.Respond(ctx, token, models.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyResolved, outcome)

	stored, err := svc.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)
	assert.Empty(t, stored.WinningTherapist)
}

func TestConcurrentAcceptsSingleWinner(t *testing.T) {
	svc, db, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, newTestRequest())
	require.NoError(t, err)
	token := currentToken(t, db, booking.ID, 0)

	const attempts = 10
	results := make(chan domain.Outcome, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := svc.Respond(ctx, token, models.ActionAccept)
			if err == nil {
				results <- outcome
			}
		}()
	}
	wg.Wait()
	close(results)

	confirmed := 0
	for outcome := range results {
		if outcome == domain.OutcomeConfirmed {
			confirmed++
		} else {
			assert.Equal(t, domain.OutcomeAlreadyResolved, outcome)
		}
	}
	assert.Equal(t, 1, confirmed)

	stored, err := svc.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Equal(t, "t-near", stored.WinningTherapist)
}

func TestCancelBooking(t *testing.T) {
	svc, db, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, newTestRequest())
	require.NoError(t, err)

	require.NoError(t, svc.CancelBooking(ctx, booking.ID))

	stored, err := svc.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)

	// a late accept observes the terminal state
	token := currentToken(t, db, booking.ID, 0)
	outcome, err := svc.Respond(ctx, token, models.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyResolved, outcome)

	// cancelling twice reports the resolution
	err = svc.CancelBooking(ctx, booking.ID)
	assert.ErrorIs(t, err, database.ErrAlreadyResolved)
}

func TestRespondRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	t.Run("UnknownToken", func(t *testing.T) {
		_, err := svc.Respond(ctx, "nonsense", models.ActionAccept)
		assert.ErrorIs(t, err, database.ErrDispatchNotFound)
	})

	t.Run("InvalidAction", func(t *testing.T) {
		_, err := svc.Respond(ctx, "whatever", "maybe")
		assert.ErrorIs(t, err, ErrInvalidAction)
	})
}

func TestDeliveryFailureDoesNotStallBooking(t *testing.T) {
	svc, _, dispatcher := newTestService(t, 60*time.Millisecond)
	dispatcher.requestErr = errors.New("smtp down")
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, newTestRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, booking.Status)

	// every send fails, so the windows elapse one by one until expiry
	waitFor(t, func() bool {
		stored, err := svc.GetBooking(ctx, booking.ID)
		return err == nil && stored.Status == models.StatusExpired
	})
}

func TestGetSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, newTestRequest())
	require.NoError(t, err)

	snapshot, err := svc.GetSnapshot(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, snapshot.BookingID)
	assert.Equal(t, models.StatusPending, snapshot.Status)

	_, err = svc.GetSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrBookingNotFound)
}

func TestRecoverPending(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "recover.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dispatcher := &fakeDispatcher{}
	cfg := Config{ResponseWindow: time.Hour, RadiusKm: 10, PublicBaseURL: "https://soothe.example.com"}

	first := NewService(db, testRoster(), dispatcher, nil, nil, nil, cfg, &logger)
	booking, err := first.CreateBooking(ctx, newTestRequest())
	require.NoError(t, err)
	first.Stop() // simulated crash: timers gone, state persisted

	second := NewService(db, testRoster(), dispatcher, nil, nil, nil, cfg, &logger)
	t.Cleanup(second.Stop)
	require.NoError(t, second.RecoverPending(ctx))

	// the ledger suppressed a duplicate send for the same position
	assert.Equal(t, []string{"t-near"}, dispatcher.sentTo())

	// the recovered timer is live: a decline still advances
	token := currentToken(t, db, booking.ID, 0)
	outcome, err := second.Respond(ctx, token, models.ActionDecline)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAdvanced, outcome)
}
