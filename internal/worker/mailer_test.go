package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"soothe/internal/notify"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []notify.EmailMessage
	fails int // fail the first N sends
}

func (s *recordingSender) Send(_ context.Context, msg notify.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("provider down")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestMailerDelivers(t *testing.T) {
	sender := &recordingSender{}
	mailer := NewMailer(sender, RetryPolicy{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mailer.Start(ctx)

	mailer.Enqueue(notify.EmailMessage{To: "a@example.com", Subject: "hi"})
	mailer.Enqueue(notify.EmailMessage{To: "b@example.com", Subject: "hi"})

	waitFor(t, func() bool { return sender.count() == 2 })
}

func TestMailerRetriesTransientFailure(t *testing.T) {
	sender := &recordingSender{fails: 1}
	mailer := NewMailer(sender, RetryPolicy{MaxRetries: 3, InitialDelay: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mailer.Start(ctx)

	mailer.Enqueue(notify.EmailMessage{To: "a@example.com", Subject: "hi"})

	waitFor(t, func() bool { return sender.count() == 1 })
}

func TestMailerDropsAfterRetriesExhausted(t *testing.T) {
	sender := &recordingSender{fails: 10}
	mailer := NewMailer(sender, RetryPolicy{MaxRetries: 2, InitialDelay: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mailer.Enqueue(notify.EmailMessage{To: "a@example.com", Subject: "doomed"})
	mailer.deliver(ctx, notify.EmailMessage{To: "b@example.com", Subject: "doomed"})

	if sender.count() != 0 {
		t.Fatalf("expected no deliveries, got %d", sender.count())
	}
}
