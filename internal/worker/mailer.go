package worker

import (
	"context"
	"time"

	"soothe/internal/models"
	"soothe/internal/notify"

	"github.com/rs/zerolog"
)

// Mailer delivers queued email off the request path. Enqueue never blocks;
// a full queue drops the message with a log line rather than stalling the
// state machine.
type Mailer struct {
	sender      notify.EmailSender
	queue       chan notify.EmailMessage
	retryPolicy RetryPolicy
	sendTimeout time.Duration
	logger      *zerolog.Logger
}

func NewMailer(sender notify.EmailSender, retry RetryPolicy, logger *zerolog.Logger) *Mailer {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 30 * time.Second
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Mailer{
		sender:      sender,
		queue:       make(chan notify.EmailMessage, models.WorkerQueueSize),
		retryPolicy: retry,
		sendTimeout: 30 * time.Second,
		logger:      logger,
	}
}

// Enqueue implements notify.MailQueue.
func (m *Mailer) Enqueue(msg notify.EmailMessage) {
	select {
	case m.queue <- msg:
	default:
		m.logger.Error().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail queue full, message dropped")
	}
}

// Start consumes the queue until ctx is done.
func (m *Mailer) Start(ctx context.Context) {
	m.logger.Info().Msg("mailer started")
	defer m.logger.Info().Msg("mailer stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			m.deliver(ctx, msg)
		}
	}
}

func (m *Mailer) deliver(ctx context.Context, msg notify.EmailMessage) {
	for attempt := 1; attempt <= m.retryPolicy.MaxRetries; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
		err := m.sender.Send(sendCtx, msg)
		cancel()
		if err == nil {
			return
		}

		m.logger.Warn().
			Err(err).
			Str("to", msg.To).
			Int("attempt", attempt).
			Msg("email delivery failed")

		if attempt == m.retryPolicy.MaxRetries {
			m.logger.Error().Str("to", msg.To).Str("subject", msg.Subject).Msg("email dropped after retries")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.retryPolicy.NextDelay(attempt)):
		}
	}
}
