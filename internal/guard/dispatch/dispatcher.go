package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rtolen/vairify-guard/internal/guard/notify"
	"github.com/rtolen/vairify-guard/internal/guard/schedule"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
	"github.com/rtolen/vairify-guard/internal/metrics"
)

const (
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 5 * time.Second
	defaultBackoffBase    = 2 * time.Second
)

// Dispatcher hands a finished escalation to the guardian notifiers. Delivery
// is best-effort with bounded retries: the session is already in emergency
// when Dispatch runs, so delivery failure is an operations problem, never a
// rollback. Dispatch runs outside the session's serialization point.
type Dispatcher struct {
	directory      notify.Directory
	notifiers      []notify.Notifier
	metrics        *metrics.Service
	clock          schedule.Clock
	maxAttempts    int
	attemptTimeout time.Duration
	backoffBase    time.Duration
}

type Option func(*Dispatcher)

func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

func WithAttemptTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.attemptTimeout = timeout
		}
	}
}

func WithBackoffBase(base time.Duration) Option {
	return func(d *Dispatcher) {
		if base >= 0 {
			d.backoffBase = base
		}
	}
}

func New(directory notify.Directory, notifiers []notify.Notifier, m *metrics.Service, clock schedule.Clock, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		directory:      directory,
		notifiers:      notifiers,
		metrics:        m,
		clock:          clock,
		maxAttempts:    defaultMaxAttempts,
		attemptTimeout: defaultAttemptTimeout,
		backoffBase:    defaultBackoffBase,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BuildPayload assembles the immutable emergency payload from the session
// snapshot and its emergency event.
func BuildPayload(session *storage.GuardSession, event *storage.EmergencyEvent) *notify.EmergencyPayload {
	return &notify.EmergencyPayload{
		SessionID:       session.SessionID,
		OwnerID:         session.OwnerID,
		Reason:          event.TriggerType,
		LocationLabel:   session.LocationLabel,
		LocationAddress: session.LocationAddress,
		Memo:            session.Memo,
		LastLatitude:    event.LastLatitude,
		LastLongitude:   event.LastLongitude,
		LastFixAt:       event.LastFixAt,
		NoFix:           event.NoFix,
		TriggeredAt:     event.TriggeredAt,
	}
}

// Dispatch resolves the guardian set and pushes the payload through every
// configured notifier, retrying each with linear backoff. It blocks until
// done and is meant to run on its own goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, session *storage.GuardSession, event *storage.EmergencyEvent) {
	started := d.clock.Now()
	payload := BuildPayload(session, event)

	logger := log.With().
		Str("session_id", session.SessionID).
		Str("reason", event.TriggerType).
		Logger()

	guardians, err := d.directory.ResolveGuardians(ctx, session.GuardianIDs)
	if err != nil {
		// Still attempt delivery: a notifier transport may carry recipient
		// resolution of its own downstream.
		logger.Error().Err(err).Msg("Failed to resolve guardian set")
	}
	if len(guardians) == 0 {
		logger.Warn().Msg("Emergency dispatch has no resolvable guardians")
	}

	anyDelivered := false
	for _, notifier := range d.notifiers {
		if d.deliverWithRetry(ctx, notifier, payload, guardians, logger) {
			anyDelivered = true
		}
	}

	d.metrics.EscalationLatency.Observe(d.clock.Now().Sub(started).Seconds())

	if !anyDelivered {
		d.metrics.NotifyExhausted.Inc()
		logger.Error().Msg("Emergency notification exhausted all notifiers and retries")
	}
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, notifier notify.Notifier, payload *notify.EmergencyPayload, guardians []notify.Guardian, logger zerolog.Logger) bool {
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			logger.Warn().
				Str("notifier", notifier.Name()).
				Int("attempt", attempt).
				Msg("Retrying emergency notification")
			select {
			case <-ctx.Done():
				return false
			case <-d.clock.After(d.backoffBase * time.Duration(attempt-1)):
			}
		}

		d.metrics.NotifyAttempts.Inc()

		attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		results, err := notifier.Notify(attemptCtx, payload, guardians)
		cancel()

		if err != nil {
			logger.Warn().
				Err(err).
				Str("notifier", notifier.Name()).
				Int("attempt", attempt).
				Msg("Emergency notification attempt failed")
			continue
		}

		for _, r := range results {
			if !r.Delivered {
				logger.Warn().
					Str("notifier", notifier.Name()).
					Str("guardian_id", r.GuardianID).
					Str("delivery_error", r.Error).
					Msg("Guardian delivery failed")
			}
		}

		logger.Info().
			Str("notifier", notifier.Name()).
			Int("recipients", len(results)).
			Msg("Emergency notification handed off")
		return true
	}

	return false
}
