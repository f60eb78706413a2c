package beacon

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/rtolen/vairify-guard/internal/guard/schedule"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
	"github.com/rtolen/vairify-guard/internal/metrics"
)

// DefaultPeriod is the location fix interval while a session is active.
const DefaultPeriod = 2 * time.Minute

// Fix is one successful position reading.
type Fix struct {
	Latitude  float64
	Longitude float64
	At        time.Time
}

// Provider is the geolocation boundary: returns a fix or an error within the
// caller's deadline.
type Provider interface {
	RequestFix(ctx context.Context) (*Fix, error)
}

// PingSink receives every beacon outcome. storage.MetadataStore satisfies it;
// the session monitor wraps it to also track the last known fix.
type PingSink interface {
	AppendLocationPing(ctx context.Context, ping *storage.LocationPing) error
}

// Beacon periodically requests a position fix for one session and appends
// the outcome as a LocationPing. A failed fix is recorded and skipped; it
// never stops the loop and never escalates by itself.
type Beacon struct {
	sessionID  string
	provider   Provider
	sink       PingSink
	sched      *schedule.Scheduler
	metrics    *metrics.Service
	period     time.Duration
	fixTimeout time.Duration

	mu     sync.Mutex
	handle *schedule.Handle
}

func New(sessionID string, provider Provider, sink PingSink, sched *schedule.Scheduler, m *metrics.Service, period, fixTimeout time.Duration) *Beacon {
	if period <= 0 {
		period = DefaultPeriod
	}
	if fixTimeout <= 0 {
		fixTimeout = 10 * time.Second
	}
	return &Beacon{
		sessionID:  sessionID,
		provider:   provider,
		sink:       sink,
		sched:      sched,
		metrics:    m,
		period:     period,
		fixTimeout: fixTimeout,
	}
}

// Start arms the periodic loop. Starting an already running beacon is a
// no-op.
func (b *Beacon) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handle != nil {
		return
	}
	b.handle = b.sched.Every(b.period, b.tick)
}

// Stop cancels the loop. Safe to call repeatedly and after Start was never
// called.
func (b *Beacon) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handle != nil {
		b.handle.Stop()
		b.handle = nil
	}
}

func (b *Beacon) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), b.fixTimeout)
	defer cancel()

	now := b.sched.Clock().Now()
	ping := &storage.LocationPing{
		SessionID: b.sessionID,
		Timestamp: now,
	}

	fix, err := b.provider.RequestFix(ctx)
	if err != nil {
		ping.FixFailed = true
		b.metrics.BeaconFixFailures.Inc()
		log.Debug().
			Err(err).
			Str("session_id", b.sessionID).
			Msg("Location fix failed, skipping tick")
	} else {
		lat, lng := fix.Latitude, fix.Longitude
		ping.Latitude = &lat
		ping.Longitude = &lng
		if !fix.At.IsZero() {
			ping.Timestamp = fix.At
		}
		b.metrics.BeaconFixes.Inc()
	}

	if err := b.sink.AppendLocationPing(ctx, ping); err != nil {
		log.Error().
			Err(err).
			Str("session_id", b.sessionID).
			Msg("Failed to append location ping")
	}
}
