package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rtolen/vairify-guard/internal/guard/beacon"
	"github.com/rtolen/vairify-guard/internal/guard/dispatch"
	"github.com/rtolen/vairify-guard/internal/guard/schedule"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
	"github.com/rtolen/vairify-guard/internal/guard/trigger"
	"github.com/rtolen/vairify-guard/internal/metrics"
	"github.com/rtolen/vairify-guard/internal/util"
)

// Monitor owns one session's state. Every transition — the timer-expiry
// callback, panic, decoy, check-in, extend, end — is serialized behind one
// mutex, so the three independent escalation sources can never tear a write
// or double-fire the dispatcher. The in-memory record is authoritative; the
// store mirrors it with its own optimistic terminal guard.
//
// Store calls made while holding the lock run under a bounded timeout.
// Notification delivery never runs under the lock at all: escalation returns
// to its caller the instant the state transition lands, and dispatch happens
// on its own goroutine.
type Monitor struct {
	mu      sync.Mutex
	session *storage.GuardSession
	// decoyCode stays in memory only; the store sees the sealed form.
	decoyCode string

	store      storage.MetadataStore
	live       storage.LiveStore
	sched      *schedule.Scheduler
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Service
	cfg        Config

	hold   *trigger.HoldTracker
	beacon *beacon.Beacon

	deadlineHandle *schedule.Handle
	bufferHandle   *schedule.Handle
	expiryHandle   *schedule.Handle

	// onTerminal lets the manager evict the monitor once it is finished.
	onTerminal func(sessionID string)

	fixMu   sync.Mutex
	lastFix *storage.LocationPing
}

// pingSink adapts the monitor to the beacon's sink so every ping both lands
// in the store and refreshes the monitor's last-known-fix cache.
type pingSink struct {
	m *Monitor
}

func (s pingSink) AppendLocationPing(ctx context.Context, ping *storage.LocationPing) error {
	return s.m.recordPing(ctx, ping)
}

func newMonitor(
	session *storage.GuardSession,
	decoyCode string,
	store storage.MetadataStore,
	live storage.LiveStore,
	sched *schedule.Scheduler,
	dispatcher *dispatch.Dispatcher,
	m *metrics.Service,
	geo beacon.Provider,
	cfg Config,
	onTerminal func(sessionID string),
) *Monitor {
	cfg = cfg.withDefaults()

	mon := &Monitor{
		session:    session,
		decoyCode:  decoyCode,
		store:      store,
		live:       live,
		sched:      sched,
		dispatcher: dispatcher,
		metrics:    m,
		cfg:        cfg,
		hold:       trigger.NewHoldTracker(cfg.HoldThreshold),
		onTerminal: onTerminal,
	}

	if session.GPSEnabled && geo != nil {
		mon.beacon = beacon.New(session.SessionID, geo, pingSink{mon}, sched, m, cfg.BeaconPeriod, cfg.GeoFixTimeout)
	}

	return mon
}

// armExpiry schedules the abandoned-session sweep: a session never activated
// by its own deadline moves to expired.
func (m *Monitor) armExpiry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.sched.Clock().Now()
	wait := m.session.ScheduledEnd.Sub(now)
	if wait < 0 {
		wait = 0
	}
	m.expiryHandle = m.sched.After(wait, m.onActivationDeadline)
}

// Snapshot returns a copy of the current session record.
func (m *Monitor) Snapshot() storage.GuardSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.session
}

// Activate moves the session from created to active, arms the deadline
// timer and starts the location beacon when GPS is enabled.
func (m *Monitor) Activate(ctx context.Context) (OpResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status(m.session.Status)
	if status.IsTerminal() {
		return m.alreadyTerminalLocked(), nil
	}
	if status != StatusCreated {
		return OpResult{Status: status}, ErrInvalidTransition
	}

	now := m.sched.Clock().Now()

	storeCtx, cancel := m.storeCtx(ctx)
	err := m.store.MarkSessionActive(storeCtx, m.session.SessionID, now)
	cancel()
	if err != nil && err != storage.ErrAlreadyTerminal {
		m.logger().Error().Err(err).Msg("Failed to persist session activation")
	}

	m.session.Status = storage.StatusActive
	m.session.ActivatedAt = util.TimePtr(now)

	if m.expiryHandle != nil {
		m.expiryHandle.Stop()
		m.expiryHandle = nil
	}
	m.armDeadlineLocked(now)

	if m.beacon != nil {
		m.beacon.Start()
	}

	m.saveLiveLocked(ctx)
	m.logger().Info().Time("deadline", m.session.ScheduledEnd).Msg("Session activated")

	return OpResult{Status: StatusActive}, nil
}

// CheckIn records a safety confirmation and extends the deadline by the
// configured increment, re-arming the timers against the new deadline.
// Calling it on a finished session is a reported no-op.
func (m *Monitor) CheckIn(ctx context.Context) (OpResult, error) {
	return m.moveDeadline(ctx, m.cfg.CheckInExtension, true)
}

// Extend adds the given duration to the deadline. Rejects non-positive
// durations.
func (m *Monitor) Extend(ctx context.Context, d time.Duration) (OpResult, error) {
	if d <= 0 {
		return OpResult{}, ErrNonPositiveExtension
	}
	return m.moveDeadline(ctx, d, false)
}

func (m *Monitor) moveDeadline(ctx context.Context, d time.Duration, isCheckIn bool) (OpResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status(m.session.Status)
	if status.IsTerminal() {
		return m.alreadyTerminalLocked(), nil
	}
	if status != StatusActive {
		return OpResult{Status: status}, ErrInvalidTransition
	}

	now := m.sched.Clock().Now()

	// Deadlines only ever move forward.
	newDeadline := m.session.ScheduledEnd.Add(d)
	if past := now.Add(d); newDeadline.Before(past) {
		newDeadline = past
	}
	m.session.ScheduledEnd = newDeadline

	storeCtx, cancel := m.storeCtx(ctx)
	if err := m.store.UpdateSessionDeadline(storeCtx, m.session.SessionID, newDeadline); err != nil {
		m.logger().Error().Err(err).Msg("Failed to persist new deadline")
	}
	if isCheckIn {
		if err := m.store.AppendCheckIn(storeCtx, &storage.CheckInEvent{
			SessionID:   m.session.SessionID,
			Timestamp:   now,
			NewDeadline: newDeadline,
		}); err != nil {
			m.logger().Error().Err(err).Msg("Failed to append check-in event")
		}
	}
	cancel()

	// Cancels any pending buffer wait: a check-in or extend that lands
	// before the grace period elapses suppresses that deadline's escalation.
	m.armDeadlineLocked(now)
	m.saveLiveLocked(ctx)

	m.logger().Info().
		Bool("check_in", isCheckIn).
		Time("deadline", newDeadline).
		Msg("Deadline moved forward")

	deadline := newDeadline
	return OpResult{Status: StatusActive, NewDeadline: &deadline}, nil
}

// EndEarly completes the session voluntarily.
func (m *Monitor) EndEarly(ctx context.Context) (OpResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status(m.session.Status)
	if status.IsTerminal() {
		return m.alreadyTerminalLocked(), nil
	}
	if status != StatusActive {
		return OpResult{Status: status}, ErrInvalidTransition
	}

	endedVia := EndedViaOwner
	m.completeLocked(ctx, &endedVia)
	return OpResult{Status: StatusCompleted}, nil
}

// Decoy handles a submitted code. An exact match is a silent cancel marked
// endedVia=decoy; any other non-empty entry silently escalates; an empty
// entry is not an action. The caller-facing surface must present every
// outcome with the same acknowledgment shape.
func (m *Monitor) Decoy(ctx context.Context, enteredCode string) (OpResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status(m.session.Status)
	if status.IsTerminal() {
		return m.alreadyTerminalLocked(), nil
	}
	if status != StatusActive {
		return OpResult{Status: status}, ErrInvalidTransition
	}

	switch trigger.EvaluateDecoyCode(enteredCode, m.decoyCode) {
	case trigger.DecoyNoop:
		return OpResult{Status: status}, nil
	case trigger.DecoyCancel:
		endedVia := EndedViaDecoy
		m.completeLocked(ctx, &endedVia)
		return OpResult{Status: StatusCompleted}, nil
	default:
		m.escalateLocked(ctx, ReasonDecoy)
		return OpResult{Status: StatusEmergency}, nil
	}
}

// Panic escalates immediately. It is invoked by the hold tracker once the
// hold spans the threshold, and is safe to call from tests directly. Only an
// active session can raise the alarm; a created one has no one guarding it
// yet.
func (m *Monitor) Panic(ctx context.Context) (OpResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status(m.session.Status)
	if status.IsTerminal() {
		return m.alreadyTerminalLocked(), nil
	}
	if status != StatusActive {
		return OpResult{Status: status}, ErrInvalidTransition
	}

	m.escalateLocked(ctx, ReasonPanic)
	return OpResult{Status: StatusEmergency}, nil
}

// PanicHoldStart begins the hold-to-confirm gesture.
func (m *Monitor) PanicHoldStart() OpResult {
	m.mu.Lock()
	status := Status(m.session.Status)
	m.mu.Unlock()

	if status == StatusActive {
		m.hold.Start(m.sched.Clock().Now())
	}
	return OpResult{Status: status, AlreadyTerminal: status.IsTerminal()}
}

// PanicHoldTick reports a "still holding" signal; when the continuous hold
// reaches the threshold it fires the panic escalation.
func (m *Monitor) PanicHoldTick(ctx context.Context) (OpResult, error) {
	if m.hold.Hold(m.sched.Clock().Now()) {
		return m.Panic(ctx)
	}

	m.mu.Lock()
	status := Status(m.session.Status)
	m.mu.Unlock()
	return OpResult{Status: status, AlreadyTerminal: status.IsTerminal()}, nil
}

// PanicHoldRelease abandons the hold; progress resets to zero.
func (m *Monitor) PanicHoldRelease() OpResult {
	m.hold.Release()

	m.mu.Lock()
	status := Status(m.session.Status)
	m.mu.Unlock()
	return OpResult{Status: status, AlreadyTerminal: status.IsTerminal()}
}

// onActivationDeadline fires when a created session was never activated by
// its own scheduled end.
func (m *Monitor) onActivationDeadline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if Status(m.session.Status) != StatusCreated {
		return
	}

	ctx := context.Background()
	m.session.Status = storage.StatusExpired
	m.applyTerminalLocked(ctx, storage.StatusExpired, nil, nil)
	m.metrics.SessionsExpired.Inc()
	m.logger().Info().Msg("Session expired before activation")
}

// onDeadlineElapsed is the scheduler callback for a missed deadline. It does
// not transition anything itself: it arms the buffer wait, a separate
// cancelable task, so a concurrent panic for the same session is never
// stalled behind a sleeping expiry handler.
func (m *Monitor) onDeadlineElapsed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if Status(m.session.Status) != StatusActive {
		return
	}

	now := m.sched.Clock().Now()
	if now.Before(m.session.ScheduledEnd) {
		// Stale callback from a deadline that has since moved; the fresh
		// handle covers the new deadline.
		return
	}

	if m.bufferHandle != nil {
		m.bufferHandle.Stop()
	}
	m.bufferHandle = m.sched.After(m.bufferLocked(), m.onBufferElapsed)

	m.logger().Info().
		Dur("buffer", m.bufferLocked()).
		Msg("Deadline missed, grace period started")
}

// onBufferElapsed fires when the grace period passed with no check-in,
// extend or end. Escalation is now mandatory.
func (m *Monitor) onBufferElapsed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if Status(m.session.Status) != StatusActive {
		return
	}
	if m.sched.Clock().Now().Before(m.session.ScheduledEnd) {
		// The deadline moved while the buffer was pending.
		return
	}

	m.escalateLocked(context.Background(), ReasonTimerExpired)
}

// escalateLocked is the single escalation path shared by timer expiry,
// panic and decoy-mismatch. The status check under the lock is the terminal
// single-assignment guard: exactly one caller passes it, performs the side
// effects and dispatches; every later caller observes a terminal status and
// does nothing.
func (m *Monitor) escalateLocked(ctx context.Context, reason string) {
	if Status(m.session.Status).IsTerminal() {
		return
	}

	now := m.sched.Clock().Now()
	m.session.Status = storage.StatusEmergency
	r := reason
	m.session.EscalationReason = &r

	m.applyTerminalLocked(ctx, storage.StatusEmergency, &r, nil)

	event := m.buildEmergencyEventLocked(now, reason)
	storeCtx, cancel := m.storeCtx(ctx)
	if err := m.store.AppendEmergencyEvent(storeCtx, event); err != nil {
		// The escalation stands regardless; losing the event row is an
		// operations problem, not a reason to suppress the alarm.
		m.logger().Error().Err(err).Msg("Failed to append emergency event")
	}
	cancel()

	m.metrics.Escalations.WithLabelValues(reason).Inc()
	m.logger().Warn().Str("reason", reason).Msg("Session escalated to emergency")

	snapshot := *m.session
	go m.dispatcher.Dispatch(context.Background(), &snapshot, event)
}

// completeLocked ends the session in completed state.
func (m *Monitor) completeLocked(ctx context.Context, endedVia *string) {
	m.session.Status = storage.StatusCompleted
	m.session.EndedVia = endedVia
	m.applyTerminalLocked(ctx, storage.StatusCompleted, nil, endedVia)
	m.metrics.SessionsCompleted.Inc()
	m.logger().Info().Msg("Session completed")
}

// applyTerminalLocked performs the side effects every terminal transition
// shares: cancel all timers and the beacon, persist through the store's
// optimistic guard, drop the live snapshot, notify the manager.
func (m *Monitor) applyTerminalLocked(ctx context.Context, status string, reason, endedVia *string) {
	now := m.sched.Clock().Now()
	m.session.EndedAt = util.TimePtr(now)

	m.cancelTimersLocked()

	storeCtx, cancel := m.storeCtx(ctx)
	err := m.store.TerminateSession(storeCtx, m.session.SessionID, status, reason, endedVia, now)
	cancel()
	if err != nil && err != storage.ErrAlreadyTerminal {
		m.logger().Error().Err(err).Str("terminal_status", status).Msg("Failed to persist terminal transition")
	}

	if m.live != nil {
		liveCtx, cancelLive := m.storeCtx(ctx)
		if err := m.live.DeleteLiveSession(liveCtx, m.session.SessionID); err != nil {
			m.logger().Debug().Err(err).Msg("Failed to drop live session snapshot")
		}
		cancelLive()
	}

	if m.onTerminal != nil {
		go m.onTerminal(m.session.SessionID)
	}
}

func (m *Monitor) cancelTimersLocked() {
	if m.deadlineHandle != nil {
		m.deadlineHandle.Stop()
		m.deadlineHandle = nil
	}
	if m.bufferHandle != nil {
		m.bufferHandle.Stop()
		m.bufferHandle = nil
	}
	if m.expiryHandle != nil {
		m.expiryHandle.Stop()
		m.expiryHandle = nil
	}
	if m.beacon != nil {
		m.beacon.Stop()
	}
}

// armDeadlineLocked cancels any pending deadline and buffer waits and
// schedules a fresh deadline callback. Cancel-and-reschedule happens inside
// the same serialized operation that moved the deadline.
func (m *Monitor) armDeadlineLocked(now time.Time) {
	if m.deadlineHandle != nil {
		m.deadlineHandle.Stop()
	}
	if m.bufferHandle != nil {
		m.bufferHandle.Stop()
		m.bufferHandle = nil
	}

	wait := m.session.ScheduledEnd.Sub(now)
	if wait < 0 {
		wait = 0
	}
	m.deadlineHandle = m.sched.After(wait, m.onDeadlineElapsed)
}

func (m *Monitor) bufferLocked() time.Duration {
	if m.session.BufferSeconds > 0 {
		return time.Duration(m.session.BufferSeconds) * time.Second
	}
	return m.cfg.DefaultBuffer
}

func (m *Monitor) buildEmergencyEventLocked(now time.Time, reason string) *storage.EmergencyEvent {
	event := &storage.EmergencyEvent{
		SessionID:   m.session.SessionID,
		TriggerType: reason,
		TriggeredAt: now,
		NoFix:       true,
	}

	m.fixMu.Lock()
	if m.lastFix != nil {
		at := m.lastFix.Timestamp
		event.LastFixAt = &at
		event.LastLatitude = m.lastFix.Latitude
		event.LastLongitude = m.lastFix.Longitude
		event.NoFix = false
	}
	m.fixMu.Unlock()

	return event
}

// recordPing lands a beacon result in the store and caches the most recent
// successful fix for the emergency snapshot. It deliberately avoids the
// session mutex: a ping append may interleave with transitions freely.
func (m *Monitor) recordPing(ctx context.Context, ping *storage.LocationPing) error {
	if !ping.FixFailed {
		m.fixMu.Lock()
		cp := *ping
		m.lastFix = &cp
		m.fixMu.Unlock()
	}
	return m.store.AppendLocationPing(ctx, ping)
}

// shutdown cancels timers and the beacon without transitioning the session.
// Used on process shutdown only.
func (m *Monitor) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelTimersLocked()
}

func (m *Monitor) alreadyTerminalLocked() OpResult {
	return OpResult{
		Status:          Status(m.session.Status),
		AlreadyTerminal: true,
	}
}

func (m *Monitor) saveLiveLocked(ctx context.Context) {
	if m.live == nil {
		return
	}

	ttl := m.session.ScheduledEnd.Sub(m.sched.Clock().Now()) + m.bufferLocked() + m.cfg.TerminalLinger
	snapshot := *m.session

	liveCtx, cancel := m.storeCtx(ctx)
	defer cancel()
	if err := m.live.SaveLiveSession(liveCtx, &snapshot, ttl); err != nil {
		m.logger().Debug().Err(err).Msg("Failed to save live session snapshot")
	}
}

func (m *Monitor) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, m.cfg.StoreTimeout)
}

func (m *Monitor) logger() *zerolog.Logger {
	l := log.With().Str("session_id", m.session.SessionID).Logger()
	return &l
}
